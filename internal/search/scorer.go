package search

import (
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/nextlevelbuilder/skillbase/internal/store"
)

const (
	contentScanLimit = 1000 // only the first 1000 chars of content are scored
	previewLimit     = 200

	nameMatchBoost = 1.2
)

// Match is a scored candidate skill produced for one query. Read-only.
type Match struct {
	SkillID         string   `json:"skillId"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Category        string   `json:"category"`
	Score           float64  `json:"score"`
	MatchedBy       string   `json:"matchedBy"`
	MatchedKeywords []string `json:"matchedKeywords,omitempty"`
	Preview         string   `json:"preview,omitempty"`
}

// Scorer scores and ranks candidate skills against a query. Stateless; every
// call is pure and deterministic for a fixed candidate set.
type Scorer struct{}

// NewScorer creates a scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Search scores every active candidate against the query, drops zero and
// below-threshold scores, sorts by score descending (stable on candidate
// order for ties), and truncates to the query limit.
func (s *Scorer) Search(query Query, candidates []store.Skill) []Match {
	var matches []Match
	for _, skill := range candidates {
		if !skill.Active {
			continue
		}
		if m := scoreSkill(skill, query); m != nil && m.Score >= query.MinScore {
			matches = append(matches, *m)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if query.Limit > 0 && len(matches) > query.Limit {
		matches = matches[:query.Limit]
	}

	slog.Info("skill search scored",
		"candidates", len(candidates),
		"matched", len(matches),
	)
	return matches
}

// scoreSkill evaluates all query conditions against one skill. Returns nil
// when no condition matched.
func scoreSkill(skill store.Skill, query Query) *Match {
	fields := map[string]string{
		FieldName:        strings.ToLower(skill.Name),
		FieldDescription: strings.ToLower(skill.Description),
		FieldContent:     strings.ToLower(truncate(skill.Content, contentScanLimit)),
		FieldKeywords:    strings.ToLower(strings.Join(skill.Keywords, " ")),
		FieldCategory:    strings.ToLower(skill.Category),
	}
	fields[FieldAll] = strings.ToLower(skill.Name + " " + skill.Description + " " + skill.Content)

	total := 0.0
	matchedBy := KindKeyword
	var matchedKeywords []string

	for _, cond := range query.Conditions {
		text, ok := fields[cond.Field]
		if !ok {
			text = fields[FieldAll]
		}

		matched := false
		switch cond.Kind {
		case KindKeyword:
			if strings.Contains(text, strings.ToLower(cond.Pattern)) {
				matched = true
				matchedKeywords = append(matchedKeywords, cond.Pattern)
			}
		case KindRegex:
			// A bad pattern is a non-match, never a search failure.
			re, err := regexp.Compile("(?i)" + cond.Pattern)
			if err != nil {
				slog.Debug("regex condition skipped", "pattern", cond.Pattern, "error", err)
				break
			}
			matched = re.MatchString(text)
		case KindCategory:
			matched = strings.Contains(fields[FieldCategory], strings.ToLower(cond.Pattern))
		case KindTag:
			matched = strings.Contains(text, strings.ToLower(cond.Pattern))
		}

		if matched {
			total += cond.Weight
			// Label tracks the most recently matched kind, by evaluation
			// order rather than any semantic priority.
			matchedBy = cond.Kind
		}
	}

	if total == 0 {
		return nil
	}

	score := math.Min(total/math.Max(float64(len(query.Conditions)), 1), 1.0)
	for _, kw := range matchedKeywords {
		if strings.Contains(fields[FieldName], strings.ToLower(kw)) {
			score = math.Min(score*nameMatchBoost, 1.0)
			break
		}
	}

	return &Match{
		SkillID:         skill.ID,
		Name:            skill.Name,
		Description:     skill.Description,
		Category:        skill.Category,
		Score:           round3(score),
		MatchedBy:       matchedBy,
		MatchedKeywords: matchedKeywords,
		Preview:         truncate(skill.Content, previewLimit),
	}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
