// Package search implements the staged lexical retrieval pipeline:
// intent extraction, weighted query construction, and skill scoring.
package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxBaselineKeywords = 10

// Inferer is an optional language-model text-completion capability used to
// augment the baseline extraction. Any failure is absorbed; the baseline
// result is always returned.
type Inferer interface {
	Infer(ctx context.Context, prompt string) (string, error)
}

// Entity is a typed value recognized in the user's text (language,
// framework, tool, concept, topic). Only the augmentation path produces
// entities; the baseline never does.
type Entity struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// IntentResult is the outcome of one extraction call. Never mutated after
// construction.
type IntentResult struct {
	Keywords []string `json:"keywords"`
	Intent   string   `json:"intent"` // learn | search | compare | ask | create
	Entities []Entity `json:"entities,omitempty"`
	RawQuery string   `json:"-"`
}

const intentPrompt = `You are an intent recognition assistant. Analyze the user input and extract keywords and intent.

Output JSON only, in this format:
{"keywords": ["kw1", "kw2"], "intent": "search", "entities": [{"type": "language", "value": "Python"}]}

Intent is one of: learn, search, compare, ask, create.
Entity types: language, framework, tool, concept, topic.
Keep keywords in their original language, both Chinese and English. Drop stopwords.

User input: `

// Extractor turns raw user text into keywords, an intent label, and entities.
// A deterministic baseline always runs; an optional LLM augmentation merges
// on top of it, strictly best-effort.
type Extractor struct {
	inferer Inferer // nil = baseline only
}

// NewExtractor creates an intent extractor. Pass nil to disable augmentation.
func NewExtractor(inferer Inferer) *Extractor {
	return &Extractor{inferer: inferer}
}

// Extract runs the baseline extraction and, when an inferer is configured,
// merges the augmentation result over it. Augmentation errors and malformed
// JSON are logged and ignored.
func (e *Extractor) Extract(ctx context.Context, text string) IntentResult {
	result := IntentResult{
		Keywords: baselineKeywords(text),
		Intent:   detectIntent(text),
		RawQuery: text,
	}

	if e.inferer != nil {
		if aug, ok := e.augment(ctx, text); ok {
			result.Keywords = mergeKeywords(result.Keywords, aug.Keywords)
			if aug.Intent != "" {
				result.Intent = aug.Intent
			}
			result.Entities = aug.Entities
		}
	}

	slog.Info("intent extracted",
		"keywords", result.Keywords,
		"intent", result.Intent,
		"entities", len(result.Entities),
	)
	return result
}

// augmentation is the JSON shape expected from the inferer.
type augmentation struct {
	Keywords []string `json:"keywords"`
	Intent   string   `json:"intent"`
	Entities []Entity `json:"entities"`
}

func (e *Extractor) augment(ctx context.Context, text string) (*augmentation, bool) {
	raw, err := e.inferer.Infer(ctx, intentPrompt+text)
	if err != nil {
		slog.Warn("intent augmentation failed, using baseline", "error", err)
		return nil, false
	}

	payload, ok := extractJSONObject(raw)
	if !ok {
		slog.Warn("intent augmentation returned no JSON, using baseline")
		return nil, false
	}

	var aug augmentation
	if err := json.Unmarshal([]byte(payload), &aug); err != nil {
		slog.Warn("intent augmentation JSON malformed, using baseline", "error", err)
		return nil, false
	}
	return &aug, true
}

// extractJSONObject pulls the outermost {...} from a model response that may
// wrap JSON in prose or code fences.
func extractJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// mergeKeywords appends augmentation keywords not already present,
// preserving order and dropping duplicates.
func mergeKeywords(base, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	merged := make([]string, 0, len(base)+len(extra))
	for _, kw := range base {
		if !seen[kw] {
			seen[kw] = true
			merged = append(merged, kw)
		}
	}
	for _, kw := range extra {
		if !seen[kw] {
			seen[kw] = true
			merged = append(merged, kw)
		}
	}
	return merged
}

// baselineKeywords tokenizes text without any model: strip punctuation,
// split on whitespace, drop short tokens and stopwords, cap at 10.
func baselineKeywords(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return ' '
	}, text)

	var keywords []string
	for _, word := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(word) < 2 {
			continue
		}
		if stopwords[strings.ToLower(word)] {
			continue
		}
		keywords = append(keywords, word)
		if len(keywords) >= maxBaselineKeywords {
			break
		}
	}
	return keywords
}

// intentMarkers maps each intent to its trigger keywords, tested in fixed
// priority order against the lowercased text. No match means "search".
var intentMarkers = []struct {
	intent  string
	markers []string
}{
	{"learn", []string{"学习", "了解", "入门", "learn", "教程", "怎么用"}},
	{"compare", []string{"比较", "对比", "vs", "区别", "哪个好", "compare"}},
	{"create", []string{"创建", "生成", "写", "实现", "create", "build", "make"}},
	{"ask", []string{"为什么", "怎么", "如何", "why"}},
}

func detectIntent(text string) string {
	lower := strings.ToLower(text)
	for _, group := range intentMarkers {
		for _, marker := range group.markers {
			if strings.Contains(lower, marker) {
				return group.intent
			}
		}
	}
	return "search"
}
