// Package skills implements the filesystem-backed skill store used in
// standalone mode. Each skill lives in its own directory containing a
// SKILL.md file: YAML frontmatter (name, description, category, keywords,
// active) followed by the markdown body that gets injected into the
// conversation.
package skills

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/nextlevelbuilder/skillbase/internal/store"
)

// frontmatterRe matches a leading `--- ... ---` YAML block.
var frontmatterRe = regexp.MustCompile(`(?s)^---\n(.*?)\n---\n?`)

// skillIDRe restricts skill IDs to names that are safe as tool-name suffixes.
var skillIDRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// Loader scans one or more skill root directories and serves skills from an
// in-memory snapshot. The snapshot is rebuilt lazily whenever the version
// counter moves (the watcher bumps it on file changes).
type Loader struct {
	dirs []string

	version atomic.Int64

	mu            sync.RWMutex
	cached        []store.Skill
	cachedByID    map[string]*store.Skill
	cachedVersion int64
}

var _ store.SkillStore = (*Loader)(nil)

// NewLoader creates a loader over the given skill root directories.
// Missing directories are tolerated; they may appear later.
func NewLoader(dirs ...string) *Loader {
	l := &Loader{dirs: dirs}
	l.version.Store(1)
	return l
}

// Dirs returns the skill root directories, for the watcher.
func (l *Loader) Dirs() []string {
	return l.dirs
}

// Version returns the current skill set version.
func (l *Loader) Version() int64 {
	return l.version.Load()
}

// BumpVersion invalidates the cached snapshot. The next ListActive or Get
// rescans the directories.
func (l *Loader) BumpVersion() {
	l.version.Add(1)
}

// ListActive returns all active skills, sorted by ID for stable ordering.
func (l *Loader) ListActive(ctx context.Context) ([]store.Skill, error) {
	all, _, err := l.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]store.Skill, 0, len(all))
	for _, s := range all {
		if s.Active {
			active = append(active, s)
		}
	}
	return active, nil
}

// Get returns a skill by ID regardless of active state.
func (l *Loader) Get(ctx context.Context, id string) (*store.Skill, error) {
	_, byID, err := l.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	s, ok := byID[id]
	if !ok {
		return nil, fmt.Errorf("skill not found: %s", id)
	}
	cp := *s
	return &cp, nil
}

// snapshot returns the cached skill set, rescanning if the version moved.
func (l *Loader) snapshot(ctx context.Context) ([]store.Skill, map[string]*store.Skill, error) {
	ver := l.version.Load()

	l.mu.RLock()
	if l.cached != nil && l.cachedVersion == ver {
		skills, byID := l.cached, l.cachedByID
		l.mu.RUnlock()
		return skills, byID, nil
	}
	l.mu.RUnlock()

	skills, err := l.scan(ctx)
	if err != nil {
		return nil, nil, err
	}

	byID := make(map[string]*store.Skill, len(skills))
	for i := range skills {
		byID[skills[i].ID] = &skills[i]
	}

	l.mu.Lock()
	l.cached = skills
	l.cachedByID = byID
	l.cachedVersion = ver
	l.mu.Unlock()

	return skills, byID, nil
}

// scan walks all skill roots. Later roots win on ID collision, so a
// project-local skills dir can override a global one.
func (l *Loader) scan(ctx context.Context) ([]store.Skill, error) {
	byID := make(map[string]store.Skill)

	for _, root := range l.dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, err := os.ReadDir(root)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read skills dir %s: %w", root, err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			id := e.Name()
			if !skillIDRe.MatchString(id) {
				slog.Warn("skipping skill with invalid id", "id", id, "dir", root)
				continue
			}
			path := filepath.Join(root, id, "SKILL.md")
			skill, err := loadSkillFile(id, path)
			if err != nil {
				if !os.IsNotExist(err) {
					slog.Warn("failed to load skill", "id", id, "path", path, "error", err)
				}
				continue
			}
			byID[id] = *skill
		}
	}

	skills := make([]store.Skill, 0, len(byID))
	for _, s := range byID {
		skills = append(skills, s)
	}
	sort.Slice(skills, func(i, j int) bool { return skills[i].ID < skills[j].ID })
	return skills, nil
}

// skillFrontmatter is the YAML header of a SKILL.md file.
type skillFrontmatter struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Category    string   `yaml:"category"`
	Keywords    []string `yaml:"keywords"`
	Active      *bool    `yaml:"active"`
}

// loadSkillFile parses one SKILL.md into a Skill record.
func loadSkillFile(id, path string) (*store.Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	fm, body := splitFrontmatter(string(data))

	var meta skillFrontmatter
	if fm != "" {
		if err := yaml.Unmarshal([]byte(fm), &meta); err != nil {
			return nil, fmt.Errorf("parse frontmatter: %w", err)
		}
	}

	name := meta.Name
	if name == "" {
		name = id
	}
	active := true
	if meta.Active != nil {
		active = *meta.Active
	}

	return &store.Skill{
		ID:          id,
		Name:        name,
		Description: meta.Description,
		Content:     strings.TrimSpace(body),
		Category:    meta.Category,
		Keywords:    meta.Keywords,
		Active:      active,
	}, nil
}

// splitFrontmatter separates the YAML header from the markdown body.
// Files without frontmatter are treated as all body.
func splitFrontmatter(content string) (frontmatter, body string) {
	m := frontmatterRe.FindStringSubmatchIndex(content)
	if m == nil {
		return "", content
	}
	return content[m[2]:m[3]], content[m[1]:]
}
