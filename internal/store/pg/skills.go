package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nextlevelbuilder/skillbase/internal/store"
)

const defaultSkillsCacheTTL = 5 * time.Minute

// SkillStore implements store.SkillStore backed by Postgres.
// ListActive is cached with version-based invalidation plus a TTL safety net
// so multi-instance deployments converge without a version channel.
type SkillStore struct {
	db      *sql.DB
	version atomic.Int64

	mu        sync.RWMutex
	listCache []store.Skill
	listVer   int64
	listTime  time.Time
	ttl       time.Duration
}

var _ store.SkillStore = (*SkillStore)(nil)

func NewSkillStore(db *sql.DB) *SkillStore {
	s := &SkillStore{db: db, ttl: defaultSkillsCacheTTL}
	s.version.Store(1)
	return s
}

func (s *SkillStore) Version() int64 { return s.version.Load() }

func (s *SkillStore) BumpVersion() { s.version.Store(time.Now().UnixMilli()) }

// ListActive returns all active skills, cached per version with TTL.
func (s *SkillStore) ListActive(ctx context.Context) ([]store.Skill, error) {
	currentVer := s.version.Load()

	s.mu.RLock()
	if s.listCache != nil && s.listVer == currentVer && time.Since(s.listTime) < s.ttl {
		result := s.listCache
		s.mu.RUnlock()
		return result, nil
	}
	s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, content, category, keywords, active
		   FROM skills WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	defer rows.Close()

	var result []store.Skill
	for rows.Next() {
		sk, err := scanSkill(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *sk)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.listCache = result
	s.listVer = currentVer
	s.listTime = time.Now()
	s.mu.Unlock()

	return result, nil
}

// Get returns a skill by ID regardless of active state.
func (s *SkillStore) Get(ctx context.Context, id string) (*store.Skill, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, content, category, keywords, active
		   FROM skills WHERE id = $1`, id)
	sk, err := scanSkill(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("skill not found: %s", id)
	}
	return sk, err
}

// Upsert creates or replaces a skill record.
func (s *SkillStore) Upsert(ctx context.Context, sk *store.Skill) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO skills (id, name, description, content, category, keywords, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name, description = EXCLUDED.description,
		   content = EXCLUDED.content, category = EXCLUDED.category,
		   keywords = EXCLUDED.keywords, active = EXCLUDED.active,
		   updated_at = NOW()`,
		sk.ID, sk.Name, sk.Description, sk.Content, sk.Category,
		pqStringArray(sk.Keywords), sk.Active)
	if err != nil {
		return fmt.Errorf("upsert skill: %w", err)
	}
	s.BumpVersion()
	return nil
}

// SetActive toggles a skill's eligibility for search.
func (s *SkillStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE skills SET active = $1, updated_at = NOW() WHERE id = $2`, active, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("skill not found: %s", id)
	}
	s.BumpVersion()
	return nil
}

// Delete removes a skill.
func (s *SkillStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM skills WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("skill not found: %s", id)
	}
	s.BumpVersion()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSkill(row rowScanner) (*store.Skill, error) {
	var sk store.Skill
	var keywords []byte
	if err := row.Scan(&sk.ID, &sk.Name, &sk.Description, &sk.Content,
		&sk.Category, &keywords, &sk.Active); err != nil {
		return nil, err
	}
	scanStringArray(keywords, &sk.Keywords)
	return &sk, nil
}

// pqStringArray converts a Go string slice to a PostgreSQL text[] literal.
func pqStringArray(arr []string) any {
	if arr == nil {
		return "{}"
	}
	return "{" + strings.Join(arr, ",") + "}"
}

// scanStringArray parses a PostgreSQL text[] column (scanned as []byte).
func scanStringArray(data []byte, dest *[]string) {
	if len(data) == 0 {
		return
	}
	s := strings.TrimSuffix(strings.TrimPrefix(string(data), "{"), "}")
	if s == "" {
		return
	}
	*dest = strings.Split(s, ",")
}
