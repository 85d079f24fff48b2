package search

import (
	"log/slog"
	"regexp"
	"strings"
)

// Condition kinds.
const (
	KindKeyword  = "keyword"
	KindRegex    = "regex"
	KindCategory = "category"
	KindTag      = "tag"
)

// Searchable fields.
const (
	FieldAll         = "all"
	FieldName        = "name"
	FieldDescription = "description"
	FieldContent     = "content"
	FieldKeywords    = "keywords"
	FieldCategory    = "category"
	FieldTags        = "tags"
)

// Condition is one weighted matching rule.
type Condition struct {
	Kind    string  `json:"kind"`
	Pattern string  `json:"pattern"`
	Weight  float64 `json:"weight"`
	Field   string  `json:"field"`
}

// Query is a weighted, multi-condition search request. Built once per
// retrieval call; immutable afterwards.
type Query struct {
	Conditions []Condition `json:"conditions"`
	Intent     string      `json:"intent"`
	Limit      int         `json:"limit"`
	MinScore   float64     `json:"minScore"`
}

const (
	defaultQueryLimit = 10
	defaultMinScore   = 0.3

	maxSynonyms = 3

	weightKeyword  = 1.0
	weightSynonym  = 0.8
	weightLanguage = 1.2
	weightNamed    = 1.1
	weightRegex    = 0.9
	weightTag      = 0.5
)

// synonymTable holds bidirectional synonym entries for common technical
// terms, in fixed order so query construction stays deterministic.
var synonymTable = []struct {
	key    string
	values []string
}{
	{"装饰器", []string{"decorator", "wrapper"}},
	{"decorator", []string{"装饰器", "wrapper"}},
	{"函数", []string{"function", "func", "方法"}},
	{"function", []string{"函数", "func", "方法"}},
	{"类", []string{"class", "类型"}},
	{"class", []string{"类", "类型"}},
	{"接口", []string{"interface", "api"}},
	{"interface", []string{"接口", "api"}},
	{"异步", []string{"async", "asyncio", "协程"}},
	{"async", []string{"异步", "asyncio", "协程"}},
	{"数据库", []string{"database", "db", "sql"}},
	{"database", []string{"数据库", "db", "sql"}},
	{"框架", []string{"framework"}},
	{"framework", []string{"框架"}},
}

// intentTags maps an intent to category hint tags.
var intentTags = map[string][]string{
	"learn":   {"教程", "入门", "基础"},
	"search":  {},
	"compare": {"对比", "比较"},
	"ask":     {"问答", "FAQ"},
	"create":  {"模板", "示例", "代码"},
}

// QueryBuilder turns an intent result into a weighted search query.
type QueryBuilder struct{}

// NewQueryBuilder creates a query builder.
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{}
}

// Build constructs the query. Condition order is the insertion order below
// and is reproducible for a given intent result; conditions are never
// removed or reweighted after construction.
func (b *QueryBuilder) Build(intent IntentResult) Query {
	var conditions []Condition

	// 1. Keywords: primary condition plus up to 3 synonyms each.
	for _, kw := range intent.Keywords {
		conditions = append(conditions, Condition{
			Kind:    KindKeyword,
			Pattern: kw,
			Weight:  weightKeyword,
			Field:   FieldAll,
		})
		for _, syn := range lookupSynonyms(kw) {
			conditions = append(conditions, Condition{
				Kind:    KindKeyword,
				Pattern: syn,
				Weight:  weightSynonym,
				Field:   FieldAll,
			})
		}
	}

	// 2. Entities: languages bias the category, frameworks/tools the name.
	for _, ent := range intent.Entities {
		switch ent.Type {
		case "language":
			conditions = append(conditions, Condition{
				Kind:    KindCategory,
				Pattern: ent.Value,
				Weight:  weightLanguage,
				Field:   FieldCategory,
			})
		case "framework", "tool":
			conditions = append(conditions, Condition{
				Kind:    KindKeyword,
				Pattern: ent.Value,
				Weight:  weightNamed,
				Field:   FieldName,
			})
		}
	}

	// 3. Intent category hints.
	for _, tag := range intentTags[intent.Intent] {
		conditions = append(conditions, Condition{
			Kind:    KindTag,
			Pattern: tag,
			Weight:  weightTag,
			Field:   FieldTags,
		})
	}

	// 4. One consolidated OR-regex over content for grep-like matching.
	if len(intent.Keywords) > 0 {
		escaped := make([]string, len(intent.Keywords))
		for i, kw := range intent.Keywords {
			escaped[i] = regexp.QuoteMeta(kw)
		}
		conditions = append(conditions, Condition{
			Kind:    KindRegex,
			Pattern: strings.Join(escaped, "|"),
			Weight:  weightRegex,
			Field:   FieldContent,
		})
	}

	slog.Info("search query built",
		"conditions", len(conditions),
		"intent", intent.Intent,
	)

	return Query{
		Conditions: conditions,
		Intent:     intent.Intent,
		Limit:      defaultQueryLimit,
		MinScore:   defaultMinScore,
	}
}

// lookupSynonyms returns up to 3 synonyms for a keyword, case-insensitive,
// in table order with duplicates removed.
func lookupSynonyms(keyword string) []string {
	lower := strings.ToLower(keyword)
	var out []string
	seen := make(map[string]bool)

	add := func(s string) {
		if len(out) >= maxSynonyms || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	for _, entry := range synonymTable {
		if strings.ToLower(entry.key) == lower {
			for _, v := range entry.values {
				add(v)
			}
			continue
		}
		for _, v := range entry.values {
			if strings.ToLower(v) == lower {
				add(entry.key)
				break
			}
		}
	}
	return out
}
