package config

import (
	"regexp"
	"strings"
)

var (
	validSkillIDRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)
	invalidChars   = regexp.MustCompile(`[^a-z0-9_-]+`)
	leadingDash    = regexp.MustCompile(`^-+`)
	trailingDash   = regexp.MustCompile(`-+$`)
)

// NormalizeSkillID converts a user-provided skill name into a valid ID:
//   - Lowercase, max 64 chars
//   - Only [a-z0-9_-] allowed
//   - Invalid chars replaced with "-"
//   - Leading/trailing dashes stripped
//
// Returns "" when nothing usable remains; callers must reject that.
func NormalizeSkillID(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ""
	}

	lower := strings.ToLower(trimmed)
	if validSkillIDRe.MatchString(lower) {
		return lower
	}

	result := invalidChars.ReplaceAllString(lower, "-")
	result = leadingDash.ReplaceAllString(result, "")
	result = trailingDash.ReplaceAllString(result, "")

	if len(result) > 64 {
		result = result[:64]
	}
	return result
}
