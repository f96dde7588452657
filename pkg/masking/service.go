// Package masking redacts credentials from diagnostic text before it is
// logged, stored in transcripts, or pushed to notification channels.
package masking

import (
	"log/slog"
	"regexp"
	"strings"
)

// Pattern is one named regex rewrite.
type Pattern struct {
	Name        string
	Pattern     string
	Replacement string
}

// builtinPatterns cover the credential shapes that show up in provider
// error bodies and request dumps.
var builtinPatterns = []Pattern{
	{
		Name:        "bearer_token",
		Pattern:     `(?i)bearer\s+[a-z0-9._\-]+`,
		Replacement: "Bearer [REDACTED]",
	},
	{
		Name:        "api_key_assignment",
		Pattern:     `(?i)(api[_-]?key\s*[=:]\s*)[^\s,;"']+`,
		Replacement: "${1}[REDACTED]",
	},
	{
		Name:        "provider_secret",
		Pattern:     `\bsk-[A-Za-z0-9_\-]{12,}\b`,
		Replacement: "sk-[REDACTED]",
	},
	{
		Name:        "url_credentials",
		Pattern:     `://[^/\s:@]+:[^/\s@]+@`,
		Replacement: "://[REDACTED]@",
	},
}

type compiledPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Service applies the redaction patterns. Patterns are compiled once at
// construction; invalid custom patterns are logged and skipped. Masking
// itself is pure string rewriting and safe for concurrent use.
type Service struct {
	patterns []*compiledPattern
}

// NewService builds a masker from the built-in patterns plus any custom ones.
func NewService(custom ...Pattern) *Service {
	s := &Service{}
	all := make([]Pattern, 0, len(builtinPatterns)+len(custom))
	all = append(all, builtinPatterns...)
	all = append(all, custom...)
	for _, p := range all {
		compiled, err := regexp.Compile(p.Pattern)
		if err != nil {
			slog.Error("Failed to compile masking pattern, skipping",
				"pattern", p.Name, "error", err)
			continue
		}
		s.patterns = append(s.patterns, &compiledPattern{
			name:        p.Name,
			regex:       compiled,
			replacement: p.Replacement,
		})
	}
	return s
}

// Mask rewrites every credential match in text.
func (s *Service) Mask(text string) string {
	masked := text
	for _, p := range s.patterns {
		masked = p.regex.ReplaceAllString(masked, p.replacement)
	}
	return masked
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Excerpt masks text and compacts it into a bounded single-line excerpt
// safe to embed in logs and explain payloads. A limit of 0 means unbounded.
func (s *Service) Excerpt(text string, limit int) string {
	compact := strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
	masked := s.Mask(compact)
	if limit > 0 {
		if runes := []rune(masked); len(runes) > limit {
			masked = string(runes[:limit])
		}
	}
	return masked
}
