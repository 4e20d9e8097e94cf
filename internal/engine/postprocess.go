package engine

import (
	"log/slog"
	"regexp"
	"strings"
)

// Styler rewrites rendered reply text: forbidden phrases are removed
// verbatim, then the configured regex rules run. Rules apply to output
// only, never to what the model receives.
type Styler struct {
	forbidden []string
	rules     []styleRule
}

type styleRule struct {
	pattern *regexp.Regexp
	repl    string
}

// NewStyler compiles "pattern=>replacement" rules. Malformed rules are
// skipped with a warning so one bad rule cannot disable the rest.
func NewStyler(rules, forbidden []string) *Styler {
	s := &Styler{}
	for _, phrase := range forbidden {
		if phrase = strings.TrimSpace(phrase); phrase != "" {
			s.forbidden = append(s.forbidden, phrase)
		}
	}
	for _, raw := range rules {
		pattern, repl, ok := strings.Cut(raw, "=>")
		if !ok {
			slog.Warn("style rule missing '=>' separator, skipping", "rule", raw)
			continue
		}
		re, err := regexp.Compile(strings.TrimSpace(pattern))
		if err != nil {
			slog.Warn("style rule pattern invalid, skipping", "rule", raw, "error", err.Error())
			continue
		}
		s.rules = append(s.rules, styleRule{pattern: re, repl: repl})
	}
	return s
}

// Apply strips forbidden phrases, runs every rule in order, and trims
// the result.
func (s *Styler) Apply(text string) string {
	if s == nil {
		return text
	}
	for _, phrase := range s.forbidden {
		text = strings.ReplaceAll(text, phrase, "")
	}
	for _, rule := range s.rules {
		text = rule.pattern.ReplaceAllString(text, rule.repl)
	}
	return strings.TrimSpace(text)
}
