// Package namefilter screens member display names and goal names.
package namefilter

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Config holds the name filter configuration
type Config struct {
	Enabled     bool     `yaml:"enabled"`
	MinLength   int      `yaml:"min_length"`
	MaxLength   int      `yaml:"max_length"`
	BannedWords []string `yaml:"banned_words"` // partial match
	BannedNames []string `yaml:"banned_names"` // exact match
}

// DefaultConfig allows 1-40 character names with no word list.
func DefaultConfig() Config {
	return Config{Enabled: true, MinLength: 1, MaxLength: 40}
}

// RejectedError explains why a name was refused.
type RejectedError struct {
	Name   string
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("name %q rejected: %s", e.Name, e.Reason)
}

// Filter validates names against length limits and banned words.
type Filter struct {
	enabled     bool
	minLength   int
	maxLength   int
	bannedWords []string
	bannedNames map[string]struct{}
}

// New creates a Filter. A disabled config accepts everything.
func New(cfg Config) *Filter {
	f := &Filter{
		enabled:     cfg.Enabled,
		minLength:   cfg.MinLength,
		maxLength:   cfg.MaxLength,
		bannedNames: make(map[string]struct{}, len(cfg.BannedNames)),
	}
	for _, word := range cfg.BannedWords {
		if word = strings.ToLower(strings.TrimSpace(word)); word != "" {
			f.bannedWords = append(f.bannedWords, word)
		}
	}
	for _, name := range cfg.BannedNames {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			f.bannedNames[name] = struct{}{}
		}
	}
	return f
}

// Check returns a *RejectedError when name is not allowed.
func (f *Filter) Check(name string) error {
	if !f.enabled {
		return nil
	}

	trimmed := strings.TrimSpace(name)
	n := utf8.RuneCountInString(trimmed)
	switch {
	case n < f.minLength:
		return &RejectedError{Name: name, Reason: fmt.Sprintf("shorter than %d characters", f.minLength)}
	case f.maxLength > 0 && n > f.maxLength:
		return &RejectedError{Name: name, Reason: fmt.Sprintf("longer than %d characters", f.maxLength)}
	}

	lower := strings.ToLower(trimmed)
	if _, ok := f.bannedNames[lower]; ok {
		return &RejectedError{Name: name, Reason: "reserved name"}
	}
	for _, word := range f.bannedWords {
		if strings.Contains(lower, word) {
			return &RejectedError{Name: name, Reason: "contains a word that is not allowed"}
		}
	}
	return nil
}
