package sanitizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MaxNameRunes  = 120
	MaxNotesRunes = 1000
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

func TrimAndNormalize(s string) string {
	s = strings.TrimSpace(s)

	if s == "" {
		return ""
	}

	var result strings.Builder
	var lastWasSpace bool

	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				result.WriteRune(' ')
				lastWasSpace = true
			}
		} else {
			result.WriteRune(r)
			lastWasSpace = false
		}
	}

	return result.String()
}

func dropControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func truncate(limit int) Strategy {
	return func(s string) string {
		if utf8.RuneCountInString(s) <= limit {
			return s
		}
		return strings.TrimSpace(string([]rune(s)[:limit]))
	}
}

// NormalizeSponsorName prepares the display name shown on the public calendar.
func NormalizeSponsorName(name string) string {
	return Pipeline{dropControl, TrimAndNormalize, truncate(MaxNameRunes)}.Apply(name)
}

func NormalizeNotes(notes string) string {
	lines := strings.Split(dropControl(strings.ReplaceAll(notes, "\r\n", "\n")), "\n")

	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = TrimAndNormalize(line)
		if line == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}

	return truncate(MaxNotesRunes)(strings.TrimSpace(strings.Join(out, "\n")))
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeOptional applies fn to a non-nil value; an empty result becomes nil.
func NormalizeOptional(value *string, fn Strategy) *string {
	if value == nil {
		return nil
	}
	s := fn(*value)
	if s == "" {
		return nil
	}
	return &s
}
