package segment

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// DefaultPhrases are outputs the provider is known to produce over silence
// or background noise.
var DefaultPhrases = []string{
	"um",
	"uh",
	"hmm",
	"mm",
	"you",
	"bye",
	"thank you",
	"thanks",
	"thanks for watching",
	"thank you for watching",
	"thank you so much for watching",
	"please subscribe",
	"like and subscribe",
	"subtitles by the amara.org community",
}

// DefaultPatterns strip boilerplate that gets glued onto real speech.
var DefaultPatterns = []string{
	`(?i)[\s,.!]*\b(thanks|thank you) (so much )?for watching[.!]*\s*$`,
	`(?i)[\s,.!]*\bplease (like and )?subscribe[.!]*\s*$`,
	`(?i)^\s*subtitles by the amara\.org community[.!]*`,
}

type Filter struct {
	phrases  map[string]struct{}
	patterns []*regexp.Regexp
}

func NewFilter(phrases []string, patterns []string) (*Filter, error) {
	f := &Filter{phrases: make(map[string]struct{}, len(phrases))}
	for _, p := range phrases {
		if n := normalize(p); n != "" {
			f.phrases[n] = struct{}{}
		}
	}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p, err)
		}
		f.patterns = append(f.patterns, re)
	}
	return f, nil
}

// DefaultFilter never fails; the built-in patterns are known to compile.
func DefaultFilter() *Filter {
	f, err := NewFilter(DefaultPhrases, DefaultPatterns)
	if err != nil {
		panic(err)
	}
	return f
}

type filterFile struct {
	Phrases  []string `yaml:"phrases"`
	Patterns []string `yaml:"patterns"`
}

// LoadFilter builds a filter from the defaults plus the phrases and
// patterns listed in a YAML file. An empty path yields the defaults.
func LoadFilter(path string) (*Filter, error) {
	if path == "" {
		return DefaultFilter(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read filter file: %w", err)
	}
	var ff filterFile
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("parse filter file: %w", err)
	}
	phrases := append(append([]string{}, DefaultPhrases...), ff.Phrases...)
	patterns := append(append([]string{}, DefaultPatterns...), ff.Patterns...)
	return NewFilter(phrases, patterns)
}

// Apply returns the cleaned text, or false when the text should be
// suppressed. Applying it to its own output gives the same output.
func (f *Filter) Apply(raw string) (string, bool) {
	text := strings.TrimSpace(raw)
	for {
		if text == "" {
			return "", false
		}
		if _, ok := f.phrases[normalize(text)]; ok {
			return "", false
		}
		stripped := text
		for _, re := range f.patterns {
			stripped = strings.TrimSpace(re.ReplaceAllString(stripped, ""))
		}
		if stripped == text {
			return text, true
		}
		text = stripped
	}
}

func normalize(s string) string {
	s = strings.Map(func(r rune) rune {
		if r != '\'' && unicode.IsPunct(r) {
			return ' '
		}
		return unicode.ToLower(r)
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
