package tts

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	repeatedPunct = []*regexp.Regexp{
		regexp.MustCompile(`\.{2,}`),
		regexp.MustCompile(`!{2,}`),
		regexp.MustCompile(`\?{2,}`),
		regexp.MustCompile(`,{2,}`),
	}
	repeatedSpace = regexp.MustCompile(`\s{2,}`)
)

type leadIn struct {
	prefix string
	match  func(lower string) bool
}

// Checked in order, first match wins.
var leadIns = []leadIn{
	{"Indeed, ", startsWithWord("i'm", "i am")},
	{"Certainly, ", startsWithWord("yes", "no")},
	{"I must inform you, ", containsAny("error", "problem")},
}

// Rewrite normalizes text for speech and gives it the assistant's voice:
// runs of punctuation and whitespace collapse, then at most one lead-in is
// prepended and the rest of the sentence is lowercased behind it.
func Rewrite(text string) string {
	for _, re := range repeatedPunct {
		text = re.ReplaceAllStringFunc(text, func(s string) string { return s[:1] })
	}
	text = strings.TrimSpace(repeatedSpace.ReplaceAllString(text, " "))

	lower := strings.ToLower(strings.ReplaceAll(text, "’", "'"))
	for _, l := range leadIns {
		if l.match(lower) {
			return l.prefix + strings.ToLower(text)
		}
	}
	return text
}

func startsWithWord(words ...string) func(string) bool {
	return func(s string) bool {
		for _, w := range words {
			if !strings.HasPrefix(s, w) {
				continue
			}
			rest := []rune(s[len(w):])
			if len(rest) == 0 || !isWordRune(rest[0]) {
				return true
			}
		}
		return false
	}
}

// containsAny matches substrings, so "terrors" counts as an error.
func containsAny(words ...string) func(string) bool {
	return func(s string) bool {
		for _, w := range words {
			if strings.Contains(s, w) {
				return true
			}
		}
		return false
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\''
}
