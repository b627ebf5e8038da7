// Package profanity screens free-response answers before they reach a poll.
package profanity

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
)

var defaultWords = []string{
	"arse", "arsehole", "ass", "asshole", "bastard", "bitch", "bollocks",
	"bullshit", "crap", "cunt", "damn", "dick", "dickhead", "fuck", "fucked",
	"fucker", "fucking", "motherfucker", "piss", "pissed", "prick", "shit",
	"shitty", "slut", "twat", "wanker", "whore",
}

// Filter matches whole words case-insensitively, so "class" never trips "ass".
type Filter struct {
	banned map[string]struct{}
}

// New builds a filter from the built-in list plus any extra words.
func New(extra ...string) *Filter {
	f := &Filter{banned: make(map[string]struct{}, len(defaultWords)+len(extra))}
	for _, w := range defaultWords {
		f.add(w)
	}
	for _, w := range extra {
		f.add(w)
	}
	return f
}

// LoadFile builds a filter from the built-in list plus one word per line of
// path. Blank lines and lines starting with # are skipped.
func LoadFile(path string) (*Filter, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open banned words file: %w", err)
	}
	defer file.Close()

	var words []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read banned words file: %w", err)
	}
	return New(words...), nil
}

func (f *Filter) add(word string) {
	word = strings.ToLower(strings.TrimSpace(word))
	if word != "" {
		f.banned[word] = struct{}{}
	}
}

// Check returns the offending words of text in order of first appearance,
// each once. An empty result means the text is clean.
func (f *Filter) Check(text string) []string {
	var hits []string
	seen := make(map[string]bool)
	for _, word := range strings.FieldsFunc(strings.ToLower(text), isSeparator) {
		if _, bad := f.banned[word]; bad && !seen[word] {
			seen[word] = true
			hits = append(hits, word)
		}
	}
	return hits
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
