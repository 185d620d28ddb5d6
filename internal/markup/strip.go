package markup

import (
	"regexp"
	"strings"
	"unicode"
)

var leadingHashRe = regexp.MustCompile(`(?m)^#+\s*`)

// StripMarkdown removes markdown symbols from text that should read as
// plain prose, such as the meeting-flow dossier. Short standalone lines
// that look like headings are re-cased word by word.
func StripMarkdown(text string) string {
	s := leadingHashRe.ReplaceAllString(text, "")
	s = boldRe.ReplaceAllString(s, "$1")
	s = italicRe.ReplaceAllString(s, "$1")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "•") {
			continue
		}
		r := []rune(trimmed)
		if !unicode.IsLetter(r[0]) {
			continue
		}
		words := strings.Fields(trimmed)
		if len(words) > 5 {
			continue
		}
		for j, w := range words {
			words[j] = capitalizeWord(w)
		}
		lines[i] = strings.Join(words, " ")
	}
	return strings.Join(lines, "\n")
}

func capitalizeWord(w string) string {
	r := []rune(w)
	if len(r) == 0 {
		return w
	}
	r[0] = unicode.ToUpper(r[0])
	for i := 1; i < len(r); i++ {
		r[i] = unicode.ToLower(r[i])
	}
	return string(r)
}
