package identity

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	titleCaser   = cases.Title(language.English)
	sepRe        = regexp.MustCompile(`[-_.]`)
	camelRe      = regexp.MustCompile(`([a-z])([A-Z])`)
	hostPrefixes = []string{"www.", "mail.", "smtp.", "pop.", "imap."}
)

// CompanyNameFromDomain converts the registrable part of an email domain
// into a presentable client name:
//
//	techify-solutions -> Techify Solutions
//	theshop           -> The Shop
//	abc-corp          -> Abc Corp
//
// Long single-word domains are split on a best-effort vowel/consonant
// boundary ("sunrise" -> "Sun Rise"); words with no confident boundary
// are title-cased whole.
func CompanyNameFromDomain(domain string) string {
	if domain == "" {
		return "Unknown Client"
	}

	clean := strings.ToLower(strings.TrimSpace(domain))
	for _, p := range hostPrefixes {
		clean = strings.TrimPrefix(clean, p)
	}

	parts := splitNonEmpty(sepRe.Split(clean, -1))
	if len(parts) == 0 {
		return "Unknown Client"
	}

	if len(parts) == 1 {
		return nameFromSingleWord(parts[0])
	}

	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i == 0 && p == "the" {
			out = append(out, "The")
			continue
		}
		out = append(out, titleCaser.String(p))
	}
	return strings.Join(out, " ")
}

func nameFromSingleWord(word string) string {
	if strings.HasPrefix(word, "the") && len(word) > 3 {
		rest := word[3:]
		segments := naturalBreaks(rest)
		titled := make([]string, len(segments))
		for i, s := range segments {
			titled[i] = titleCaser.String(s)
		}
		return "The " + strings.Join(titled, " ")
	}

	// camelCase domains split on the case boundary.
	spaced := camelRe.ReplaceAllString(word, "$1 $2")
	if spaced != word {
		return titleCaser.String(spaced)
	}

	if len(word) > 6 {
		segments := naturalBreaks(word)
		if len(segments) > 1 {
			titled := make([]string, len(segments))
			for i, s := range segments {
				titled[i] = titleCaser.String(s)
			}
			return strings.Join(titled, " ")
		}
	}
	return titleCaser.String(word)
}

func isVowel(b byte) bool {
	return strings.IndexByte("aeiou", b) >= 0
}

// naturalBreaks guesses a word boundary inside a concatenated domain word
// using vowel/consonant transition patterns, preferring the break closest
// to the middle. Single-segment result means no confident break exists.
func naturalBreaks(word string) []string {
	if len(word) <= 4 {
		return []string{word}
	}

	var breaks []int

	// Vowel, consonant, vowel: break before the consonant onset.
	for i := 1; i < len(word)-1; i++ {
		if isVowel(word[i-1]) && !isVowel(word[i]) && isVowel(word[i+1]) {
			breaks = append(breaks, i)
		}
	}
	// Doubled consonant.
	for i := 1; i < len(word)-1; i++ {
		if word[i-1] == word[i] && !isVowel(word[i]) {
			breaks = append(breaks, i)
		}
	}
	// Consonant cluster opening into a vowel.
	for i := 2; i < len(word)-1; i++ {
		if !isVowel(word[i-2]) && !isVowel(word[i-1]) && isVowel(word[i]) {
			breaks = append(breaks, i-1)
		}
	}

	if len(breaks) > 0 {
		mid := len(word) / 2
		best := breaks[0]
		for _, b := range breaks[1:] {
			if abs(b-mid) < abs(best-mid) {
				best = b
			}
		}
		if best > 0 && best < len(word) {
			return []string{word[:best], word[best:]}
		}
	}

	if len(word) > 8 {
		mid := len(word) / 2
		for offset := 1; offset <= 2; offset++ {
			for _, pos := range []int{mid - offset, mid + offset} {
				if pos > 0 && pos < len(word)-1 && isVowel(word[pos-1]) && !isVowel(word[pos]) {
					return []string{word[:pos], word[pos:]}
				}
			}
		}
	}

	return []string{word}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func splitNonEmpty(parts []string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
