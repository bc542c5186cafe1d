package clustering

import (
	"strings"
	"unicode"
)

// TitleSimilarity returns the Jaccard index of the lower-cased word sets of a
// and b. Words are split on whitespace and trimmed of surrounding punctuation,
// so "Game 7!!" and "Game 7" share both words. The result is symmetric,
// bounded to [0, 1] and 0 when either side has no words.
func TitleSimilarity(a, b string) float64 {
	wordsA := wordSet(a)
	wordsB := wordSet(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	small, large := wordsA, wordsB
	if len(small) > len(large) {
		small, large = large, small
	}

	intersection := 0
	for w := range small {
		if _, ok := large[w]; ok {
			intersection++
		}
	}
	union := len(wordsA) + len(wordsB) - intersection
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		w := strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if w == "" {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}
