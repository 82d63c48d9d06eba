package name

import (
	"strings"
	"unicode"

	"github.com/mikey/signup-guard/internal/whitelist"
)

const (
	gibberishUncommonTrigram    = 10
	gibberishUncommonTrigramMax = 30
	gibberishConsonantRun       = 25
	gibberishRandomCaps         = 20
	gibberishNoVCV              = 20
	gibberishLetterSkew         = 15

	consonantRunLength = 4
	vcvMinLength       = 8
	letterSkewRatio    = 0.30
	letterSkewMinLen   = 6
)

func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u', 'y':
		return true
	}
	return false
}

func isConsonant(r rune) bool {
	return unicode.IsLetter(r) && !isVowel(r)
}

// gibberish scores the shape of a name for signs of random generation.
// lower is the folded, lowercased name; original keeps the submitted casing.
func (a *Analyzer) gibberish(lower, original string) (int, []string) {
	score := 0
	var reasons []string

	trigrams := 0
	seen := map[string]struct{}{}
	longRun := false
	missingVCV := false

	for _, token := range whitelist.Tokens(lower) {
		runes := []rune(token)

		for i := 0; i+3 <= len(runes); i++ {
			if !isConsonant(runes[i]) || !isConsonant(runes[i+1]) || !isConsonant(runes[i+2]) {
				continue
			}
			tri := string(runes[i : i+3])
			if _, ok := seen[tri]; ok {
				continue
			}
			seen[tri] = struct{}{}
			if _, common := a.tables.CommonConsonantClusters[tri]; !common {
				trigrams++
			}
		}

		if consonantRun(runes) >= consonantRunLength {
			longRun = true
		}

		if len(runes) > vcvMinLength && !hasVCV(runes) {
			missingVCV = true
		}
	}

	if trigrams > 0 {
		s := trigrams * gibberishUncommonTrigram
		if s > gibberishUncommonTrigramMax {
			s = gibberishUncommonTrigramMax
		}
		score += s
		reasons = append(reasons, "Name contains uncommon letter combinations")
	}
	if longRun {
		score += gibberishConsonantRun
		reasons = append(reasons, "Name contains a long run of consonants")
	}
	if hasRandomCaps(original) {
		score += gibberishRandomCaps
		reasons = append(reasons, "Name has irregular capitalization")
	}
	if missingVCV {
		score += gibberishNoVCV
		reasons = append(reasons, "Name lacks natural syllable structure")
	}
	if letterSkewed(lower) {
		score += gibberishLetterSkew
		reasons = append(reasons, "Name is dominated by a single letter")
	}

	if score > MaxScore {
		score = MaxScore
	}
	return score, reasons
}

func consonantRun(runes []rune) int {
	longest, current := 0, 0
	for _, r := range runes {
		if isConsonant(r) {
			current++
			if current > longest {
				longest = current
			}
		} else {
			current = 0
		}
	}
	return longest
}

func hasVCV(runes []rune) bool {
	for i := 0; i+3 <= len(runes); i++ {
		if isVowel(runes[i]) && isConsonant(runes[i+1]) && isVowel(runes[i+2]) {
			return true
		}
	}
	return false
}

// hasRandomCaps reports a token with two or more lower-to-upper transitions
// after its first letter, like "xVnWoe". Single transitions such as
// "McDonald" or "DeVries" are normal.
func hasRandomCaps(original string) bool {
	for _, token := range strings.FieldsFunc(original, func(r rune) bool {
		return unicode.IsSpace(r) || r == '-' || r == '\''
	}) {
		transitions := 0
		var prev rune
		for i, r := range []rune(token) {
			if i > 0 && unicode.IsUpper(r) && unicode.IsLower(prev) {
				transitions++
			}
			prev = r
		}
		if transitions >= 2 {
			return true
		}
	}
	return false
}

func letterSkewed(lower string) bool {
	counts := map[rune]int{}
	total := 0
	for _, r := range lower {
		if unicode.IsLetter(r) {
			counts[r]++
			total++
		}
	}
	if total < letterSkewMinLen {
		return false
	}
	for _, n := range counts {
		if float64(n)/float64(total) > letterSkewRatio {
			return true
		}
	}
	return false
}
