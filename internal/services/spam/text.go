package spam

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonTokenChars = regexp.MustCompile(`[^\pL\pN\s]+`)
	// no trailing period allowed
	urlRegex = regexp.MustCompile(`(?:(?:https?|ftp):\/\/)?[\w/\-?=%.]+\.[a-zA-Z]{2,}[\w/\-&?=%.]*[\w/\-&?=%]*`)
)

// https://en.wikipedia.org/wiki/GTUBE
const gtubeString = "XJS*C4JDBQADN1.NSBN3*2IDNEN*GTUBE-STANDARD-ANTI-UBE-TEST-EMAIL*C.34X"

// tokenize lower-cases, strips diacritics and splits on anything that is not a letter or digit.
func tokenize(text string) []string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	bare := strings.ToLower(nonTokenChars.ReplaceAllString(text, " "))
	folded, _, err := transform.String(folder, bare)
	if err != nil {
		folded = bare
	}
	return strings.Fields(folded)
}

func extractURLs(text string) []string {
	return urlRegex.FindAllString(text, -1)
}

// upperRatio returns the share of upper-case letters among all cased letters.
func upperRatio(text string) (float64, int) {
	var upper, cased int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		if unicode.IsUpper(r) {
			upper++
			cased++
		} else if unicode.IsLower(r) {
			cased++
		}
	}
	if cased == 0 {
		return 0, 0
	}
	return float64(upper) / float64(cased), cased
}

// dominantTokenShare returns the share of the most frequent token and its count.
func dominantTokenShare(tokens []string) (float64, int) {
	if len(tokens) == 0 {
		return 0, 0
	}
	counts := make(map[string]int, len(tokens))
	top := 0
	for _, tok := range tokens {
		counts[tok]++
		if counts[tok] > top {
			top = counts[tok]
		}
	}
	return float64(top) / float64(len(tokens)), top
}
