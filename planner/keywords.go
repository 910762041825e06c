package planner

import (
	"regexp"
	"strings"
	"unicode"
)

const maxKeywords = 5

var (
	wordPattern    = regexp.MustCompile(`\w+`)
	alnumPattern   = regexp.MustCompile(`[A-Za-z0-9]+`)
	featureCode    = regexp.MustCompile(`\b[A-Za-z]+[0-9][A-Za-z0-9]*\b`)
	japaneseScript = regexp.MustCompile(`[\x{3040}-\x{309F}\x{30A0}-\x{30FF}\x{4E00}-\x{9FAF}]`)
)

var stopWords = setOf(
	"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for",
	"of", "with", "by", "from", "about", "what", "where", "when", "how",
	"is", "are", "was", "were", "been", "be", "have", "has", "had",
	"do", "does", "did", "will", "would", "could", "should", "may", "might",
)

// technicalStopWords extends stopWords with generic nouns that make poor
// search terms for feature lookups.
var technicalStopWords = union(stopWords, setOf(
	"kind", "type", "sort", "which", "that", "this", "these", "those",
	"i", "me", "my", "we", "you", "your", "it", "its", "can", "any", "there",
))

var domainVocabulary = setOf(
	"ai", "ml", "api", "sdk", "gpu", "cpu", "model", "engine",
	"server", "client", "protocol", "format", "version",
	"feature", "capability", "support", "configuration",
)

// ExtractKeywords returns up to five lowercase query words of three or more
// characters that are not stop words, in query order.
func ExtractKeywords(query string) []string {
	var keywords []string
	for _, w := range wordPattern.FindAllString(strings.ToLower(query), -1) {
		if stopWords[w] || len([]rune(w)) < 3 {
			continue
		}
		keywords = appendUnique(keywords, w)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}

// TechnicalKeywords ranks query words for technical lookups: uppercase or
// short alphanumeric tokens that are not stop words first, then domain vocabulary, then remaining
// longer words. Case is preserved. At most five are returned.
func TechnicalKeywords(query string) []string {
	words := alnumPattern.FindAllString(query, -1)
	var keywords []string

	for _, w := range words {
		if len(w) < 2 || technicalStopWords[strings.ToLower(w)] {
			continue
		}
		if isUpperWord(w) || (len(w) <= 3 && !isDigits(w)) {
			keywords = appendUnique(keywords, w)
		}
	}
	for _, w := range words {
		if domainVocabulary[strings.ToLower(w)] {
			keywords = appendUnique(keywords, w)
		}
	}
	for _, w := range words {
		if len(w) > 3 && !technicalStopWords[strings.ToLower(w)] {
			keywords = appendUnique(keywords, w)
		}
	}

	if len(keywords) > maxKeywords {
		keywords = keywords[:maxKeywords]
	}
	return keywords
}

// FeatureCode returns the first product-code-like token in query, such as
// "A2" or "X100", or "" when there is none.
func FeatureCode(query string) string {
	return featureCode.FindString(query)
}

// Language names the language answers should be written in.
type Language string

const (
	English  Language = "english"
	Japanese Language = "japanese"
)

// DetectLanguage reports Japanese when text contains kana or kanji.
func DetectLanguage(text string) Language {
	if japaneseScript.MatchString(text) {
		return Japanese
	}
	return English
}

func isUpperWord(w string) bool {
	hasLetter := false
	for _, r := range w {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

func isDigits(w string) bool {
	for _, r := range w {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}

func setOf(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

func union(a, b map[string]bool) map[string]bool {
	m := make(map[string]bool, len(a)+len(b))
	for k := range a {
		m[k] = true
	}
	for k := range b {
		m[k] = true
	}
	return m
}
