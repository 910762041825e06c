package planner

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/richinex/docqa/model"
)

const maxFeatureTerms = 3

var (
	questionWords   = setOf("what", "which", "supported", "available")
	capabilityNouns = setOf("ai", "model", "models", "feature", "features", "capability", "capabilities")
	listingNouns    = setOf("md", "markdown", "files")
	featureTerms    = setOf("ai", "model", "gpu", "cpu", "api")
)

// Heuristic classifies query without a model. It always returns exactly one
// strategy:
//   - a product code token (A2, X100) becomes a feature search for the code
//     in its original and lowercase spelling
//   - a question about capabilities becomes a feature search over its
//     short or uppercase terms
//   - "all ... files/md" becomes a Markdown file listing
//   - anything with usable terms becomes a keyword search
//   - everything else becomes general exploration
func Heuristic(query string) []model.Strategy {
	if code := FeatureCode(query); code != "" {
		keywords := appendUnique([]string{code}, strings.ToLower(code))
		return []model.Strategy{model.SpecificFeature(
			fmt.Sprintf("Searching for %s-specific information", code), model.PriorityHigh, keywords...)}
	}

	words := setOf(wordPattern.FindAllString(strings.ToLower(query), -1)...)

	if containsAny(words, questionWords) && containsAny(words, capabilityNouns) {
		keywords := capabilityTerms(query)
		if len(keywords) == 0 {
			keywords = TechnicalKeywords(query)
		}
		if len(keywords) > maxFeatureTerms {
			keywords = keywords[:maxFeatureTerms]
		}
		if len(keywords) > 0 {
			return []model.Strategy{model.SpecificFeature(
				"Searching for specific features: "+strings.Join(keywords, ", "), model.PriorityHigh, keywords...)}
		}
	}

	if words["all"] && containsAny(words, listingNouns) {
		return []model.Strategy{model.FileExploration("Exploring all Markdown files", model.PriorityMedium, "*.md")}
	}

	if keywords := TechnicalKeywords(query); len(keywords) > 0 {
		return []model.Strategy{model.KeywordSearch(
			"Searching for: "+strings.Join(keywords, ", "), model.PriorityMedium, keywords...)}
	}

	return []model.Strategy{model.General("Exploring the documentation", model.PriorityMedium)}
}

// capabilityTerms picks uppercase tokens, short alphanumeric tokens that are
// not stop words, and hardware/model vocabulary from query.
func capabilityTerms(query string) []string {
	var terms []string
	for _, field := range strings.Fields(query) {
		w := strings.TrimFunc(field, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if w == "" {
			continue
		}
		lower := strings.ToLower(w)
		if technicalStopWords[lower] {
			continue
		}
		switch {
		case featureTerms[lower]:
			terms = appendUnique(terms, w)
		case isUpperWord(w) && alnumPattern.FindString(w) == w:
			terms = appendUnique(terms, w)
		case len(w) <= 3 && alnumPattern.FindString(w) == w && !isDigits(w):
			terms = appendUnique(terms, w)
		}
	}
	return terms
}

func containsAny(words, vocabulary map[string]bool) bool {
	for w := range words {
		if vocabulary[w] {
			return true
		}
	}
	return false
}
