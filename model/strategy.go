package model

import (
	"fmt"
	"strings"
)

// Kind identifies what a search strategy does and which payload field it reads.
type Kind int

const (
	// KindKeywordSearch greps the corpus for Keywords.
	KindKeywordSearch Kind = iota
	// KindTopicSearch finds files whose names mention Topic.
	KindTopicSearch
	// KindFileExploration lists files matching Patterns and previews them.
	KindFileExploration
	// KindSpecificFeature greps for exact feature names in Keywords, case-sensitive and not.
	KindSpecificFeature
	// KindDeepContentAnalysis reads Files in full and asks the model for insights.
	KindDeepContentAnalysis
	// KindGeneral explores the corpus layout and its readme.
	KindGeneral
)

var kindNames = [...]string{
	KindKeywordSearch:       "keyword_search",
	KindTopicSearch:         "topic_search",
	KindFileExploration:     "file_exploration",
	KindSpecificFeature:     "specific_feature",
	KindDeepContentAnalysis: "deep_content_analysis",
	KindGeneral:             "general",
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// ParseKind parses a wire name (case-insensitive, dashes or underscores).
func ParseKind(s string) (Kind, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown strategy type: %q", s)
}

// Parallel reports whether strategies of this kind only read and grep and
// have no dependency on results of earlier steps.
func (k Kind) Parallel() bool {
	switch k {
	case KindKeywordSearch, KindSpecificFeature:
		return true
	default:
		return false
	}
}

// Priority orders strategies within their execution group.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityMedium
	PriorityLow
)

// String returns the wire name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "medium"
	}
}

// ParsePriority parses a wire name. Anything unrecognized is Medium.
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// Strategy is one planned unit of search work.
// Only the payload field belonging to Kind is meaningful:
// Keywords for keyword and feature search, Topic for topic search,
// Patterns for file exploration, Files for deep analysis. General has none.
type Strategy struct {
	Kind        Kind
	Description string
	Priority    Priority
	Keywords    []string
	Topic       string
	Patterns    []string
	Files       []string
}

// KeywordSearch creates a keyword search strategy.
func KeywordSearch(description string, priority Priority, keywords ...string) Strategy {
	return Strategy{Kind: KindKeywordSearch, Description: description, Priority: priority, Keywords: keywords}
}

// SpecificFeature creates a feature search strategy.
func SpecificFeature(description string, priority Priority, keywords ...string) Strategy {
	return Strategy{Kind: KindSpecificFeature, Description: description, Priority: priority, Keywords: keywords}
}

// TopicSearch creates a topic search strategy.
func TopicSearch(description string, priority Priority, topic string) Strategy {
	return Strategy{Kind: KindTopicSearch, Description: description, Priority: priority, Topic: topic}
}

// FileExploration creates a file exploration strategy.
func FileExploration(description string, priority Priority, patterns ...string) Strategy {
	return Strategy{Kind: KindFileExploration, Description: description, Priority: priority, Patterns: patterns}
}

// DeepContentAnalysis creates a deep analysis strategy.
func DeepContentAnalysis(description string, priority Priority, files ...string) Strategy {
	return Strategy{Kind: KindDeepContentAnalysis, Description: description, Priority: priority, Files: files}
}

// General creates a general exploration strategy.
func General(description string, priority Priority) Strategy {
	return Strategy{Kind: KindGeneral, Description: description, Priority: priority}
}

// QueryAnalysis is the planner's reading of the user query.
type QueryAnalysis struct {
	Understanding        string   `json:"understanding"`
	KeyConcepts          []string `json:"key_concepts"`
	ImplicitRequirements []string `json:"implicit_requirements"`
	SearchAreas          []string `json:"search_areas"`
}
