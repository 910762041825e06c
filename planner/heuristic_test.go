package planner

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/richinex/docqa/model"
)

func TestHeuristic(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		kind     model.Kind
		keywords []string
		patterns []string
	}{
		{"product code", "What kind of AI is supported on A2?", model.KindSpecificFeature, []string{"A2", "a2"}, nil},
		{"lowercase code", "does the x100 have wifi", model.KindSpecificFeature, []string{"x100"}, nil},
		{"capability question", "Which AI models are available on the GPU?", model.KindSpecificFeature, []string{"AI", "GPU"}, nil},
		{"list files", "show me all md files", model.KindFileExploration, nil, []string{"*.md"}},
		{"keywords", "installation requirements", model.KindKeywordSearch, []string{"installation", "requirements"}, nil},
		{"nothing usable", "what is it?", model.KindGeneral, nil, nil},
		{"empty", "", model.KindGeneral, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Heuristic(tt.query)
			if len(got) != 1 {
				t.Fatalf("expected exactly one strategy, got %d", len(got))
			}
			if got[0].Kind != tt.kind {
				t.Fatalf("expected %s, got %s", tt.kind, got[0].Kind)
			}
			if diff := cmp.Diff(tt.keywords, got[0].Keywords); diff != "" {
				t.Errorf("keywords mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.patterns, got[0].Patterns); diff != "" {
				t.Errorf("patterns mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"How do I install the SDK on Linux?", []string{"install", "sdk", "linux"}},
		{"a an the is", nil},
		{"one two three four five six seven", []string{"one", "two", "three", "four", "five"}},
		{"api API Api", []string{"api"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, ExtractKeywords(tt.query)); diff != "" {
			t.Errorf("ExtractKeywords(%q) mismatch (-want +got):\n%s", tt.query, diff)
		}
	}
}

func TestTechnicalKeywords(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"What kind of AI is supported on A2?", []string{"AI", "A2", "supported"}},
		{"configure the model engine", []string{"model", "engine", "configure"}},
		{"Which protocol version does the SDK support", []string{"SDK", "protocol", "version", "support"}},
		{"123 456", nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, TechnicalKeywords(tt.query)); diff != "" {
			t.Errorf("TechnicalKeywords(%q) mismatch (-want +got):\n%s", tt.query, diff)
		}
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := map[string]Language{
		"What is supported?":     English,
		"A2でサポートされているAIは？": Japanese,
		"設定方法":                   Japanese,
		"":                       English,
	}
	for text, want := range tests {
		if got := DetectLanguage(text); got != want {
			t.Errorf("DetectLanguage(%q) = %s, want %s", text, got, want)
		}
	}
}
