package dsa

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func bruteCount(text, pattern string) int {
	count := 0
	for i := 0; i+len(pattern) <= len(text); i++ {
		if text[i:i+len(pattern)] == pattern {
			count++
		}
	}
	return count
}

func TestCountMatchesBruteForce(t *testing.T) {
	texts := []string{
		"banana",
		"mississippi",
		"aaaaaa",
		"the A2 model supports the A2 api and the a2 gpu",
		"",
	}
	patterns := []string{"a", "an", "ana", "ss", "issi", "aa", "A2", "the", "zzz", "i"}

	for _, text := range texts {
		sa := BuildSuffixArray(text)
		for _, p := range patterns {
			if got, want := sa.Count(p), bruteCount(text, p); got != want {
				t.Errorf("Count(%q) in %q = %d, want %d", p, text, got, want)
			}
		}
	}
}

func TestSearchPositionsSorted(t *testing.T) {
	sa := BuildSuffixArray("banana")
	if diff := cmp.Diff([]int{1, 3, 5}, sa.Search("a")); diff != "" {
		t.Errorf("positions mismatch (-want +got):\n%s", diff)
	}
	if got := sa.Search(""); len(got) != 0 {
		t.Errorf("expected no positions for empty pattern, got %v", got)
	}
}

func TestFoldedIndexScore(t *testing.T) {
	idx := NewFoldedIndex("GPU support: the gpu driver. API docs for the Api.")
	if got := idx.Score([]string{"GPU", "api"}); got != 4 {
		t.Errorf("expected score 4, got %d", got)
	}
	if got := idx.Score(nil); got != 0 {
		t.Errorf("expected 0 for no terms, got %d", got)
	}
}

func TestBuildLargeText(t *testing.T) {
	text := strings.Repeat("keyword filler text ", 500)
	sa := BuildSuffixArray(text)
	if sa.Len() != len(text) {
		t.Fatalf("unexpected length %d", sa.Len())
	}
	if got := sa.Count("keyword"); got != 500 {
		t.Errorf("expected 500 occurrences, got %d", got)
	}
}
