package orchestration

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/richinex/docqa/cache"
)

func TestRankEntriesByOccurrence(t *testing.T) {
	entries := []cache.Entry{
		{Path: "./README.md", Content: "Welcome."},
		{Path: "./docs/gpu.md", Content: "GPU support: the gpu driver needs a GPU."},
		{Path: "./api/ref.md", Content: "The API exposes gpu status."},
		{Path: "./docs/other.md", Content: "Nothing here."},
	}

	var got []string
	for _, e := range rankEntries(entries, "Is GPU acceleration supported?") {
		got = append(got, e.Path)
	}
	want := []string{"./docs/gpu.md", "./api/ref.md", "./README.md", "./docs/other.md"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ranking mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupName(t *testing.T) {
	tests := map[string]string{
		"./README.md":        "root",
		"./docs/a.md":        "docs",
		"./docs/sub/deep.md": "docs",
		"/abs/elsewhere.md":  "abs",
	}
	for in, want := range tests {
		if got := groupName(in); got != want {
			t.Errorf("groupName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildContextGroupsAndCaps(t *testing.T) {
	var entries []cache.Entry
	for _, p := range []string{"./docs/1.md", "./docs/2.md", "./docs/3.md", "./docs/4.md", "./README.md"} {
		entries = append(entries, cache.Entry{Path: p, Content: "body of " + p})
	}
	ctx := buildContext(entries)

	if !strings.Contains(ctx, "### DOCS Documentation:") || !strings.Contains(ctx, "### ROOT Documentation:") {
		t.Errorf("expected group headers, got:\n%s", ctx)
	}
	if strings.Contains(ctx, "./docs/4.md") {
		t.Error("expected at most three files per group")
	}
	if strings.Index(ctx, "DOCS") > strings.Index(ctx, "ROOT") {
		t.Error("expected groups in ranking order")
	}

	long := []cache.Entry{}
	for _, dir := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		long = append(long, cache.Entry{Path: "./" + dir + "/x.md", Content: strings.Repeat("y", 2000)})
	}
	if got := len(buildContext(long)); got > maxContextBytes {
		t.Errorf("expected context capped at %d bytes, got %d", maxContextBytes, got)
	}
}

func TestSynthesisPromptCarriesContext(t *testing.T) {
	structure := ParseStructure("./docs/a.md\n./docs/b.txt\n")
	prompt := synthesisPrompt("A2はどのAIに対応していますか？", []string{"From ./docs/a.md: A2 runs vision models"}, structure, "CONTEXT-BODY")

	for _, want := range []string{
		"Query language: japanese",
		"- From ./docs/a.md: A2 runs vision models",
		"2 files",
		"Do NOT mention file paths.",
		"CONTEXT-BODY",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("expected prompt to contain %q", want)
		}
	}

	if prompt := synthesisPrompt("what?", nil, nil, ""); !strings.Contains(prompt, "Key insights discovered:\nNone") {
		t.Error("expected None when there are no insights")
	}
}
