package orchestration

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseStructure(t *testing.T) {
	listing := "./README.md\n./docs/index.md\n./docs/setup.txt\n./api/v1/ref.rst\n\n... (output truncated)\n"
	fs := ParseStructure(listing)

	want := &FileStructure{
		TotalFiles:    4,
		FileTypes:     map[string]int{"md": 2, "txt": 1, "rst": 1},
		Directories:   []string{"api/v1", "docs"},
		MarkdownFiles: []string{"./README.md", "./docs/index.md"},
		IndexFiles:    []string{"./docs/index.md"},
	}
	if diff := cmp.Diff(want, fs); diff != "" {
		t.Errorf("structure mismatch (-want +got):\n%s", diff)
	}
}

func TestStructureSummary(t *testing.T) {
	var listing strings.Builder
	for _, dir := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"} {
		listing.WriteString("./" + dir + "/doc.md\n")
	}
	summary := ParseStructure(listing.String()).Summary()

	if !strings.Contains(summary, "12 files (md: 12)") {
		t.Errorf("unexpected summary %q", summary)
	}
	if !strings.HasSuffix(summary, "and 2 more") {
		t.Errorf("expected the directory list to be capped, got %q", summary)
	}

	var unknown *FileStructure
	if got := unknown.Summary(); got != "Documentation structure: unknown" {
		t.Errorf("unexpected summary for nil structure %q", got)
	}
}

func TestSearchTermsAndGrepPaths(t *testing.T) {
	if diff := cmp.Diff([]string{"rf", "A2", "gpu"}, searchTerms([]string{"--rf", " ", "A2", "gpu", "api"})); diff != "" {
		t.Errorf("terms mismatch (-want +got):\n%s", diff)
	}

	output := "./a.md\x001:alpha\n./notes:v2.md\x002:beta\nno separator here\n./c.md\x003:gamma\n"
	if diff := cmp.Diff([]string{"./a.md", "./notes:v2.md"}, grepPaths(output, 3)); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
}

func TestPreviewKeepsRunesWhole(t *testing.T) {
	if got := preview("日本語", 4); got != "日..." {
		t.Errorf("unexpected preview %q", got)
	}
	if got := preview("short", 10); got != "short" {
		t.Errorf("expected untouched text, got %q", got)
	}
}
