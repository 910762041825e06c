package cli

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/richinex/docqa/audit"
	"github.com/richinex/docqa/config"
	"github.com/richinex/docqa/llm"
	"github.com/richinex/docqa/model"
	"github.com/richinex/docqa/orchestration"
	"github.com/richinex/docqa/storage"
	"github.com/richinex/docqa/tools"
)

type cannedModel struct{ reply string }

func (m cannedModel) Complete(context.Context, string, llm.GenerationParams) (string, error) {
	return m.reply, nil
}

func TestValidateReportsVerdict(t *testing.T) {
	var out bytes.Buffer
	opts := Options{Workspace: t.TempDir(), Out: &out}

	if err := Validate("grep -r -i api . | head -20", opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "ALLOWED") {
		t.Errorf("expected ALLOWED, got %q", out.String())
	}

	out.Reset()
	err := Validate("rm -rf /", opts)
	if !errors.Is(err, tools.ErrPolicyDenied) {
		t.Fatalf("expected policy denial, got %v", err)
	}
	if !strings.Contains(out.String(), "DENIED") {
		t.Errorf("expected DENIED, got %q", out.String())
	}
}

func TestChatHandlesCommandsAndQuestions(t *testing.T) {
	settings := config.Defaults()
	settings.Workspace.Root = t.TempDir()
	settings.Audit.Enabled = false

	a, err := newApp(settings, cannedModel{reply: "not a plan"}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Close()

	var out bytes.Buffer
	in := strings.NewReader("help\nWhat is the API limit?\nstats\nclear\nexit\nnever reached\n")
	if err := a.chat(context.Background(), "chat-1", in, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"Commands:",
		"Thinking...",
		"No relevant information found in the documentation.",
		"Session Stats:",
		"LLM calls: 1",
		"Session cache cleared.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, got)
		}
	}
}

func TestChatResumesRecordedSession(t *testing.T) {
	settings := config.Defaults()
	settings.Workspace.Root = t.TempDir()
	settings.Audit.DBPath = filepath.Join(t.TempDir(), "audit.db")

	a, err := newApp(settings, cannedModel{reply: "not a plan"}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out bytes.Buffer
	if err := a.chat(context.Background(), "chat-2", strings.NewReader("What is the API limit?\nexit\n"), &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a.Close()

	a, err = newApp(settings, cannedModel{reply: "not a plan"}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Close()
	out.Reset()
	if err := a.chat(context.Background(), "chat-2", strings.NewReader("exit\n"), &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "Resuming session 'chat-2' (1 questions)") {
		t.Errorf("expected resume banner, got %q", out.String())
	}

	t.Setenv("DOCQA_AUDIT_DB", settings.Audit.DBPath)
	out.Reset()
	if err := History(context.Background(), "chat-2", Options{Out: &out}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "Q: What is the API limit?") || !strings.Contains(out.String(), "(empty,") {
		t.Errorf("unexpected history output %q", out.String())
	}
}

func TestAuditPrintsSessionRecords(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	t.Setenv("DOCQA_AUDIT_DB", dbPath)

	store, err := storage.OpenSqlite(dbPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()
	now := time.Now()
	for _, a := range []audit.Attempt{
		{Command: "ls -la", SessionID: "sess-1", Allowed: true, Reason: "command validated", Time: now},
		{Command: "rm -rf /", SessionID: "sess-1", Allowed: false, Reason: "forbidden mutation \"rm\" detected", Time: now.Add(time.Second)},
		{Command: "cat a.md", SessionID: "sess-2", Allowed: true, Time: now},
	} {
		if err := store.WriteAttempt(ctx, a); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	store.Close()

	var out bytes.Buffer
	if err := Audit(ctx, "sess-1", 10, Options{Out: &out}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := out.String()
	if strings.Contains(got, "cat a.md") {
		t.Error("expected records of other sessions to be filtered out")
	}
	for _, want := range []string{"ls -la", "DENIED: forbidden mutation", "Session sess-1: 2 attempts, 1 denied"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, got)
		}
	}
}

func TestPrintEventHidesCommandsUnlessVerbose(t *testing.T) {
	events := []model.Event{
		model.Message("Searching documentation..."),
		model.Command("grep -r api ."),
		model.Result("./a.md:api"),
		model.Error("Failed to generate answer"),
	}

	var quiet, verbose bytes.Buffer
	for _, ev := range events {
		printEvent(&quiet, ev, false)
		printEvent(&verbose, ev, true)
	}

	if strings.Contains(quiet.String(), "$ grep") {
		t.Error("expected commands hidden in quiet mode")
	}
	if !strings.Contains(quiet.String(), "Error: Failed to generate answer") {
		t.Error("expected errors in quiet mode")
	}
	if !strings.Contains(verbose.String(), "$ grep -r api .") || !strings.Contains(verbose.String(), "./a.md:api") {
		t.Errorf("expected commands and results in verbose mode, got %q", verbose.String())
	}
}

func TestPrintStatsHitRate(t *testing.T) {
	var out bytes.Buffer
	printStats(&out, orchestration.Stats{LLMCalls: 2, ShellCommands: 7, CacheHits: 1, CacheMisses: 3}, 4)
	if !strings.Contains(out.String(), "Cache hit rate: 25.0%") {
		t.Errorf("unexpected stats output %q", out.String())
	}
}

func TestTruncateStringKeepsRunes(t *testing.T) {
	if got := truncateString("日本語のテキスト", 3); got != "日本語..." {
		t.Errorf("unexpected truncation %q", got)
	}
}
