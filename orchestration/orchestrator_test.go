package orchestration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/richinex/docqa/llm"
	"github.com/richinex/docqa/model"
	"github.com/richinex/docqa/planner"
	"github.com/richinex/docqa/tools"
)

type fakeRunner struct {
	mu       sync.Mutex
	outputs  map[string]string
	commands []string
	panicOn  string
}

func (r *fakeRunner) Run(_ context.Context, _ string, command string) (tools.ExecutionResult, error) {
	r.mu.Lock()
	r.commands = append(r.commands, command)
	out, ok := r.outputs[command]
	r.mu.Unlock()

	if r.panicOn != "" && strings.HasPrefix(command, r.panicOn) {
		panic("runner exploded")
	}
	if !ok {
		return tools.ExecutionResult{Command: command}, nil
	}
	return tools.ExecutionResult{Command: command, ExitOK: true, Output: out}, nil
}

func (r *fakeRunner) ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.commands)
}

type scriptedModel struct {
	mu        sync.Mutex
	plan      string
	analysis  string
	answer    string
	answerErr error
	calls     int
	prompts   []string

	// stallPlan and stallAnswer make the call block until its context ends.
	stallPlan   bool
	stallAnswer bool
}

func (m *scriptedModel) Complete(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	m.mu.Lock()
	m.calls++
	var (
		reply string
		err   error
		stall bool
	)
	switch {
	case params.Format != nil:
		reply, stall = m.plan, m.stallPlan
	case params.System == fileAnalysisPrompt:
		reply = m.analysis
	default:
		m.prompts = append(m.prompts, prompt)
		reply, err, stall = m.answer, m.answerErr, m.stallAnswer
	}
	m.mu.Unlock()

	if stall {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return reply, err
}

func runQuery(t *testing.T, o *Orchestrator, s *Session, query string) (string, []model.Event, error) {
	t.Helper()
	events := make(chan model.Event, 512)
	answer, err := o.Query(context.Background(), s, query, events)
	close(events)
	var got []model.Event
	for ev := range events {
		got = append(got, ev)
	}
	return answer, got, err
}

const (
	featureA2Plan = `{"analysis": {"understanding": "A2 capabilities"},
		"strategies": [{"type": "specific_feature", "keywords": ["A2"], "priority": "high", "description": "Find A2"}]}`
	a2Grep     = "grep -r -Z A2 . --include='*.md' --include='*.txt' | head -30"
	a2GrepFold = "grep -r -i -Z A2 . --include='*.md' --include='*.txt' | head -30"
	a2Doc      = "The A2 board supports AI inference with 8 TOPS."
)

func a2Runner() *fakeRunner {
	return &fakeRunner{outputs: map[string]string{
		structureCommand:   "./docs/a2.md\n./README.md\n",
		a2Grep:             "./docs/a2.md\x00" + a2Doc + "\n",
		a2GrepFold:         "./docs/a2.md\x00" + a2Doc + "\n",
		"cat ./docs/a2.md": a2Doc,
	}}
}

func TestQueryWithoutEvidenceSkipsSynthesis(t *testing.T) {
	m := &scriptedModel{plan: `{"strategies": [{"type": "keyword_search", "keywords": ["quantum"]}]}`}
	o := New(&fakeRunner{}, m, nil, Config{})
	s := o.NewSession("s1")

	answer, events, err := runQuery(t, o, s, "quantum teleportation")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != NoEvidenceAnswer {
		t.Errorf("expected the no-evidence answer, got %q", answer)
	}
	if len(m.prompts) != 0 {
		t.Errorf("expected no synthesis call, got %d", len(m.prompts))
	}
	if s.Phase() != PhaseEmpty {
		t.Errorf("expected phase empty, got %s", s.Phase())
	}
	if last := events[len(events)-1]; last != model.Message(NoEvidenceAnswer) {
		t.Errorf("unexpected final event %+v", last)
	}
}

func TestFeatureSearchRunsBothCaseVariants(t *testing.T) {
	runner := a2Runner()
	m := &scriptedModel{plan: featureA2Plan, answer: "A2 supports AI inference."}
	o := New(runner, m, nil, Config{})
	s := o.NewSession("s1")

	answer, events, err := runQuery(t, o, s, "What kind of AI is supported on A2?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "A2 supports AI inference." {
		t.Errorf("unexpected answer %q", answer)
	}

	ran := runner.ran()
	for _, want := range []string{a2Grep, a2GrepFold, "cat ./docs/a2.md"} {
		if !slices.Contains(ran, want) {
			t.Errorf("expected %q to run, ran %v", want, ran)
		}
	}
	if !slices.Contains(events, model.Command(a2Grep)) {
		t.Error("expected the case-sensitive grep on the event stream")
	}
	if !slices.Contains(events, model.Result("./docs/a2.md:"+a2Doc+"\n")) {
		t.Error("expected grep matches shown in path:match form")
	}
	if len(m.prompts) != 1 || !strings.Contains(m.prompts[0], a2Doc) {
		t.Errorf("expected the read document in the synthesis prompt, got %v", m.prompts)
	}
	if s.Phase() != PhaseDone {
		t.Errorf("expected phase done, got %s", s.Phase())
	}
	if got := events[len(events)-1]; got != model.Message("**Answer:**\n\nA2 supports AI inference.") {
		t.Errorf("unexpected final event %+v", got)
	}
}

func TestRepeatedQueryReplaysCachedSearch(t *testing.T) {
	runner := a2Runner()
	m := &scriptedModel{plan: featureA2Plan, answer: "A2 supports AI inference."}
	o := New(runner, m, nil, Config{})
	s := o.NewSession("s1")

	_, first, err := runQuery(t, o, s, "What kind of AI is supported on A2?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	commandsAfterFirst := len(runner.ran())

	_, second, err := runQuery(t, o, s, "What kind of AI is supported on A2?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("replayed events differ (-first +second):\n%s", diff)
	}
	if got := len(runner.ran()); got != commandsAfterFirst {
		t.Errorf("expected no new commands on replay, ran %d more", got-commandsAfterFirst)
	}

	stats := s.Stats()
	if stats.CacheHits != 1 || stats.CacheMisses != 1 {
		t.Errorf("expected 1 hit and 1 miss, got %+v", stats)
	}
	if stats.ShellCommands != int64(commandsAfterFirst) {
		t.Errorf("expected %d shell commands, got %d", commandsAfterFirst, stats.ShellCommands)
	}
}

func TestStrategyPanicIsIsolated(t *testing.T) {
	runner := a2Runner()
	runner.panicOn = "tree"
	m := &scriptedModel{
		plan: `{"strategies": [
			{"type": "general", "priority": "high"},
			{"type": "specific_feature", "keywords": ["A2"], "priority": "low"}
		]}`,
		answer: "ok",
	}
	o := New(runner, m, nil, Config{})
	s := o.NewSession("s1")

	answer, _, err := runQuery(t, o, s, "Tell me about A2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "ok" {
		t.Errorf("expected the query to complete, got %q", answer)
	}
	if s.CachedFiles() != 1 {
		t.Errorf("expected the feature search to still read its file, got %d", s.CachedFiles())
	}
	if slices.Contains(runner.ran(), "ls -la") {
		t.Error("expected the panicking strategy to stop at the fault")
	}
}

func TestSequentialStrategiesFollowPriority(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{}}
	m := &scriptedModel{plan: `{"strategies": [
		{"type": "topic_search", "topic": "alpha", "priority": "low"},
		{"type": "file_exploration", "patterns": ["*.md"], "priority": "high"}
	]}`}
	o := New(runner, m, nil, Config{})

	if _, _, err := runQuery(t, o, o.NewSession("s1"), "alpha"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ran := runner.ran()
	explore := slices.Index(ran, "find . -name '*.md' -type f | grep -v _build | sort")
	topic := slices.Index(ran, "find . -iname '*alpha*' -type f | head -10")
	if explore < 0 || topic < 0 {
		t.Fatalf("expected both strategies to run, ran %v", ran)
	}
	if explore > topic {
		t.Errorf("expected the high priority exploration first, ran %v", ran)
	}
}

func TestFileExplorationPreviewsByDirectory(t *testing.T) {
	const listing = "find . -name '*.md' -type f | grep -v _build | sort"
	runner := &fakeRunner{outputs: map[string]string{
		listing:                 "./api/a.md\n./api/b.md\n./api/c.md\n./guide/x.md\n",
		"head -20 ./api/a.md":   "# A",
		"head -20 ./api/b.md":   "# B",
		"head -20 ./guide/x.md": "# X",
		"cat ./api/a.md":        "# A\nalpha",
		"cat ./api/b.md":        "# B\nbeta",
		"cat ./guide/x.md":      "# X\nxray",
	}}
	m := &scriptedModel{
		plan:   `{"strategies": [{"type": "file_exploration", "patterns": ["*.md"]}]}`,
		answer: "done",
	}
	o := New(runner, m, nil, Config{})
	s := o.NewSession("s1")

	_, events, err := runQuery(t, o, s, "list all markdown files")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []model.Event{model.Message("Exploring ./api/..."), model.Message("Exploring ./guide/...")} {
		if !slices.Contains(events, want) {
			t.Errorf("expected event %+v", want)
		}
	}
	if slices.Contains(runner.ran(), "head -20 ./api/c.md") {
		t.Error("expected at most two previews per directory")
	}
	if s.CachedFiles() != 3 {
		t.Errorf("expected 3 previewed files cached, got %d", s.CachedFiles())
	}
}

func TestDeepAnalysisInsightsReachSynthesis(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"cat ./docs/guide.md": "Install with make install.",
	}}
	m := &scriptedModel{
		plan:     `{"strategies": [{"type": "deep_content_analysis", "files": ["docs/guide.md"]}]}`,
		analysis: "The guide explains installation.",
		answer:   "Run make install.",
	}
	o := New(runner, m, nil, Config{})
	s := o.NewSession("s1")

	if _, _, err := runQuery(t, o, s, "How do I install it?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"From ./docs/guide.md: The guide explains installation."}
	if diff := cmp.Diff(want, s.Insights()); diff != "" {
		t.Errorf("insights mismatch (-want +got):\n%s", diff)
	}
	if len(m.prompts) != 1 || !strings.Contains(m.prompts[0], want[0]) {
		t.Errorf("expected insight in synthesis prompt, got %v", m.prompts)
	}
	if got := s.Stats().LLMCalls; got != 3 {
		t.Errorf("expected plan, analysis and synthesis calls, got %d", got)
	}
}

func TestSynthesisFailureIsReported(t *testing.T) {
	m := &scriptedModel{plan: featureA2Plan, answerErr: errors.New("service unavailable")}
	o := New(a2Runner(), m, nil, Config{})
	s := o.NewSession("s1")

	_, events, err := runQuery(t, o, s, "A2?")
	if !errors.Is(err, ErrSynthesis) {
		t.Fatalf("expected ErrSynthesis, got %v", err)
	}
	if s.Phase() != PhaseFailed {
		t.Errorf("expected phase failed, got %s", s.Phase())
	}
	last := events[len(events)-1]
	if last.Type != model.EventError || !strings.Contains(last.Content, "service unavailable") {
		t.Errorf("expected an error event, got %+v", last)
	}
}

func TestSynthesisTimeoutIsReported(t *testing.T) {
	m := &scriptedModel{plan: featureA2Plan, stallAnswer: true}
	o := New(a2Runner(), m, nil, Config{ModelTimeout: 20 * time.Millisecond})
	s := o.NewSession("s1")

	_, _, err := runQuery(t, o, s, "What kind of AI is supported on A2?")
	if !errors.Is(err, ErrSynthesis) {
		t.Fatalf("expected ErrSynthesis, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected the deadline to be the cause, got %v", err)
	}
	if s.Phase() != PhaseFailed {
		t.Errorf("expected phase failed, got %s", s.Phase())
	}
}

func TestPlanningTimeoutFallsBackToHeuristic(t *testing.T) {
	runner := a2Runner()
	m := &scriptedModel{stallPlan: true, answer: "A2 supports AI inference."}
	p := planner.New(m, 0).WithTimeout(20 * time.Millisecond)
	o := New(runner, m, p, Config{})
	s := o.NewSession("s1")

	answer, _, err := runQuery(t, o, s, "What kind of AI is supported on A2?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "A2 supports AI inference." {
		t.Errorf("unexpected answer %q", answer)
	}
	if !slices.Contains(runner.ran(), a2Grep) {
		t.Errorf("expected the heuristic feature search to run, got %q", runner.ran())
	}
	if got := s.Stats().LLMCalls; got != 2 {
		t.Errorf("expected the timed-out plan call and the synthesis call, got %d", got)
	}
}

func TestQueryAgainstWorkspace(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "docs"), 0o755); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, name := range []string{"a2.md", "v1:a2.md"} {
		if err := os.WriteFile(filepath.Join(root, "docs", name), []byte(a2Doc+"\n"), 0o644); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	runner, err := tools.NewWorkspaceRunner(root, 500, tools.ExecConfig{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := &scriptedModel{
		plan: `{"strategies": [
			{"type": "specific_feature", "keywords": ["A2"], "priority": "high"},
			{"type": "deep_content_analysis", "files": ["../outside.md"], "priority": "low"}
		]}`,
		answer: "8 TOPS",
	}
	o := New(runner, m, nil, Config{})
	s := o.NewSession("s1")

	_, events, err := runQuery(t, o, s, "What kind of AI is supported on A2?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, path := range []string{"./docs/a2.md", "./docs/v1:a2.md"} {
		if _, ok := s.content.Get(path); !ok {
			t.Errorf("expected %s to be read into the cache", path)
		}
	}
	if s.Structure() == nil || s.Structure().TotalFiles != 2 {
		t.Errorf("unexpected structure %+v", s.Structure())
	}

	denied := slices.ContainsFunc(events, func(ev model.Event) bool {
		return ev.Type == model.EventResult && strings.HasPrefix(ev.Content, "Error: command denied")
	})
	if !denied {
		t.Error("expected the traversal read to be reported as denied")
	}
}

func TestPartitionSortsEachGroupStably(t *testing.T) {
	strategies := []model.Strategy{
		model.TopicSearch("t-low", model.PriorityLow, "x"),
		model.KeywordSearch("k-med", model.PriorityMedium, "a"),
		model.General("g-high", model.PriorityHigh),
		model.SpecificFeature("f-med", model.PriorityMedium, "b"),
		model.KeywordSearch("k-high", model.PriorityHigh, "c"),
		model.FileExploration("e-low", model.PriorityLow, "*.md"),
	}
	parallel, sequential := partition(strategies)

	names := func(ss []model.Strategy) []string {
		var out []string
		for _, s := range ss {
			out = append(out, s.Description)
		}
		return out
	}
	if diff := cmp.Diff([]string{"k-high", "k-med", "f-med"}, names(parallel)); diff != "" {
		t.Errorf("parallel mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"g-high", "t-low", "e-low"}, names(sequential)); diff != "" {
		t.Errorf("sequential mismatch (-want +got):\n%s", diff)
	}
}

func TestNilEventChannelDiscards(t *testing.T) {
	m := &scriptedModel{plan: featureA2Plan, answer: "fine"}
	o := New(a2Runner(), m, nil, Config{})

	answer, err := o.Query(context.Background(), o.NewSession("s1"), "A2", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "fine" {
		t.Errorf("unexpected answer %q", answer)
	}
}

func TestSessionCloseResetsState(t *testing.T) {
	m := &scriptedModel{plan: featureA2Plan, answer: "fine"}
	o := New(a2Runner(), m, nil, Config{})
	s := o.NewSession("s1")
	if _, _, err := runQuery(t, o, s, "A2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.Close()
	if s.CachedFiles() != 0 || s.Structure() != nil || s.Phase() != PhaseIdle {
		t.Errorf("expected cleared session, got files=%d structure=%v phase=%s",
			s.CachedFiles(), s.Structure(), s.Phase())
	}
	if s.searches.Len() != 0 {
		t.Errorf("expected search cache cleared, got %d", s.searches.Len())
	}
}
