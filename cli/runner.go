// Command execution for CLI commands.
//
// Information Hiding:
// - Component wiring (config, logging, audit, runner, planner) hidden
// - Session lifecycle hidden
// - Output formatting hidden

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/richinex/docqa/audit"
	"github.com/richinex/docqa/config"
	"github.com/richinex/docqa/internal/logging"
	"github.com/richinex/docqa/llm"
	"github.com/richinex/docqa/model"
	"github.com/richinex/docqa/orchestration"
	"github.com/richinex/docqa/planner"
	"github.com/richinex/docqa/storage"
	"github.com/richinex/docqa/tools"
)

// Options holds CLI execution options.
type Options struct {
	Provider   string
	ConfigPath string
	// Workspace overrides the configured documentation root.
	Workspace string
	// SessionID names the chat session; empty starts a new one.
	SessionID string
	// Verbose prints every command and its output, not just status lines.
	Verbose bool
	Debug   bool

	In  io.Reader
	Out io.Writer
}

func (o Options) stdout() io.Writer {
	if o.Out == nil {
		return os.Stdout
	}
	return o.Out
}

func (o Options) stdin() io.Reader {
	if o.In == nil {
		return os.Stdin
	}
	return o.In
}

// loadSettings resolves configuration and applies flag overrides.
func loadSettings(opts Options) (config.Settings, error) {
	settings, err := config.Load(opts.ConfigPath, opts.Provider)
	if err != nil {
		return config.Settings{}, err
	}
	if opts.Workspace != "" {
		settings.Workspace.Root = opts.Workspace
	}
	return settings, nil
}

// app is the wired agent: one orchestrator plus the resources it owns.
type app struct {
	settings     config.Settings
	logger       *logrus.Logger
	orchestrator *orchestration.Orchestrator
	recorder     *audit.Recorder
	store        *storage.SqliteStorage
	transcripts  storage.TranscriptStorage
	opts         Options
}

func setup(opts Options) (*app, error) {
	settings, err := loadSettings(opts)
	if err != nil {
		return nil, err
	}
	provider, err := createProvider(settings)
	if err != nil {
		return nil, err
	}
	return newApp(settings, llm.NewClient(provider), opts)
}

// newApp wires every component around completer.
func newApp(settings config.Settings, completer llm.Completer, opts Options) (*app, error) {
	logger, err := logging.Setup(settings.Log, os.Stderr, opts.Debug)
	if err != nil {
		return nil, err
	}

	a := &app{settings: settings, logger: logger, opts: opts, transcripts: storage.NewInMemoryStorage()}

	sinks := audit.MultiSink{audit.NewLogSink(logger)}
	if settings.Audit.Enabled {
		store, err := storage.OpenSqlite(settings.Audit.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit database: %w", err)
		}
		a.store = store
		a.transcripts = store
		sinks = append(sinks, store)
	}
	a.recorder = audit.NewRecorder(sinks, settings.Audit.BufferSize, logging.Component(logger, "audit"))

	runner, err := tools.NewWorkspaceRunner(settings.Workspace.Root, settings.Workspace.MaxCommandLength,
		tools.ExecConfig{
			TimeoutDuration: settings.Workspace.CommandTimeout,
			MaxOutputBytes:  settings.Workspace.MaxOutputBytes,
		}, a.recorder)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("invalid workspace: %w", err)
	}

	p := planner.New(completer, settings.Search.MaxStrategies).
		WithTimeout(settings.LLM.Timeout).
		WithLogger(logging.Component(logger, "planner"))
	a.orchestrator = orchestration.New(runner, completer, p, orchestration.Config{
		MaxParallel:      settings.Search.MaxParallel,
		BatchSize:        settings.Search.BatchSize,
		FeatureBatchSize: settings.Search.FeatureBatchSize,
		ReadConcurrency:  settings.Search.ReadConcurrency,
		ModelTimeout:     settings.LLM.Timeout,
		CacheEntries:     settings.Cache.MaxEntries,
		CacheEntryBytes:  settings.Cache.MaxEntryBytes,
		SearchTTL:        settings.Cache.SearchTTL,
	}).WithLogger(logging.Component(logger, "orchestrator"))

	return a, nil
}

// Close flushes the audit trail and releases the database.
func (a *app) Close() {
	if a.recorder != nil {
		a.recorder.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.WithError(err).Warn("failed to close audit database")
		}
	}
}

// ask runs one query, printing events as they arrive, and records the
// exchange in the session history.
func (a *app) ask(ctx context.Context, session *orchestration.Session, query string, out io.Writer) (string, error) {
	start := time.Now()
	events := make(chan model.Event)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			printEvent(out, ev, a.opts.Verbose)
		}
	}()

	answer, err := a.orchestrator.Query(ctx, session, query, events)
	close(events)
	<-done

	if ctx.Err() == nil {
		exchange := storage.Exchange{
			SessionID:  session.ID(),
			Query:      query,
			Answer:     answer,
			Outcome:    session.Phase().String(),
			DurationMs: time.Since(start).Milliseconds(),
			Time:       start,
		}
		if err := a.transcripts.Append(ctx, exchange); err != nil {
			a.logger.WithError(err).Warn("failed to record exchange")
		}
	}
	return answer, err
}

// Ask answers a single query and exits.
func Ask(ctx context.Context, query string, opts Options) error {
	a, err := setup(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	session := a.orchestrator.NewSession(sessionID(opts))
	defer session.Close()

	out := opts.stdout()
	if _, err := a.ask(ctx, session, query, out); err != nil {
		return err
	}
	if opts.Verbose {
		printStats(out, session.Stats(), session.CachedFiles())
	}
	return nil
}

func sessionID(opts Options) string {
	if opts.SessionID != "" {
		return opts.SessionID
	}
	return uuid.NewString()
}

// Chat starts an interactive session. The session's caches persist across
// questions until "clear" or exit; the question history persists in the
// audit database and is resumed by passing the same session ID.
func Chat(ctx context.Context, opts Options) error {
	a, err := setup(opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.chat(ctx, sessionID(opts), opts.stdin(), opts.stdout())
}

const chatHelp = `Commands:
  help   show this help
  clear  drop cached documents and searches
  stats  show session counters
  exit   quit (also: quit)
Anything else is asked as a question.`

func (a *app) chat(ctx context.Context, id string, in io.Reader, out io.Writer) error {
	session := a.orchestrator.NewSession(id)
	defer session.Close()

	history, err := a.transcripts.History(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	if len(history) > 0 {
		fmt.Fprintf(out, "Resuming session '%s' (%d questions)\n", id, len(history))
	}
	fmt.Fprintf(out, "Documentation assistant (%s, %s). Type 'help' for commands.\n\n",
		a.settings.LLM.Provider, a.settings.Workspace.Root)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(input) {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "help":
			fmt.Fprintln(out, chatHelp)
			continue
		case "clear":
			session.Close()
			fmt.Fprintln(out, "Session cache cleared.")
			continue
		case "stats":
			printStats(out, session.Stats(), session.CachedFiles())
			continue
		}

		if _, err := a.ask(ctx, session, input, out); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			fmt.Fprintf(out, "\nError: %v\n", err)
		}
		fmt.Fprintln(out)
	}

	return scanner.Err()
}

// Validate reports the policy verdict for command without running it.
func Validate(command string, opts Options) error {
	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}
	policy, err := tools.NewCommandPolicy(settings.Workspace.Root)
	if err != nil {
		return fmt.Errorf("invalid workspace: %w", err)
	}
	policy.WithMaxLength(settings.Workspace.MaxCommandLength)

	out := opts.stdout()
	verdict := policy.Validate(command)
	if !verdict.Allowed {
		fmt.Fprintf(out, "DENIED: %s\n", verdict.Reason)
		return &tools.PolicyDeniedError{Command: command, Reason: verdict.Reason}
	}
	fmt.Fprintln(out, "ALLOWED")
	return nil
}

// Audit prints the newest audit records, optionally for one session.
func Audit(ctx context.Context, sessionID string, limit int, opts Options) error {
	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}
	store, err := storage.OpenSqlite(settings.Audit.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	attempts, err := store.RecentAttempts(ctx, sessionID, limit)
	if err != nil {
		return err
	}

	out := opts.stdout()
	if len(attempts) == 0 {
		fmt.Fprintln(out, "No audit records.")
		return nil
	}
	printAttempts(out, attempts)

	if sessionID != "" {
		stats, err := store.Stats(ctx, sessionID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nSession %s: %d attempts, %d denied, %d executed, %d failed, %d output bytes\n",
			sessionID, stats.Attempts, stats.Denied, stats.Executed, stats.Failed, stats.OutputBytes)
	}
	return nil
}

// History prints the questions asked in a session, or lists the sessions
// when sessionID is empty.
func History(ctx context.Context, sessionID string, opts Options) error {
	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}
	store, err := storage.OpenSqlite(settings.Audit.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	out := opts.stdout()
	if sessionID == "" {
		sessions, err := store.ListSessions(ctx)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Fprintln(out, "No sessions.")
		}
		for _, id := range sessions {
			fmt.Fprintln(out, id)
		}
		return nil
	}

	history, err := store.History(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Fprintf(out, "No questions recorded for session '%s'.\n", sessionID)
		return nil
	}
	printHistory(out, history)
	return nil
}

func createProvider(settings config.Settings) (llm.Provider, error) {
	providerType, err := llm.ParseProviderType(settings.LLM.Provider)
	if err != nil {
		return nil, err
	}

	apiKey, err := config.APIKeyFor(settings.LLM.Provider)
	if err != nil {
		return nil, err
	}

	return providerType.
		Model(settings.LLM.Model).
		MaxTokens(settings.LLM.MaxTokens).
		Temperature(float32(settings.LLM.Temperature)).
		APIKey(apiKey)
}
