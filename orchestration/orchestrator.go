// Package orchestration runs the question-answering control loop: plan,
// execute strategies against the sandbox, then synthesize an answer.
//
// Information Hiding:
// - Parallel/sequential partitioning and bounded fan-out hidden
// - Search-result replay and content accumulation hidden
// - Per-strategy fault isolation hidden
// - Relevance ranking and prompt assembly hidden

package orchestration

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/richinex/docqa/cache"
	"github.com/richinex/docqa/internal/logging"
	"github.com/richinex/docqa/llm"
	"github.com/richinex/docqa/model"
	"github.com/richinex/docqa/planner"
	"github.com/richinex/docqa/tools"
)

// ErrSynthesis is returned when the final answer could not be generated.
var ErrSynthesis = errors.New("answer synthesis failed")

// CommandRunner validates and executes one shell command for a session.
// tools.Runner is the production implementation.
type CommandRunner interface {
	Run(ctx context.Context, sessionID, command string) (tools.ExecutionResult, error)
}

// Config holds orchestration limits.
type Config struct {
	// MaxParallel bounds concurrently running parallel-group strategies.
	MaxParallel int
	// BatchSize caps files read per keyword, topic or listing step.
	BatchSize int
	// FeatureBatchSize caps files read per feature search.
	FeatureBatchSize int
	// ReadConcurrency bounds concurrent commands inside one strategy.
	ReadConcurrency int

	// ModelTimeout bounds each file analysis and synthesis request.
	ModelTimeout time.Duration

	CacheEntries    int
	CacheEntryBytes int
	SearchTTL       time.Duration
}

// DefaultConfig returns default orchestration configuration.
func DefaultConfig() Config {
	return Config{
		MaxParallel:      4,
		BatchSize:        10,
		FeatureBatchSize: 15,
		ReadConcurrency:  10,
		ModelTimeout:     llm.DefaultCallTimeout,
		CacheEntries:     cache.DefaultMaxEntries,
		CacheEntryBytes:  cache.DefaultMaxEntryBytes,
		SearchTTL:        cache.DefaultSearchTTL,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxParallel <= 0 {
		c.MaxParallel = d.MaxParallel
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.FeatureBatchSize <= 0 {
		c.FeatureBatchSize = d.FeatureBatchSize
	}
	if c.ReadConcurrency <= 0 {
		c.ReadConcurrency = d.ReadConcurrency
	}
	if c.ModelTimeout <= 0 {
		c.ModelTimeout = d.ModelTimeout
	}
	if c.CacheEntries <= 0 {
		c.CacheEntries = d.CacheEntries
	}
	if c.CacheEntryBytes <= 0 {
		c.CacheEntryBytes = d.CacheEntryBytes
	}
	if c.SearchTTL <= 0 {
		c.SearchTTL = d.SearchTTL
	}
	return c
}

// Orchestrator answers queries for any number of sessions. It holds no
// per-query state itself; everything mutable lives in Session.
type Orchestrator struct {
	runner  CommandRunner
	model   llm.Completer
	planner *planner.Planner
	config  Config
	logger  *logrus.Entry
	clock   func() time.Time
}

// New creates an orchestrator.
func New(runner CommandRunner, completer llm.Completer, p *planner.Planner, config Config) *Orchestrator {
	if p == nil {
		p = planner.New(completer, planner.DefaultMaxStrategies)
	}
	return &Orchestrator{
		runner:  runner,
		model:   completer,
		planner: p,
		config:  config.withDefaults(),
		logger:  logrus.NewEntry(logging.Discard()),
		clock:   time.Now,
	}
}

// WithLogger sets the log entry for orchestration diagnostics.
func (o *Orchestrator) WithLogger(logger *logrus.Entry) *Orchestrator {
	if logger != nil {
		o.logger = logger
	}
	return o
}

// WithClock replaces the time source of new sessions' search caches.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.clock = now
	return o
}

// NewSession creates an empty session.
func (o *Orchestrator) NewSession(id string) *Session {
	return &Session{
		id:       id,
		content:  cache.NewContentCache(o.config.CacheEntries, o.config.CacheEntryBytes),
		searches: cache.NewSearchCache(o.config.SearchTTL).WithClock(o.clock),
	}
}

// NoEvidenceAnswer is returned without a model call when no strategy
// found any documentation content.
const NoEvidenceAnswer = "No relevant information found in the documentation.\n\n" +
	"I couldn't find any information about your query in the available documents. " +
	"Please ensure your question relates to the documented topics."

// Query answers query within session, streaming progress to events.
// The send blocks until the caller receives or ctx ends; a nil channel
// discards events. Failures of single commands or strategies are absorbed.
// Only a failed synthesis call (wrapped in ErrSynthesis) or cancellation
// is returned as an error.
func (o *Orchestrator) Query(ctx context.Context, s *Session, query string, events chan<- model.Event) (string, error) {
	em := emitter{ctx: ctx, ch: events}
	log := o.logger.WithField("session_id", s.id)

	s.setPhase(PhasePlanning)
	em.send(model.Message("Thinking..."))
	plan := o.planAndDiscover(ctx, s, query)
	if plan.Fallback {
		log.WithField("reason", plan.FallbackReason).Info("using heuristic plan")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.setPhase(PhaseExecuting)
	em.send(model.Message("Searching documentation..."))
	parallel, sequential := partition(plan.Strategies)

	if len(parallel) > 0 {
		em.send(model.Message(fmt.Sprintf("Running %d parallel searches...", len(parallel))))
		o.runParallel(ctx, s, query, parallel, em)
	}
	for _, strategy := range sequential {
		if ctx.Err() != nil {
			break
		}
		em.send(model.Message(strategy.Description + "..."))
		out := o.runIsolated(ctx, s, query, strategy)
		o.apply(s, strategy, out, em)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	em.send(model.Message("Preparing answer..."))
	if s.content.Len() == 0 {
		s.setPhase(PhaseEmpty)
		log.Info("no documentation content found")
		em.send(model.Message(NoEvidenceAnswer))
		return NoEvidenceAnswer, nil
	}

	s.setPhase(PhaseSynthesizing)
	answer, err := o.synthesize(ctx, s, query)
	if err != nil {
		s.setPhase(PhaseFailed)
		log.WithError(err).Error("synthesis failed")
		em.send(model.Error(fmt.Sprintf("Failed to generate answer: %v", err)))
		return "", fmt.Errorf("%w: %w", ErrSynthesis, err)
	}

	s.setPhase(PhaseDone)
	em.send(model.Message("**Answer:**\n\n" + answer))
	return answer, nil
}

// planAndDiscover runs the planner and, when the layout is not yet known,
// the structure listing concurrently.
func (o *Orchestrator) planAndDiscover(ctx context.Context, s *Session, query string) planner.Plan {
	var (
		g    errgroup.Group
		plan planner.Plan
	)
	g.Go(func() error {
		plan = o.planner.Plan(ctx, query)
		return nil
	})
	if s.Structure() == nil {
		g.Go(func() error {
			o.discoverStructure(ctx, s)
			return nil
		})
	}
	_ = g.Wait()

	s.stats.llmCalls.Add(int64(plan.ModelCalls))
	return plan
}

func (o *Orchestrator) discoverStructure(ctx context.Context, s *Session) {
	s.stats.shellCommands.Add(1)
	result, err := o.runner.Run(ctx, s.id, structureCommand)
	if err != nil || !result.ExitOK {
		o.logger.WithError(err).WithField("session_id", s.id).Warn("structure discovery failed")
		return
	}
	s.setStructure(ParseStructure(result.Output))
}

// partition splits strategies into the parallel-safe group and the
// sequential group, each stably sorted by priority.
func partition(strategies []model.Strategy) (parallel, sequential []model.Strategy) {
	for _, s := range strategies {
		if s.Kind.Parallel() {
			parallel = append(parallel, s)
		} else {
			sequential = append(sequential, s)
		}
	}
	byPriority := func(a, b model.Strategy) int { return cmp.Compare(a.Priority, b.Priority) }
	slices.SortStableFunc(parallel, byPriority)
	slices.SortStableFunc(sequential, byPriority)
	return parallel, sequential
}

// runParallel executes the parallel group with bounded fan-out. Cached
// strategies are replayed without dispatch. Outcomes are applied in
// priority order after every child has returned.
func (o *Orchestrator) runParallel(ctx context.Context, s *Session, query string, strategies []model.Strategy, em emitter) {
	outcomes := make([]stepOutcome, len(strategies))

	var g errgroup.Group
	g.SetLimit(o.config.MaxParallel)
	for i, strategy := range strategies {
		if events, ok := s.searches.Lookup(cache.Signature(strategy.Kind, strategy.Keywords)); ok {
			s.stats.cacheHits.Add(1)
			outcomes[i] = stepOutcome{events: events, replayed: true}
			continue
		}
		s.stats.cacheMisses.Add(1)
		g.Go(func() error {
			outcomes[i] = o.runIsolated(ctx, s, query, strategy)
			return nil
		})
	}
	_ = g.Wait()

	for i, out := range outcomes {
		o.apply(s, strategies[i], out, em)
	}
}

// runIsolated executes one strategy, converting a panic into a fault on
// the outcome.
func (o *Orchestrator) runIsolated(ctx context.Context, s *Session, query string, strategy model.Strategy) (out stepOutcome) {
	st := &step{o: o, ctx: ctx, session: s, query: query}
	defer func() {
		if r := recover(); r != nil {
			out = stepOutcome{fault: fmt.Errorf("strategy %s panicked: %v", strategy.Kind, r)}
		}
	}()
	st.execute(strategy)
	return st.out
}

// apply folds a finished strategy into the session. It is the only place
// caches are written during execution.
func (o *Orchestrator) apply(s *Session, strategy model.Strategy, out stepOutcome, em emitter) {
	if out.fault != nil {
		o.logger.WithError(out.fault).WithFields(logrus.Fields{
			"session_id": s.id,
			"strategy":   strategy.Kind.String(),
		}).Error("strategy skipped")
		return
	}

	for _, ev := range out.events {
		em.send(ev)
	}
	for _, entry := range out.reads {
		s.content.Put(entry.Path, entry.Content)
	}
	s.addInsights(out.insights)

	if strategy.Kind.Parallel() && !out.replayed {
		s.searches.Store(cache.Signature(strategy.Kind, strategy.Keywords), out.events)
	}
}

type emitter struct {
	ctx context.Context
	ch  chan<- model.Event
}

func (e emitter) send(ev model.Event) {
	if e.ch == nil {
		return
	}
	select {
	case e.ch <- ev:
	case <-e.ctx.Done():
	}
}
