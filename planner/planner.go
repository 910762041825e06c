// Package planner turns a user query into an ordered set of search strategies.
//
// Information Hiding:
// - Planning prompt and the model's plan wire format
// - Tolerant decoding of partial or loosely typed plans
// - Heuristic classification used when the model fails

package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	jsonutil "github.com/richinex/docqa/internal/json"
	"github.com/richinex/docqa/internal/logging"
	"github.com/richinex/docqa/llm"
	"github.com/richinex/docqa/model"
)

// DefaultMaxStrategies caps the number of strategies in one plan.
const DefaultMaxStrategies = 5

// ErrEmptyPlan is returned by Parse when no usable strategy survives decoding.
var ErrEmptyPlan = errors.New("plan contains no usable strategies")

var defaultPatterns = []string{"*.md", "*.txt"}

// Plan is the planner's output for one query.
type Plan struct {
	Analysis   model.QueryAnalysis
	Strategies []model.Strategy

	// Fallback is set when Strategies came from the heuristic classifier.
	Fallback       bool
	FallbackReason string

	// ModelCalls counts completion requests made while planning.
	ModelCalls int
}

// Planner asks a model for a plan and falls back to Heuristic.
type Planner struct {
	model         llm.Completer
	maxStrategies int
	timeout       time.Duration
	logger        *logrus.Entry
}

// New creates a planner. A nil model always plans heuristically.
func New(completer llm.Completer, maxStrategies int) *Planner {
	if maxStrategies <= 0 {
		maxStrategies = DefaultMaxStrategies
	}
	return &Planner{
		model:         completer,
		maxStrategies: maxStrategies,
		timeout:       llm.DefaultCallTimeout,
		logger:        logrus.NewEntry(logging.Discard()),
	}
}

// WithLogger sets the log entry used to report fallbacks.
func (p *Planner) WithLogger(logger *logrus.Entry) *Planner {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// WithTimeout bounds the planning request. Non-positive values are ignored.
func (p *Planner) WithTimeout(timeout time.Duration) *Planner {
	if timeout > 0 {
		p.timeout = timeout
	}
	return p
}

// Plan makes one completion request and decodes it. Any model or decode
// failure yields the heuristic plan instead; the result always holds at
// least one strategy.
func (p *Planner) Plan(ctx context.Context, query string) Plan {
	if p.model == nil {
		return p.fallback(query, "no language model configured", 0)
	}

	callCtx, cancel := llm.CallContext(ctx, p.timeout)
	raw, err := p.model.Complete(callCtx, planningPrompt(query), llm.JSONParams(planningSystemPrompt))
	cancel()
	if err != nil {
		p.logger.WithError(err).Warn("planning call failed, using heuristic plan")
		return p.fallback(query, fmt.Sprintf("model call failed: %v", err), 1)
	}

	plan, err := Parse(raw, query)
	if err != nil {
		p.logger.WithError(err).Warn("could not parse plan, using heuristic plan")
		return p.fallback(query, fmt.Sprintf("parse failed: %v", err), 1)
	}

	plan.ModelCalls = 1
	plan.Strategies = p.limit(plan.Strategies)
	p.logger.WithFields(logrus.Fields{
		"strategies": len(plan.Strategies),
	}).Debug("plan ready")
	return plan
}

func (p *Planner) fallback(query, reason string, calls int) Plan {
	return Plan{
		Analysis: model.QueryAnalysis{
			Understanding: query,
			KeyConcepts:   ExtractKeywords(query),
		},
		Strategies:     p.limit(Heuristic(query)),
		Fallback:       true,
		FallbackReason: reason,
		ModelCalls:     calls,
	}
}

func (p *Planner) limit(strategies []model.Strategy) []model.Strategy {
	if len(strategies) > p.maxStrategies {
		return strategies[:p.maxStrategies]
	}
	return strategies
}

type wirePlan struct {
	Analysis   *wireAnalysis  `json:"analysis"`
	Strategies []wireStrategy `json:"strategies"`
}

type wireAnalysis struct {
	Understanding        string     `json:"understanding"`
	KeyConcepts          stringList `json:"key_concepts"`
	ImplicitRequirements stringList `json:"implicit_requirements"`
	SearchAreas          stringList `json:"search_areas"`
}

type wireStrategy struct {
	Type        string     `json:"type"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	Keywords    stringList `json:"keywords"`
	Topic       stringList `json:"topic"`
	Patterns    stringList `json:"patterns"`
	Files       stringList `json:"files"`
}

// stringList decodes either a JSON string or an array of strings.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = splitList(s)
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("expected string or list of strings: %w", err)
	}
	*l = cleanList(items)
	return nil
}

// splitList accepts "a, b, c" as well as a single term.
func splitList(s string) []string {
	if strings.Contains(s, ",") {
		return cleanList(strings.Split(s, ","))
	}
	return cleanList([]string{s})
}

func cleanList(items []string) []string {
	var out []string
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = appendUnique(out, item)
		}
	}
	return out
}

// Parse decodes a model response into a plan. The response may wrap the
// JSON object in prose or a markdown fence. Strategies of unknown type are
// dropped and missing payloads are filled from query. ErrEmptyPlan is
// returned when nothing usable remains.
func Parse(raw, query string) (Plan, error) {
	wire, err := jsonutil.ExtractJSONFromResponse[wirePlan](raw)
	if err != nil {
		return Plan{}, err
	}

	plan := Plan{Analysis: model.QueryAnalysis{Understanding: "Query analysis"}}
	if a := wire.Analysis; a != nil {
		if strings.TrimSpace(a.Understanding) != "" {
			plan.Analysis.Understanding = strings.TrimSpace(a.Understanding)
		}
		plan.Analysis.KeyConcepts = a.KeyConcepts
		plan.Analysis.ImplicitRequirements = a.ImplicitRequirements
		plan.Analysis.SearchAreas = a.SearchAreas
	}

	for _, ws := range wire.Strategies {
		kind, err := model.ParseKind(ws.Type)
		if err != nil {
			continue
		}
		s := model.Strategy{
			Kind:        kind,
			Description: strings.TrimSpace(ws.Description),
			Priority:    model.ParsePriority(ws.Priority),
		}
		if s.Description == "" {
			s.Description = "Performing " + kind.String()
		}

		switch kind {
		case model.KindKeywordSearch:
			s.Keywords = limitKeywords(ws.Keywords, ExtractKeywords(query))
		case model.KindSpecificFeature:
			s.Keywords = limitKeywords(ws.Keywords, TechnicalKeywords(query))
		case model.KindTopicSearch:
			s.Topic = firstOf(ws.Topic, plan.Analysis.KeyConcepts, ExtractKeywords(query))
			if s.Topic == "" {
				s.Topic = strings.TrimSpace(query)
			}
		case model.KindFileExploration:
			s.Patterns = ws.Patterns
			if len(s.Patterns) == 0 {
				s.Patterns = append([]string(nil), defaultPatterns...)
			}
		case model.KindDeepContentAnalysis:
			s.Files = ws.Files
		case model.KindGeneral:
		}

		if (kind == model.KindKeywordSearch || kind == model.KindSpecificFeature) && len(s.Keywords) == 0 {
			continue
		}
		if kind == model.KindTopicSearch && s.Topic == "" {
			continue
		}
		plan.Strategies = append(plan.Strategies, s)
	}

	if len(plan.Strategies) == 0 {
		return Plan{}, ErrEmptyPlan
	}
	return plan, nil
}

func limitKeywords(keywords, fallback []string) []string {
	if len(keywords) == 0 {
		keywords = fallback
	}
	if len(keywords) > maxKeywords {
		keywords = keywords[:maxKeywords]
	}
	return keywords
}

func firstOf(lists ...[]string) string {
	for _, l := range lists {
		if len(l) > 0 {
			return l[0]
		}
	}
	return ""
}
