package orchestration

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/richinex/docqa/cache"
	"github.com/richinex/docqa/internal/dsa"
	"github.com/richinex/docqa/llm"
	"github.com/richinex/docqa/planner"
)

const (
	maxContextFiles  = 20
	maxFilesPerGroup = 3
	groupFileBytes   = 1000
	maxContextBytes  = 8000
	rootGroup        = "root"
)

var errNoModel = errors.New("no language model configured")

func (o *Orchestrator) synthesize(ctx context.Context, s *Session, query string) (string, error) {
	prompt := synthesisPrompt(query, s.Insights(), s.Structure(), buildContext(rankEntries(s.content.Entries(), query)))
	if o.model == nil {
		return "", errNoModel
	}
	s.stats.llmCalls.Add(1)
	callCtx, cancel := llm.CallContext(ctx, o.config.ModelTimeout)
	defer cancel()
	answer, err := o.model.Complete(callCtx, prompt, llm.GenerationParams{})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// relevanceTerms is the case-insensitive union of the plain and technical
// keywords of query.
func relevanceTerms(query string) []string {
	var terms []string
	seen := make(map[string]bool)
	for _, kw := range append(planner.ExtractKeywords(query), planner.TechnicalKeywords(query)...) {
		key := strings.ToLower(kw)
		if !seen[key] {
			seen[key] = true
			terms = append(terms, key)
		}
	}
	return terms
}

// rankEntries orders entries by descending occurrence count of the query
// terms. Ties keep cache insertion order.
func rankEntries(entries []cache.Entry, query string) []cache.Entry {
	terms := relevanceTerms(query)
	scores := make(map[string]int, len(entries))
	for _, e := range entries {
		scores[e.Path] = dsa.NewFoldedIndex(e.Content).Score(terms)
	}
	ranked := slices.Clone(entries)
	slices.SortStableFunc(ranked, func(a, b cache.Entry) int {
		return cmp.Compare(scores[b.Path], scores[a.Path])
	})
	return ranked
}

// groupName is the top-level directory of a "./dir/..." path, or root for
// files directly under the workspace.
func groupName(p string) string {
	parts := strings.Split(p, "/")
	if len(parts) > 2 {
		return parts[1]
	}
	return rootGroup
}

// buildContext renders the most relevant entries grouped by top-level
// directory, capped at maxContextBytes.
func buildContext(ranked []cache.Entry) string {
	groups := orderedmap.New[string, []cache.Entry]()
	for _, e := range ranked[:min(len(ranked), maxContextFiles)] {
		name := groupName(e.Path)
		files, _ := groups.Get(name)
		groups.Set(name, append(files, e))
	}

	var parts []string
	for pair := groups.Oldest(); pair != nil; pair = pair.Next() {
		var b strings.Builder
		fmt.Fprintf(&b, "\n### %s Documentation:\n", strings.ToUpper(pair.Key))
		for _, e := range pair.Value[:min(len(pair.Value), maxFilesPerGroup)] {
			fmt.Fprintf(&b, "\n**%s:**\n%s...\n", e.Path, clip(e.Content, groupFileBytes))
		}
		parts = append(parts, b.String())
	}
	return clip(strings.Join(parts, "\n"), maxContextBytes)
}

func synthesisPrompt(query string, insights []string, structure *FileStructure, docs string) string {
	insightText := "None"
	if len(insights) > 0 {
		insightText = "- " + strings.Join(insights, "\n- ")
	}

	var b strings.Builder
	b.WriteString("Based on the search and analysis, provide a detailed answer.\n\n")
	b.WriteString("CRITICAL RULES:\n")
	b.WriteString("1. ONLY use information found in the documentation context below\n")
	b.WriteString("2. Do NOT make up or infer information not explicitly stated\n")
	b.WriteString("3. If information is not found, clearly state that it is not documented\n")
	b.WriteString("4. Do NOT use external knowledge\n\n")
	fmt.Fprintf(&b, "Original query: %s\n", query)
	fmt.Fprintf(&b, "Query language: %s\n\n", planner.DetectLanguage(query))
	fmt.Fprintf(&b, "Key insights discovered:\n%s\n\n", insightText)
	fmt.Fprintf(&b, "%s\n\n", structure.Summary())
	b.WriteString("Structure your answer with:\n")
	b.WriteString("1. **Direct Answer**: a clear, concise answer to the question\n")
	b.WriteString("2. **Details**: important technical details from the documentation\n")
	b.WriteString("3. **Examples**: relevant examples or code snippets if present\n")
	b.WriteString("4. **Note**: aspects the documentation does not cover\n\n")
	b.WriteString("Answer in the same language as the query. Use markdown formatting.\n")
	b.WriteString("Do NOT mention file paths.\n\n")
	fmt.Fprintf(&b, "Context from search:\n%s", docs)
	return b.String()
}
