package cli

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/richinex/docqa/audit"
	"github.com/richinex/docqa/model"
	"github.com/richinex/docqa/orchestration"
	"github.com/richinex/docqa/storage"
)

const (
	maxResultPreview  = 400
	maxCommandPreview = 80
)

// printEvent renders one stream event. Command output is shown only in
// verbose mode.
func printEvent(out io.Writer, ev model.Event, verbose bool) {
	switch ev.Type {
	case model.EventCommand:
		if verbose {
			fmt.Fprintln(out, ev.Content)
		}
	case model.EventResult:
		if verbose {
			fmt.Fprintf(out, "%s\n\n", truncateString(ev.Content, maxResultPreview))
		}
	case model.EventError:
		fmt.Fprintf(out, "Error: %s\n", ev.Content)
	default:
		fmt.Fprintln(out, ev.Content)
	}
}

func printStats(out io.Writer, stats orchestration.Stats, cachedFiles int) {
	lookups := stats.CacheHits + stats.CacheMisses
	hitRate := 0.0
	if lookups > 0 {
		hitRate = float64(stats.CacheHits) / float64(lookups) * 100
	}
	fmt.Fprintf(out, "\nSession Stats:\n")
	fmt.Fprintf(out, "  LLM calls: %d\n", stats.LLMCalls)
	fmt.Fprintf(out, "  Shell commands: %d\n", stats.ShellCommands)
	fmt.Fprintf(out, "  Cache hits: %d\n", stats.CacheHits)
	fmt.Fprintf(out, "  Cache misses: %d\n", stats.CacheMisses)
	fmt.Fprintf(out, "  Cache hit rate: %.1f%%\n", hitRate)
	fmt.Fprintf(out, "  Cached files: %d\n", cachedFiles)
}

func printAttempts(out io.Writer, attempts []audit.Attempt) {
	for _, a := range attempts {
		status := "allowed"
		if !a.Allowed {
			status = "DENIED: " + a.Reason
		}
		fmt.Fprintf(out, "%s  %-8s  %-*s  %s\n",
			a.Time.Format("2006-01-02 15:04:05"),
			shortID(a.SessionID),
			maxCommandPreview, truncateString(a.Command, maxCommandPreview),
			status)
	}
}

func printHistory(out io.Writer, history []storage.Exchange) {
	for i, e := range history {
		fmt.Fprintf(out, "[%d] %s  (%s, %dms)\n", i+1, e.Time.Format("2006-01-02 15:04:05"), e.Outcome, e.DurationMs)
		fmt.Fprintf(out, "Q: %s\n", e.Query)
		fmt.Fprintf(out, "A: %s\n\n", truncateString(e.Answer, maxResultPreview))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncateString truncates a string to maxLen runes, preserving UTF-8 boundaries.
func truncateString(s string, maxLen int) string {
	s = strings.TrimRight(s, "\n")
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}
