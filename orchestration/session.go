package orchestration

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/richinex/docqa/cache"
)

// Phase is the position of a session in the query state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePlanning
	PhaseExecuting
	PhaseSynthesizing
	PhaseDone
	// PhaseEmpty ends a query that found no documentation content.
	PhaseEmpty
	// PhaseFailed ends a query whose synthesis call failed.
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhasePlanning:
		return "planning"
	case PhaseExecuting:
		return "executing"
	case PhaseSynthesizing:
		return "synthesizing"
	case PhaseDone:
		return "done"
	case PhaseEmpty:
		return "empty"
	case PhaseFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Stats is a snapshot of a session's performance counters.
type Stats struct {
	LLMCalls      int64 `json:"llm_calls"`
	ShellCommands int64 `json:"shell_commands"`
	CacheHits     int64 `json:"cache_hits"`
	CacheMisses   int64 `json:"cache_misses"`
}

type counters struct {
	llmCalls      atomic.Int64
	shellCommands atomic.Int64
	cacheHits     atomic.Int64
	cacheMisses   atomic.Int64
}

// Session owns all mutable state of one conversation: both caches, the
// insights gathered by deep analysis, the discovered corpus layout and the
// counters. Sessions are not shared between concurrent queries.
type Session struct {
	id       string
	content  *cache.ContentCache
	searches *cache.SearchCache

	mu        sync.Mutex
	insights  []string
	structure *FileStructure
	phase     Phase

	stats counters
}

// ID returns the session identifier used for auditing.
func (s *Session) ID() string {
	return s.id
}

// Phase returns the current state machine phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

// Stats returns a snapshot of the counters.
func (s *Session) Stats() Stats {
	return Stats{
		LLMCalls:      s.stats.llmCalls.Load(),
		ShellCommands: s.stats.shellCommands.Load(),
		CacheHits:     s.stats.cacheHits.Load(),
		CacheMisses:   s.stats.cacheMisses.Load(),
	}
}

// Insights returns a copy of the insights gathered so far.
func (s *Session) Insights() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.insights...)
}

func (s *Session) addInsights(insights []string) {
	if len(insights) == 0 {
		return
	}
	s.mu.Lock()
	s.insights = append(s.insights, insights...)
	s.mu.Unlock()
}

// Structure returns the discovered corpus layout, or nil before discovery.
func (s *Session) Structure() *FileStructure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.structure
}

func (s *Session) setStructure(fs *FileStructure) {
	s.mu.Lock()
	s.structure = fs
	s.mu.Unlock()
}

// CachedFiles returns the number of files in the content cache.
func (s *Session) CachedFiles() int {
	return s.content.Len()
}

// Close drops cached content, cached searches, insights and the
// discovered layout. The session may be reused afterwards.
func (s *Session) Close() {
	s.content.Clear()
	s.searches.Clear()
	s.mu.Lock()
	s.insights = nil
	s.structure = nil
	s.phase = PhaseIdle
	s.mu.Unlock()
}

// FileStructure summarizes the documentation files found at the
// workspace root.
type FileStructure struct {
	TotalFiles    int
	FileTypes     map[string]int
	Directories   []string
	MarkdownFiles []string
	IndexFiles    []string
}

// ParseStructure builds a FileStructure from a listing with one path per
// line, as printed by find.
func ParseStructure(listing string) *FileStructure {
	fs := &FileStructure{FileTypes: make(map[string]int)}
	dirs := make(map[string]bool)

	for _, line := range strings.Split(listing, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "...") {
			continue
		}
		fs.TotalFiles++

		if ext := path.Ext(line); ext != "" {
			fs.FileTypes[strings.TrimPrefix(ext, ".")]++
		}
		if dir := path.Dir(line); dir != "." && strings.Contains(line, "/") {
			dirs[dir] = true
		}
		if strings.HasSuffix(line, ".md") {
			fs.MarkdownFiles = append(fs.MarkdownFiles, line)
		}
		if strings.Contains(strings.ToLower(path.Base(line)), "index") {
			fs.IndexFiles = append(fs.IndexFiles, line)
		}
	}

	for dir := range dirs {
		fs.Directories = append(fs.Directories, dir)
	}
	sort.Strings(fs.Directories)
	return fs
}

const maxSummaryDirectories = 10

// Summary renders the structure as one short paragraph for prompts.
func (fs *FileStructure) Summary() string {
	if fs == nil || fs.TotalFiles == 0 {
		return "Documentation structure: unknown"
	}

	exts := make([]string, 0, len(fs.FileTypes))
	for ext := range fs.FileTypes {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	types := make([]string, 0, len(exts))
	for _, ext := range exts {
		types = append(types, fmt.Sprintf("%s: %d", ext, fs.FileTypes[ext]))
	}

	dirs := fs.Directories
	more := ""
	if len(dirs) > maxSummaryDirectories {
		more = fmt.Sprintf(" and %d more", len(dirs)-maxSummaryDirectories)
		dirs = dirs[:maxSummaryDirectories]
	}

	return fmt.Sprintf("Documentation structure: %d files (%s); directories: %s%s",
		fs.TotalFiles, strings.Join(types, ", "), strings.Join(dirs, ", "), more)
}
