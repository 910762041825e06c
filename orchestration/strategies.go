package orchestration

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"unicode/utf8"

	"al.essio.dev/pkg/shellescape"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/sync/errgroup"

	"github.com/richinex/docqa/cache"
	"github.com/richinex/docqa/llm"
	"github.com/richinex/docqa/model"
	"github.com/richinex/docqa/tools"
)

const (
	structureCommand = `find . -type f \( -name '*.md' -o -name '*.txt' -o -name '*.rst' \) | head -100`
	docListCommand   = `find . -type f \( -name '*.md' -o -name '*.txt' -o -name '*.rst' \) | grep -v _build | head -50`
	docIncludes      = `--include='*.md' --include='*.txt'`

	maxSearchKeywords    = 3
	keywordPreviewBytes  = 1000
	featurePreviewBytes  = 1500
	keywordMatchLines    = 5
	featureMatchLines    = 10
	topicFilePreviews    = 3
	topicPreviewBytes    = 500
	exploreDirectories   = 5
	exploreFilesPerDir   = 2
	explorePreviewBytes  = 300
	maxAnalysisFiles     = 5
	analysisPreviewBytes = 2000
	analysisInputBytes   = 3000
)

const fileAnalysisPrompt = `Analyze this file content and provide key insights.
ONLY describe what is explicitly documented in this file.

Focus on:
1. Main topics covered in this document
2. Important technical details stated here
3. Code examples or configurations found in the text
4. References to other documented features

Be concise but thorough. Do NOT add external knowledge.`

// stepOutcome is everything a finished strategy hands back to the
// coordinator. Steps never write session caches themselves.
type stepOutcome struct {
	events   []model.Event
	reads    []cache.Entry
	insights []string
	fault    error
	replayed bool
}

// step executes one strategy. Its outcome is owned by the goroutine that
// calls execute; sub-commands fanned out from it only return values.
type step struct {
	o       *Orchestrator
	ctx     context.Context
	session *Session
	query   string

	out  stepOutcome
	seen map[string]bool
}

func (st *step) execute(strategy model.Strategy) {
	switch strategy.Kind {
	case model.KindKeywordSearch:
		st.keywordSearch(strategy.Keywords)
	case model.KindSpecificFeature:
		st.featureSearch(strategy.Keywords)
	case model.KindTopicSearch:
		topic := strategy.Topic
		if strings.TrimSpace(topic) == "" {
			topic = st.query
		}
		st.topicSearch(topic)
	case model.KindFileExploration:
		st.exploreFiles(strategy.Patterns)
	case model.KindDeepContentAnalysis:
		st.analyzeFiles(strategy.Files)
	default:
		st.generalExploration()
	}
}

func (st *step) emit(events ...model.Event) {
	st.out.events = append(st.out.events, events...)
}

// run executes command through the runner. A denied, timed out or failed
// command reports ok false and a one-line description of the failure.
func (st *step) run(command string) (output string, ok bool) {
	st.session.stats.shellCommands.Add(1)
	result, err := st.o.runner.Run(st.ctx, st.session.id, command)

	var denied *tools.PolicyDeniedError
	switch {
	case errors.As(err, &denied):
		return "Error: command denied: " + denied.Reason, false
	case errors.Is(err, tools.ErrTimeout):
		return "Error: command timed out", false
	case err != nil:
		return "Error: " + err.Error(), false
	case !result.ExitOK:
		msg := strings.TrimSpace(result.Output)
		if msg == "" {
			msg = "no output"
		}
		return "Error: command failed: " + msg, false
	}
	return result.Output, true
}

// runShown runs command and records it and its output as events.
func (st *step) runShown(command string, previewBytes int) (string, bool) {
	output, ok := st.run(command)
	st.emit(model.Command(command), model.Result(preview(output, previewBytes)))
	return output, ok
}

// fanOut calls fn for 0..n-1 with at most limit calls in flight. A panic in
// any call is re-raised on the caller's goroutine after all calls return.
func fanOut(n, limit int, fn func(i int)) {
	var (
		g        errgroup.Group
		mu       sync.Mutex
		panicked any
	)
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					if panicked == nil {
						panicked = r
					}
					mu.Unlock()
				}
			}()
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
	if panicked != nil {
		panic(panicked)
	}
}

type commandOutput struct {
	command string
	output  string
	ok      bool
}

// runAll runs commands concurrently and returns their outputs in order.
func (st *step) runAll(commands []string) []commandOutput {
	outputs := make([]commandOutput, len(commands))
	fanOut(len(commands), st.o.config.ReadConcurrency, func(i int) {
		output, ok := st.run(commands[i])
		outputs[i] = commandOutput{command: commands[i], output: output, ok: ok}
	})
	return outputs
}

// readBatch reads up to limit files that are neither cached nor already
// read by this step. Reads run concurrently and emit no events.
func (st *step) readBatch(paths []string, limit int) {
	if st.seen == nil {
		st.seen = make(map[string]bool)
	}
	var batch []string
	for _, p := range paths {
		if len(batch) >= limit {
			break
		}
		if strings.TrimSpace(p) == "" {
			continue
		}
		p = cache.NormalizePath(p)
		if p == "." || st.seen[p] || st.session.content.Has(p) {
			continue
		}
		st.seen[p] = true
		batch = append(batch, p)
	}
	if len(batch) == 0 {
		return
	}

	commands := make([]string, len(batch))
	for i, p := range batch {
		commands[i] = "cat " + shellescape.Quote(p)
	}
	for i, out := range st.runAll(commands) {
		if out.ok && strings.TrimSpace(out.output) != "" {
			st.out.reads = append(st.out.reads, cache.Entry{Path: batch[i], Content: out.output})
		}
	}
}

func (st *step) keywordSearch(keywords []string) {
	keywords = searchTerms(keywords)
	commands := []string{docListCommand}
	for _, kw := range keywords {
		commands = append(commands, fmt.Sprintf("grep -r -i -n -Z %s . %s | head -20", shellescape.Quote(kw), docIncludes))
	}
	outputs := st.runAll(commands)

	var matches []string
	for _, out := range outputs[1:] {
		if !out.ok || strings.TrimSpace(out.output) == "" {
			continue
		}
		st.emit(model.Command(out.command), model.Result(preview(grepDisplay(out.output), keywordPreviewBytes)))
		matches = append(matches, grepPaths(out.output, keywordMatchLines)...)
	}
	if listing := outputs[0]; listing.ok {
		matches = append(matches, pathsNaming(listing.output, keywords)...)
	}
	st.readBatch(matches, st.o.config.BatchSize)
}

func (st *step) featureSearch(keywords []string) {
	keywords = searchTerms(keywords)
	var commands []string
	for _, kw := range keywords {
		quoted := shellescape.Quote(kw)
		commands = append(commands,
			fmt.Sprintf("grep -r -Z %s . %s | head -30", quoted, docIncludes),
			fmt.Sprintf("grep -r -i -Z %s . %s | head -30", quoted, docIncludes),
		)
	}

	var matches []string
	for _, out := range st.runAll(commands) {
		if !out.ok || len(strings.TrimSpace(out.output)) <= 10 {
			continue
		}
		st.emit(model.Command(out.command), model.Result(preview(grepDisplay(out.output), featurePreviewBytes)))
		matches = append(matches, grepPaths(out.output, featureMatchLines)...)
	}
	st.readBatch(matches, st.o.config.FeatureBatchSize)
}

// topicSearch finds files whose names contain topic. The match is case
// insensitive, so one find covers every capitalization of the topic.
func (st *step) topicSearch(topic string) {
	command := fmt.Sprintf("find . -iname %s -type f | head -10", shellescape.Quote("*"+strings.TrimSpace(topic)+"*"))
	output, ok := st.runShown(command, 0)
	if !ok {
		return
	}
	found := lines(output)
	st.previewFiles(found[:min(len(found), topicFilePreviews)], 50, topicPreviewBytes)
	st.readBatch(found, st.o.config.BatchSize)
}

// previewFiles shows the first n lines of each file.
func (st *step) previewFiles(files []string, n, previewBytes int) {
	commands := make([]string, len(files))
	for i, f := range files {
		commands[i] = fmt.Sprintf("head -%d %s", n, shellescape.Quote(f))
	}
	for _, out := range st.runAll(commands) {
		st.emit(model.Command(out.command), model.Result(clip(out.output, previewBytes)+"..."))
	}
}

func (st *step) exploreFiles(patterns []string) {
	if len(patterns) == 0 {
		patterns = []string{"*.md", "*.txt"}
	}
	for _, pattern := range patterns {
		command := fmt.Sprintf("find . -name %s -type f | grep -v _build | sort", shellescape.Quote(pattern))
		output, ok := st.runShown(command, 0)
		if !ok {
			continue
		}

		dirs := orderedmap.New[string, []string]()
		for _, f := range lines(output) {
			dir := parentDir(f)
			files, _ := dirs.Get(dir)
			dirs.Set(dir, append(files, f))
		}

		var previewed []string
		visited := 0
		for pair := dirs.Oldest(); pair != nil && visited < exploreDirectories; pair = pair.Next() {
			visited++
			st.emit(model.Message(fmt.Sprintf("Exploring %s/...", pair.Key)))
			files := pair.Value[:min(len(pair.Value), exploreFilesPerDir)]
			st.previewFiles(files, 20, explorePreviewBytes)
			previewed = append(previewed, files...)
		}
		st.readBatch(previewed, st.o.config.BatchSize)
	}
}

// analyzeFiles reads files not yet cached and asks the model for insights
// on each, one call per file.
func (st *step) analyzeFiles(files []string) {
	if st.seen == nil {
		st.seen = make(map[string]bool)
	}
	var targets []string
	for _, f := range files {
		if len(targets) >= maxAnalysisFiles {
			break
		}
		if strings.TrimSpace(f) == "" {
			continue
		}
		f = cache.NormalizePath(f)
		if st.seen[f] || st.session.content.Has(f) {
			continue
		}
		st.seen[f] = true
		targets = append(targets, f)
	}
	if len(targets) == 0 {
		st.emit(model.Message("No new files to analyze"))
		return
	}

	commands := make([]string, len(targets))
	for i, f := range targets {
		commands[i] = "cat " + shellescape.Quote(f)
	}
	var read []cache.Entry
	for i, out := range st.runAll(commands) {
		st.emit(model.Command(out.command), model.Result(preview(out.output, analysisPreviewBytes)))
		if out.ok && strings.TrimSpace(out.output) != "" {
			read = append(read, cache.Entry{Path: targets[i], Content: out.output})
		}
	}
	st.out.reads = append(st.out.reads, read...)

	if st.o.model == nil {
		return
	}
	analyses := make([]string, len(read))
	fanOut(len(read), st.o.config.ReadConcurrency, func(i int) {
		analyses[i] = st.analyze(read[i])
	})
	for i, analysis := range analyses {
		if analysis != "" {
			st.out.insights = append(st.out.insights, fmt.Sprintf("From %s: %s", read[i].Path, analysis))
		}
	}
}

func (st *step) analyze(entry cache.Entry) string {
	st.session.stats.llmCalls.Add(1)
	prompt := fmt.Sprintf("File: %s\n\nContent:\n%s", entry.Path, clip(entry.Content, analysisInputBytes))
	ctx, cancel := llm.CallContext(st.ctx, st.o.config.ModelTimeout)
	defer cancel()
	analysis, err := st.o.model.Complete(ctx, prompt, llm.GenerationParams{System: fileAnalysisPrompt})
	if err != nil {
		st.o.logger.WithError(err).WithField("file", entry.Path).Warn("file analysis failed")
		return ""
	}
	return strings.TrimSpace(analysis)
}

func (st *step) generalExploration() {
	const treeCommand = "tree -L 2 -d | head -30"
	st.emit(model.Command(treeCommand))
	layout, ok := st.run(treeCommand)
	if !ok {
		st.emit(model.Command("ls -la"))
		layout, _ = st.run("ls -la")
	}
	st.emit(model.Result(layout))

	output, ok := st.runShown("find . -iname 'readme*' -type f | head -10", 0)
	if !ok {
		return
	}
	if readmes := lines(output); len(readmes) > 0 {
		st.previewFiles(readmes[:1], 50, topicPreviewBytes)
		st.readBatch(readmes[:1], 1)
	}
}

// searchTerms strips leading dashes so a keyword is never read as a flag,
// drops empty terms, and keeps the first few.
func searchTerms(keywords []string) []string {
	var terms []string
	for _, kw := range keywords {
		kw = strings.TrimLeft(strings.TrimSpace(kw), "-")
		if kw == "" {
			continue
		}
		terms = append(terms, kw)
		if len(terms) == maxSearchKeywords {
			break
		}
	}
	return terms
}

// grepPaths returns the file names of the first maxLines matches printed by
// grep -Z, which ends each file name with a NUL byte.
func grepPaths(output string, maxLines int) []string {
	var paths []string
	for i, line := range strings.Split(output, "\n") {
		if i >= maxLines {
			break
		}
		if p, _, found := strings.Cut(line, "\x00"); found && p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// grepDisplay renders grep -Z output in the usual path:match form.
func grepDisplay(output string) string {
	return strings.ReplaceAll(output, "\x00", ":")
}

// parentDir returns the directory part of p as printed, without cleaning.
func parentDir(p string) string {
	if i := strings.LastIndex(p, "/"); i > 0 {
		return p[:i]
	}
	return "."
}

// pathsNaming returns listed paths whose base name mentions a keyword.
func pathsNaming(listing string, keywords []string) []string {
	var paths []string
	for _, p := range lines(listing) {
		base := strings.ToLower(path.Base(p))
		for _, kw := range keywords {
			if strings.Contains(base, strings.ToLower(kw)) {
				paths = append(paths, p)
				break
			}
		}
	}
	return paths
}

// lines splits command output into trimmed non-empty lines, dropping the
// truncation marker.
func lines(output string) []string {
	var out []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "...") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// preview cuts s to n bytes and marks the cut. n <= 0 keeps s whole.
func preview(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return clip(s, n) + "..."
}

// clip cuts s to at most n bytes without splitting a rune.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
