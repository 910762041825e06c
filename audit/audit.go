// Package audit records every command attempt and outcome.
//
// Information Hiding:
// - Asynchronous delivery hidden behind the Log interface
// - Sink selection (log lines, SQLite) hidden from callers
// - Backpressure handling (drop when full) hidden
package audit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Log is the fire-and-forget audit interface used by the command runner.
// Implementations must not block and must not fail the caller.
type Log interface {
	RecordAttempt(command, sessionID string, allowed bool, reason string)
	RecordResult(command, sessionID string, success bool, outputSize int)
}

// Attempt is one validation decision.
type Attempt struct {
	Command   string    `json:"command"`
	SessionID string    `json:"session_id"`
	Allowed   bool      `json:"validated"`
	Reason    string    `json:"reason"`
	Time      time.Time `json:"timestamp"`
}

// Result is one execution outcome.
type Result struct {
	Command    string    `json:"command"`
	SessionID  string    `json:"session_id"`
	Success    bool      `json:"success"`
	OutputSize int       `json:"output_size"`
	Time       time.Time `json:"timestamp"`
}

// Sink persists audit records. Sinks may block; the Recorder isolates callers from them.
type Sink interface {
	WriteAttempt(ctx context.Context, a Attempt) error
	WriteResult(ctx context.Context, r Result) error
}

type discard struct{}

func (discard) RecordAttempt(string, string, bool, string) {}
func (discard) RecordResult(string, string, bool, int)     {}

// Discard is a Log that drops every record.
var Discard Log = discard{}

// MultiSink writes each record to every sink and joins their errors.
type MultiSink []Sink

// WriteAttempt implements Sink.
func (m MultiSink) WriteAttempt(ctx context.Context, a Attempt) error {
	var errs []error
	for _, s := range m {
		if err := s.WriteAttempt(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteResult implements Sink.
func (m MultiSink) WriteResult(ctx context.Context, r Result) error {
	var errs []error
	for _, s := range m {
		if err := s.WriteResult(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DefaultBufferSize is the Recorder queue length.
const DefaultBufferSize = 256

type record struct {
	attempt *Attempt
	result  *Result
}

// Recorder delivers records to a Sink from a single background goroutine.
// When the queue is full, records are dropped and counted rather than
// blocking the command path.
type Recorder struct {
	sink    Sink
	queue   chan record
	log     *logrus.Entry
	now     func() time.Time
	dropped atomic.Int64
	failed  atomic.Int64

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
}

// NewRecorder starts a recorder draining into sink.
func NewRecorder(sink Sink, bufferSize int, log *logrus.Entry) *Recorder {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	r := &Recorder{
		sink:  sink,
		queue: make(chan record, bufferSize),
		log:   log.WithField("component", "audit"),
		now:   time.Now,
		done:  make(chan struct{}),
	}
	go r.drain()
	return r
}

// RecordAttempt implements Log.
func (r *Recorder) RecordAttempt(command, sessionID string, allowed bool, reason string) {
	r.enqueue(record{attempt: &Attempt{
		Command:   command,
		SessionID: sessionID,
		Allowed:   allowed,
		Reason:    reason,
		Time:      r.now(),
	}})
}

// RecordResult implements Log.
func (r *Recorder) RecordResult(command, sessionID string, success bool, outputSize int) {
	r.enqueue(record{result: &Result{
		Command:    command,
		SessionID:  sessionID,
		Success:    success,
		OutputSize: outputSize,
		Time:       r.now(),
	}})
}

func (r *Recorder) enqueue(rec record) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.queue <- rec:
	default:
		r.dropped.Add(1)
	}
}

func (r *Recorder) drain() {
	defer close(r.done)
	ctx := context.Background()
	for rec := range r.queue {
		var err error
		switch {
		case rec.attempt != nil:
			err = r.sink.WriteAttempt(ctx, *rec.attempt)
		case rec.result != nil:
			err = r.sink.WriteResult(ctx, *rec.result)
		}
		if err != nil {
			r.failed.Add(1)
			r.log.WithError(err).Warn("audit sink write failed")
		}
	}
}

// Close stops accepting records and waits until queued ones are written.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
	})
	<-r.done
}

// Dropped returns how many records were discarded because the queue was full or closed.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Failed returns how many records the sink rejected.
func (r *Recorder) Failed() int64 {
	return r.failed.Load()
}

var _ Log = (*Recorder)(nil)
