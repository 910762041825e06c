package audit

import (
	"context"

	"github.com/sirupsen/logrus"
)

// maxLoggedCommand bounds the command text written to log lines.
const maxLoggedCommand = 200

// LogSink writes audit records as structured log lines.
type LogSink struct {
	log *logrus.Entry
}

// NewLogSink creates a sink writing through logger.
func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{log: logrus.NewEntry(logger).WithField("component", "audit")}
}

// WriteAttempt implements Sink.
func (s *LogSink) WriteAttempt(_ context.Context, a Attempt) error {
	entry := s.log.WithFields(logrus.Fields{
		"event":      "command_attempt",
		"command":    truncate(a.Command, maxLoggedCommand),
		"session_id": a.SessionID,
		"validated":  a.Allowed,
		"reason":     a.Reason,
	}).WithTime(a.Time)
	if a.Allowed {
		entry.Info("command attempt")
	} else {
		entry.Warn("command denied")
	}
	return nil
}

// WriteResult implements Sink.
func (s *LogSink) WriteResult(_ context.Context, r Result) error {
	s.log.WithFields(logrus.Fields{
		"event":       "command_result",
		"command":     truncate(r.Command, maxLoggedCommand),
		"session_id":  r.SessionID,
		"success":     r.Success,
		"output_size": r.OutputSize,
	}).WithTime(r.Time).Info("command result")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ Sink = (*LogSink)(nil)
