// Package progress is the side channel analyses use to report milestones.
package progress

import "log/slog"

// Reporter is notified at coarse milestones of an analysis.
type Reporter interface {
	Step(n, total int, comment string)
	Fail(err error)
}

// Nop discards all notifications.
type Nop struct{}

func (Nop) Step(int, int, string) {}
func (Nop) Fail(error)            {}

// Log reports milestones through a slog.Logger.
type Log struct {
	Logger *slog.Logger
	Attrs  []any
}

// NewLog returns a Reporter writing to l with the given key/value attributes.
func NewLog(l *slog.Logger, attrs ...any) *Log {
	if l == nil {
		l = slog.Default()
	}
	return &Log{Logger: l, Attrs: attrs}
}

// Step implements Reporter.
func (r *Log) Step(n, total int, comment string) {
	r.Logger.Info(comment, append([]any{"step", n, "of", total}, r.Attrs...)...)
}

// Fail implements Reporter.
func (r *Log) Fail(err error) {
	r.Logger.Error("analysis failed", append([]any{"err", err}, r.Attrs...)...)
}
