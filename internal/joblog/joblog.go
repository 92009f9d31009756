// Package joblog reports operational events from batch jobs. Every message is
// emitted as a leveled, timestamped zap entry tagged with the job name and
// persisted best-effort to the job_logs table. The caller never decides how
// the messages are displayed or routed.
package joblog

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Entry is one persisted job log row.
type Entry struct {
	JobName   string
	Level     string
	Message   string
	CreatedAt time.Time
}

// Store persists job log entries.
type Store interface {
	InsertJobLog(ctx context.Context, e Entry) error
}

// Recorder emits job events to zap and to an optional Store.
type Recorder struct {
	job   string
	log   *zap.Logger
	store Store
}

// New creates a Recorder for the given job name. store may be nil, in which
// case entries are only logged.
func New(job string, log *zap.Logger, store Store) *Recorder {
	return &Recorder{job: job, log: log.With(zap.String("job", job)), store: store}
}

// NewNop returns a Recorder that discards everything. Intended for tests.
func NewNop() *Recorder {
	return &Recorder{job: "nop", log: zap.NewNop()}
}

// Info records an informational event.
func (r *Recorder) Info(ctx context.Context, msg string, fields ...zap.Field) {
	r.log.Info(msg, fields...)
	r.persist(ctx, "INFO", msg)
}

// Warn records a recoverable anomaly.
func (r *Recorder) Warn(ctx context.Context, msg string, fields ...zap.Field) {
	r.log.Warn(msg, fields...)
	r.persist(ctx, "WARNING", msg)
}

// Error records a failure.
func (r *Recorder) Error(ctx context.Context, msg string, fields ...zap.Field) {
	r.log.Error(msg, fields...)
	r.persist(ctx, "ERROR", msg)
}

func (r *Recorder) persist(ctx context.Context, level, msg string) {
	if r.store == nil {
		return
	}
	e := Entry{
		JobName:   r.job,
		Level:     level,
		Message:   msg,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.InsertJobLog(ctx, e); err != nil {
		// The observability record must never take the job down with it.
		r.log.Error("failed to persist job log entry", zap.Error(err))
	}
}
