package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/twofactor/internal/mfa/domain"
	"github.com/aussiebroadwan/twofactor/pkg/idx"
	"github.com/aussiebroadwan/twofactor/pkg/metricsx"
)

const (
	defaultAuditTimeout   = 2 * time.Second
	defaultAuditQueueSize = 1024
)

// AuditSink receives security events. Sinks may be slow or fail; neither
// affects the outcome of the operation that produced the event.
type AuditSink interface {
	Name() string
	Emit(ctx context.Context, e domain.AuditEvent) error
}

// AuditRecorder fans events out to every configured sink.
//
// Once started, Record only enqueues and a single worker delivers events in
// order. A full queue drops the event. Before Start, events are delivered on
// the caller's goroutine.
type AuditRecorder struct {
	Sinks     []AuditSink
	Logger    *slog.Logger
	Metrics   *metricsx.MFA
	Timeout   time.Duration
	QueueSize int
	Now       func() time.Time

	mu      sync.RWMutex
	queue   chan domain.AuditEvent
	done    chan struct{}
	stopped bool
}

func NewAuditRecorder(logger *slog.Logger, m *metricsx.MFA, sinks ...AuditSink) *AuditRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditRecorder{
		Sinks:     sinks,
		Logger:    logger,
		Metrics:   m,
		Timeout:   defaultAuditTimeout,
		QueueSize: defaultAuditQueueSize,
		Now:       time.Now,
	}
}

// Start launches the delivery worker.
func (r *AuditRecorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.queue != nil || r.stopped {
		return
	}

	size := r.QueueSize
	if size <= 0 {
		size = defaultAuditQueueSize
	}
	r.queue = make(chan domain.AuditEvent, size)
	r.done = make(chan struct{})
	go r.run(r.queue, r.done)
}

// Stop delivers what is already queued and stops the worker. Events
// recorded afterwards are dropped. Safe to call more than once.
func (r *AuditRecorder) Stop() {
	r.mu.Lock()
	queue, done := r.queue, r.done
	r.queue = nil
	r.stopped = true
	r.mu.Unlock()

	if queue == nil {
		return
	}
	close(queue)
	<-done
}

func (r *AuditRecorder) run(queue <-chan domain.AuditEvent, done chan<- struct{}) {
	defer close(done)
	for e := range queue {
		r.deliver(context.Background(), e)
	}
}

// Record stamps the event and hands it to the sinks. Sink errors are logged
// and counted, never returned. A nil recorder drops the event.
func (r *AuditRecorder) Record(ctx context.Context, e domain.AuditEvent) {
	if r == nil || len(r.Sinks) == 0 {
		return
	}

	if e.ID == "" {
		e.ID = idx.New().String()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = r.now().UTC()
	}
	if e.Level == "" {
		e.Level = domain.LevelInfo
	}

	r.mu.RLock()
	if r.queue != nil {
		select {
		case r.queue <- e:
		default:
			r.drop(e, "queue full")
		}
		r.mu.RUnlock()
		return
	}
	stopped := r.stopped
	r.mu.RUnlock()

	if stopped {
		r.drop(e, "recorder stopped")
		return
	}
	r.deliver(ctx, e)
}

func (r *AuditRecorder) drop(e domain.AuditEvent, reason string) {
	r.Logger.Error("audit event dropped", "reason", reason, "action", e.Action, "user_id", e.UserID)
	r.Metrics.ObserveAuditFailure("queue")
}

func (r *AuditRecorder) deliver(ctx context.Context, e domain.AuditEvent) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultAuditTimeout
	}
	for _, sink := range r.Sinks {
		r.emit(ctx, sink, e, timeout)
	}
}

func (r *AuditRecorder) emit(ctx context.Context, sink AuditSink, e domain.AuditEvent, timeout time.Duration) {
	// The request may be cancelled right after we answer it; the event
	// should still land.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			r.Logger.Error("audit sink panicked", "sink", sink.Name(), "action", e.Action, "panic", rec)
			r.Metrics.ObserveAuditFailure(sink.Name())
		}
	}()

	if err := sink.Emit(ctx, e); err != nil {
		r.Logger.Error("audit sink failed",
			"sink", sink.Name(),
			"action", e.Action,
			"user_id", e.UserID,
			"error", err,
		)
		r.Metrics.ObserveAuditFailure(sink.Name())
	}
}

func (r *AuditRecorder) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func loginSuccess(userID string, method domain.Method, meta domain.RequestMeta, remaining *int) domain.AuditEvent {
	return domain.AuditEvent{
		Action: domain.ActionLoginSuccess,
		UserID: userID,
		Level:  domain.LevelInfo,
		Details: domain.AuditDetails{
			Method:               method,
			RemainingBackupCodes: remaining,
		},
		Meta: meta,
	}
}

func loginFailed(userID string, method domain.Method, meta domain.RequestMeta) domain.AuditEvent {
	return domain.AuditEvent{
		Action:  domain.ActionLoginFailed,
		UserID:  userID,
		Level:   domain.LevelWarn,
		Details: domain.AuditDetails{Method: method},
		Meta:    meta,
	}
}
