// Package audit records who changed what. Recording is fire-and-forget: a
// slow or failing sink never blocks or fails the operation being audited.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-logbook/internal/models"
)

// Actions recorded by the logbook.
const (
	ActionTripCheckout   = "trip.checkout"
	ActionTripReturn     = "trip.return"
	ActionTripCancel     = "trip.cancel"
	ActionTripEdit       = "trip.edit"
	ActionTripDelete     = "trip.delete"
	ActionRefillCreate   = "refill.create"
	ActionRefillEdit     = "refill.edit"
	ActionRefillDelete   = "refill.delete"
	ActionDriverCreate   = "driver.create"
	ActionDriverUpdate   = "driver.update"
	ActionDriverDelete   = "driver.delete"
	ActionVehicleCreate  = "vehicle.create"
	ActionVehicleUpdate  = "vehicle.update"
	ActionVehicleDelete  = "vehicle.delete"
	ActionDocumentUpload = "document.upload"
	ActionCacheClear     = "cache.clear"
	ActionUserRegister   = "user.register"
	ActionUserDelete     = "user.delete"
	ActionCounterFix     = "maintenance.counters"
)

// Auditor accepts audit events.
type Auditor interface {
	Record(ctx context.Context, action, target string, details map[string]string)
}

// Sink persists or forwards entries.
type Sink interface {
	Name() string
	Write(ctx context.Context, entry models.AuditEntry) error
}

type actorKey struct{}

// WithActor stores the acting username in ctx.
func WithActor(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, actorKey{}, username)
}

// ActorFrom returns the acting username, "system" when none is set.
func ActorFrom(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey{}).(string); ok && v != "" {
		return v
	}
	return "system"
}

// Nop discards every event.
type Nop struct{}

// Record does nothing.
func (Nop) Record(context.Context, string, string, map[string]string) {}

// Recorder queues entries and fans them out to sinks on a worker goroutine.
type Recorder struct {
	log          logrus.FieldLogger
	sinks        []Sink
	queue        chan models.AuditEntry
	now          func() time.Time
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewRecorder creates a recorder with a queue of size buffer and starts its worker.
func NewRecorder(log logrus.FieldLogger, buffer int, sinks ...Sink) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	r := &Recorder{
		log:          log.WithField("component", "audit"),
		sinks:        sinks,
		queue:        make(chan models.AuditEntry, buffer),
		now:          time.Now,
		writeTimeout: 5 * time.Second,
		done:         make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues an entry. When the queue is full the entry is dropped.
func (r *Recorder) Record(ctx context.Context, action, target string, details map[string]string) {
	entry := models.AuditEntry{
		EventID: uuid.NewString(),
		Action:  action,
		Actor:   ActorFrom(ctx),
		Target:  target,
		Details: details,
		At:      r.now().UTC(),
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.log.WithField("action", action).Warn("audit recorder closed, entry dropped")
		return
	}
	select {
	case r.queue <- entry:
	default:
		r.log.WithFields(logrus.Fields{"action": action, "target": target}).Warn("audit queue full, entry dropped")
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for entry := range r.queue {
		for _, sink := range r.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
			if err := sink.Write(ctx, entry); err != nil {
				r.log.WithError(err).WithFields(logrus.Fields{
					"sink":     sink.Name(),
					"action":   entry.Action,
					"event_id": entry.EventID,
				}).Error("audit sink write failed")
			}
			cancel()
		}
	}
}

// Close stops accepting entries and waits for the queue to drain or ctx to end.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
