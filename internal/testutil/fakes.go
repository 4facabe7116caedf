package testutil

import (
	"context"
	"sync"

	"github.com/ukydev/fleet-logbook/internal/audit"
)

// AuditEvent is one call to AuditLog.Record.
type AuditEvent struct {
	Action  string
	Target  string
	Actor   string
	Details map[string]string
}

// AuditLog is a synchronous audit.Auditor that keeps every event.
type AuditLog struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (a *AuditLog) Record(ctx context.Context, action, target string, details map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, AuditEvent{Action: action, Target: target, Actor: audit.ActorFrom(ctx), Details: details})
}

// Events returns a copy of the recorded events.
func (a *AuditLog) Events() []AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]AuditEvent(nil), a.events...)
}

// Actions lists the recorded actions in order.
func (a *AuditLog) Actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.events))
	for i, e := range a.events {
		out[i] = e.Action
	}
	return out
}

// Invalidations counts InvalidateAll calls and can be told to fail.
type Invalidations struct {
	mu    sync.Mutex
	count int
	Err   error
}

func (i *Invalidations) InvalidateAll(context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.count++
	return i.Err
}

// Count returns the number of InvalidateAll calls so far.
func (i *Invalidations) Count() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.count
}
