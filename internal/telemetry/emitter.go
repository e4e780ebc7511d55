package telemetry

import (
	"context"

	"pickup-portal/client/internal/telemetry/domain"
)

// EventEmitter emits session events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.SessionEvent) error
}

// Nop is an EventEmitter that drops every event.
type Nop struct{}

// Emit does nothing.
func (Nop) Emit(context.Context, *domain.SessionEvent) error { return nil }
