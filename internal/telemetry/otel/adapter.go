package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"pickup-portal/client/internal/telemetry"
	"pickup-portal/client/internal/telemetry/domain"
)

const instrumentationName = "pickup-portal/session"

// recordEmitter is the part of otellog.Logger the emitter uses.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends session events as OTel log records
// via provider. A nil provider yields a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return telemetry.Nop{}
	}
	return &otelEmitter{logger: provider.Logger(instrumentationName)}
}

// NewEventEmitterWithLogger wraps anything that emits log records. Used in tests.
func NewEventEmitterWithLogger(l recordEmitter) telemetry.EventEmitter {
	return &otelEmitter{logger: l}
}

type otelEmitter struct {
	logger recordEmitter
}

// Emit converts the event to a log record. Empty fields are not added as attributes.
func (e *otelEmitter) Emit(ctx context.Context, event *domain.SessionEvent) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	ts := event.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetObservedTimestamp(time.Now().UTC())
	rec.SetEventName("session." + string(event.Type))
	rec.SetSeverity(severity(event.Type))
	rec.SetBody(otellog.StringValue(string(event.Type)))

	add := func(key, val string) {
		if val != "" {
			rec.AddAttributes(otellog.String(key, val))
		}
	}
	add("event_id", event.ID)
	add("event_type", string(event.Type))
	add("source", event.Source)
	add("phone_masked", event.PhoneMasked)
	add("user_status", event.Status)
	add("reason", event.Reason)

	e.logger.Emit(ctx, rec)
	return nil
}

func severity(t domain.EventType) otellog.Severity {
	switch t {
	case domain.EventForcedLogout, domain.EventRefreshFailed:
		return otellog.SeverityWarn
	default:
		return otellog.SeverityInfo
	}
}
