// internal/audit/audit.go
//
// Fire-and-forget operational audit log.
//
// Context
// -------
// Every stage of a request (gate, limiter, store, provisioner) records
// what it did.  Record never blocks and never fails the caller: the zap
// sink is synchronous and cheap, the optional database sink is a buffered
// channel drained by one background writer, and events are dropped (and
// counted) when the buffer is full.  Losing an audit row is never a
// correctness failure for the rest of the system.
//
// Events are enriched from the request context when present: request id,
// caller id, UA summary, and geo country.

package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siteforge/siteforge/internal/authz"
	"github.com/siteforge/siteforge/internal/requestinfo"
)

// Levels accepted by Record.  Anything else is coerced to info.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Event is one audit record.
type Event struct {
	ID        string
	Time      time.Time
	Level     string
	Component string
	Action    string
	Message   string
	RequestID string
	CallerID  uint64
	Country   string
	Data      map[string]any
}

// Sink receives events that survived enrichment.  Submit must not block.
type Sink interface {
	Submit(ev Event)
	Close()
}

// Recorder fans events out to zap and the optional sink.
type Recorder struct {
	logger *zap.Logger
	sink   Sink // may be nil
}

// NewRecorder builds a Recorder.  sink may be nil when the DB sink is
// disabled in config.
func NewRecorder(logger *zap.Logger, sink Sink) *Recorder {
	return &Recorder{logger: logger, sink: sink}
}

// Record appends one event.  ctx supplies request id, caller, and geo
// when the enrichment middleware has run; a background job may pass
// context.Background() and get a bare event.
func (r *Recorder) Record(ctx context.Context, level, component, action, message string, data map[string]any) {
	ev := Event{
		ID:        uuid.NewString(),
		Time:      time.Now(),
		Level:     level,
		Component: component,
		Action:    action,
		Message:   message,
		Data:      data,
	}
	switch level {
	case LevelInfo, LevelWarn, LevelError:
	default:
		ev.Level = LevelInfo
	}

	if info := requestinfo.FromContext(ctx); info != nil {
		ev.RequestID = info.RequestID
		ev.Country = info.Geo.CountryISO
	}
	if p := authz.FromContext(ctx); !p.Anonymous() {
		ev.CallerID = p.UserID
	}

	fields := []zap.Field{
		zap.String("audit_id", ev.ID),
		zap.String("component", ev.Component),
		zap.String("action", ev.Action),
		zap.String("request_id", ev.RequestID),
		zap.Uint64("caller_id", ev.CallerID),
	}
	if ev.Country != "" {
		fields = append(fields, zap.String("country", ev.Country))
	}
	if len(ev.Data) > 0 {
		fields = append(fields, zap.Any("data", ev.Data))
	}

	switch ev.Level {
	case LevelError:
		r.logger.Error(ev.Message, fields...)
	case LevelWarn:
		r.logger.Warn(ev.Message, fields...)
	default:
		r.logger.Info(ev.Message, fields...)
	}

	if r.sink != nil {
		r.sink.Submit(ev)
	}
}

// Close flushes the sink, if any.  Call once on shutdown.
func (r *Recorder) Close() {
	if r.sink != nil {
		r.sink.Close()
	}
}
