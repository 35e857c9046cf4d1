// internal/audit/sql_sink.go
//
// Optional database sink: buffered channel, one background writer,
// drop-on-overflow.  A query-by-filters read API over audit_event is a
// convenience for operators and lives in SQL, not here.

package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/siteforge/siteforge/internal/metrics"
)

// insertTimeout bounds each append so a stalled database cannot wedge the
// writer goroutine behind one row.
const insertTimeout = 5 * time.Second

// SQLSink appends events to the audit_event table.
type SQLSink struct {
	db     *sqlx.DB
	ch     chan Event
	done   chan struct{}
	logger *zap.Logger
}

// NewSQLSink starts the background writer.  bufferSize comes from
// config.Audit.BufferSize.
func NewSQLSink(db *sqlx.DB, bufferSize int, logger *zap.Logger) *SQLSink {
	s := &SQLSink{
		db:     db,
		ch:     make(chan Event, bufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go s.writeLoop()
	return s
}

// Submit implements Sink.  Full buffer drops the event and counts it.
func (s *SQLSink) Submit(ev Event) {
	select {
	case s.ch <- ev:
	default:
		metrics.AuditDroppedTotal.Inc()
	}
}

// Close stops the writer after draining whatever is buffered.
func (s *SQLSink) Close() {
	close(s.ch)
	<-s.done
}

func (s *SQLSink) writeLoop() {
	defer close(s.done)
	const q = `
	    INSERT INTO audit_event
	        (id, at, level, component, action, message, request_id, caller_id, country, data)
	    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	for ev := range s.ch {
		data, err := json.Marshal(ev.Data)
		if err != nil {
			data = []byte("{}")
		}

		ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
		_, err = s.db.ExecContext(ctx, q,
			ev.ID, ev.Time, ev.Level, ev.Component, ev.Action, ev.Message,
			ev.RequestID, ev.CallerID, ev.Country, data)
		cancel()
		if err != nil {
			// Best-effort by contract; log and move on.
			metrics.AuditDroppedTotal.Inc()
			s.logger.Warn("audit insert failed", zap.Error(err))
		}
	}
}
