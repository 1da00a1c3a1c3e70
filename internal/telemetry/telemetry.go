package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventType represents the type of synthesis event
type EventType string

const (
	EventSynthesisStarted   EventType = "synthesis_started"
	EventFirstAudio         EventType = "first_audio"
	EventSynthesisCompleted EventType = "synthesis_completed"
	EventSynthesisFailed    EventType = "synthesis_failed"
	EventProviderForced     EventType = "provider_forced"
)

// Log writes synthesis events to the database. A nil pool disables it;
// every call becomes a no-op so callers never need to check.
type Log struct {
	db *pgxpool.Pool
}

// New creates a new synthesis event log
func New(db *pgxpool.Pool) *Log {
	return &Log{db: db}
}

// Record writes an event synchronously
func (l *Log) Record(ctx context.Context, requestID string, eventType EventType, data map[string]any) error {
	if l.db == nil || requestID == "" {
		return nil
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		dataJSON = []byte("{}")
	}

	_, err = l.db.Exec(ctx, `
		INSERT INTO synthesis_events (request_id, event_type, event_data)
		VALUES ($1, $2, $3)
	`, requestID, string(eventType), dataJSON)

	return err
}

// RecordAsync writes an event without blocking the caller
func (l *Log) RecordAsync(requestID string, eventType EventType, data map[string]any) {
	if l.db == nil || requestID == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Record(ctx, requestID, eventType, data)
	}()
}

// RecordTTFB implements the adapters' time-to-first-byte sink. The
// measurement is keyed by provider, not by request: adapters observe
// the clock, the gateway correlates.
func (l *Log) RecordTTFB(provider string, d time.Duration) {
	if l.db == nil || provider == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = l.db.Exec(ctx, `
			INSERT INTO synthesis_ttfb (provider, ttfb_ms)
			VALUES ($1, $2)
		`, provider, d.Milliseconds())
	}()
}
