package tts

import (
	"context"
	"errors"
	"time"
)

// Chunk is one unit of a synthesized audio stream. First marks the
// earliest chunk carrying audible payload; Last marks the end of the
// stream and may carry no data. Ownership of Data passes to the consumer
// when the chunk is emitted.
type Chunk struct {
	Data  []byte
	First bool
	Last  bool
}

// Provider is a single synthesis backend (cloud, self-hosted or
// on-device).
type Provider interface {
	// Name returns the stable identifier used as the router's lookup key.
	Name() string

	// Synthesize returns a cold stream for the given text. No network or
	// device activity happens until the stream is started.
	Synthesize(ctx context.Context, text string) *Stream

	// Stop cancels any in-flight synthesis on this provider. Safe to call
	// when nothing is in flight.
	Stop()
}

// HealthStatus is the coarse liveness signal the router uses to exclude
// failing providers from selection.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// HealthReporter is the per-provider health collaborator. The router
// consumes the status and feeds back per-stream outcomes; it never
// inspects why a provider is unhealthy.
type HealthReporter interface {
	StartMonitoring()
	StopMonitoring()
	Status() HealthStatus
	RecordSuccess()
	RecordFailure()
}

// TTFBRecorder receives time-to-first-byte measurements from adapters
// that can observe them. Implementations must not block.
type TTFBRecorder interface {
	RecordTTFB(provider string, d time.Duration)
}

var (
	// ErrAuth marks 401/403-class failures so callers can prompt for
	// credential repair instead of retrying blindly.
	ErrAuth = errors.New("tts: authentication failed")

	// ErrRateLimited marks 429-class failures so callers can back off.
	ErrRateLimited = errors.New("tts: rate limited")

	// ErrNoProvider is returned when no registered provider is available.
	ErrNoProvider = errors.New("tts: no providers available")

	// ErrNotInitialized is returned when a local engine did not finish
	// initializing within its bounded wait.
	ErrNotInitialized = errors.New("tts: engine not initialized")

	// ErrEmptyText is returned by adapters that reject empty input.
	ErrEmptyText = errors.New("tts: empty text")
)
