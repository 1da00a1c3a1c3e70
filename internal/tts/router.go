package tts

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
)

// Priority orders providers for selection; lower values are preferred.
type Priority int

const (
	PriorityOnDevice Priority = iota
	PrioritySelfHosted
	PriorityCloudPrimary
	PriorityCloudSecondary
	PriorityCloudFallback
)

func (p Priority) String() string {
	switch p {
	case PriorityOnDevice:
		return "on-device"
	case PrioritySelfHosted:
		return "self-hosted"
	case PriorityCloudPrimary:
		return "cloud-primary"
	case PriorityCloudSecondary:
		return "cloud-secondary"
	case PriorityCloudFallback:
		return "cloud-fallback"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Registration binds a provider to its selection priority and optional
// health collaborator. The router observes providers; it never owns
// their lifetime.
type Registration struct {
	Provider           Provider
	Priority           Priority
	Health             HealthReporter // optional; absent means always healthy
	RequiresCredential bool
	OnDevice           bool
}

// Router holds a prioritized registry of providers and selects the best
// currently-healthy one for each synthesis call. A pinned ("forced")
// provider bypasses both priority and health. The router never retries
// with the next provider inside a single call: mid-stream failover would
// risk double-speaking already-emitted audio. A fresh call after a
// failure naturally selects a different provider once the failed one is
// marked unhealthy.
type Router struct {
	logger *log.Logger

	mu     sync.Mutex
	regs   []Registration
	active string // last selected, diagnostics only
	forced string
}

// NewRouter creates an empty router.
func NewRouter(logger *log.Logger) *Router {
	if logger == nil {
		logger = log.Default()
	}
	return &Router{logger: logger}
}

// Register adds a provider, starts its health monitoring, and re-sorts
// the registry by ascending priority. Two live providers with the same
// name is a configuration error.
func (r *Router) Register(reg Registration) error {
	if reg.Provider == nil {
		return fmt.Errorf("tts: register: provider is nil")
	}
	name := reg.Provider.Name()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.regs {
		if existing.Provider.Name() == name {
			return fmt.Errorf("tts: provider %q already registered", name)
		}
	}

	r.regs = append(r.regs, reg)
	sort.SliceStable(r.regs, func(i, j int) bool {
		return r.regs[i].Priority < r.regs[j].Priority
	})

	if reg.Health != nil {
		reg.Health.StartMonitoring()
	}
	r.logger.Printf("tts: registered provider %q (%s)", name, reg.Priority)
	return nil
}

// Unregister removes a provider by name and stops its health
// monitoring. Unknown names are ignored.
func (r *Router) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, reg := range r.regs {
		if reg.Provider.Name() != name {
			continue
		}
		if reg.Health != nil {
			reg.Health.StopMonitoring()
		}
		r.regs = append(r.regs[:i], r.regs[i+1:]...)
		if r.forced == name {
			r.forced = ""
		}
		if r.active == name {
			r.active = ""
		}
		r.logger.Printf("tts: unregistered provider %q", name)
		return
	}
}

// pick runs the selection algorithm: forced pin first, otherwise the
// first non-unhealthy provider in ascending priority order.
func (r *Router) pick() (Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.forced != "" {
		for _, reg := range r.regs {
			if reg.Provider.Name() == r.forced {
				return reg, nil
			}
		}
	}

	for _, reg := range r.regs {
		if reg.Health != nil && reg.Health.Status() == HealthUnhealthy {
			continue
		}
		return reg, nil
	}
	return Registration{}, ErrNoProvider
}

// Synthesize returns a cold stream. Provider selection happens when the
// stream is started, so restarting a failed stream re-runs selection.
// Chunks from the selected provider are relayed unmodified and in
// order. Exactly one success or failure is recorded against the
// provider's health collaborator per completed attempt; a cancelled
// attempt, whether through the caller's context or the provider's Stop,
// records neither.
func (r *Router) Synthesize(ctx context.Context, text string) *Stream {
	return NewStream(func(ctx context.Context, out chan<- Chunk) error {
		reg, err := r.pick()
		if err != nil {
			return err
		}

		r.mu.Lock()
		r.active = reg.Provider.Name()
		r.mu.Unlock()

		chunks, errs := reg.Provider.Synthesize(ctx, text).Start(ctx)
		sawLast := false
		for chunk := range chunks {
			if chunk.Last {
				sawLast = true
			}
			if sendErr := sendChunk(ctx, out, chunk); sendErr != nil {
				return sendErr
			}
		}
		if err := <-errs; err != nil {
			if reg.Health != nil {
				reg.Health.RecordFailure()
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A stream that was not cancelled ends with a terminal chunk or an
		// error. A clean close without either means the attempt was
		// cancelled on the provider side (its Stop); that says nothing
		// about backend health, so no outcome is recorded.
		if !sawLast {
			return nil
		}
		if reg.Health != nil {
			reg.Health.RecordSuccess()
		}
		return nil
	})
}

// Stop cancels in-flight synthesis on every registered provider. Safe
// when nothing is in flight.
func (r *Router) Stop() {
	r.mu.Lock()
	regs := make([]Registration, len(r.regs))
	copy(regs, r.regs)
	r.mu.Unlock()

	for _, reg := range regs {
		reg.Provider.Stop()
	}
}

// ForceProvider pins the named provider, bypassing priority and health,
// and reports whether the pin took effect.
func (r *Router) ForceProvider(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, reg := range r.regs {
		if reg.Provider.Name() == name {
			r.forced = name
			r.logger.Printf("tts: forced provider %q", name)
			return true
		}
	}
	r.logger.Printf("tts: cannot force unknown provider %q", name)
	return false
}

// ClearForcedProvider removes the pin. Always succeeds.
func (r *Router) ClearForcedProvider() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forced = ""
}

// RegisteredProviders lists provider names in priority order.
func (r *Router) RegisteredProviders() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.regs))
	for _, reg := range r.regs {
		names = append(names, reg.Provider.Name())
	}
	return names
}

// ProviderHealth reports the named provider's status. A provider
// without a health collaborator is healthy by default; an unknown name
// reports false.
func (r *Router) ProviderHealth(name string) (HealthStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, reg := range r.regs {
		if reg.Provider.Name() != name {
			continue
		}
		if reg.Health == nil {
			return HealthHealthy, true
		}
		return reg.Health.Status(), true
	}
	return "", false
}

// ActiveProvider reports the last selected provider name, for
// diagnostics.
func (r *Router) ActiveProvider() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// HasAvailableProvider runs the selection logic read-only.
func (r *Router) HasAvailableProvider() bool {
	_, err := r.pick()
	return err == nil
}

// Shutdown stops all health monitoring and clears the registry and any
// pin. Idempotent.
func (r *Router) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, reg := range r.regs {
		if reg.Health != nil {
			reg.Health.StopMonitoring()
		}
	}
	r.regs = nil
	r.forced = ""
	r.active = ""
}
