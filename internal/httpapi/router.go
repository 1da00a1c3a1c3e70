package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/lukasbauer/aloud/internal/telemetry"
	"github.com/lukasbauer/aloud/internal/textnorm"
	"github.com/lukasbauer/aloud/internal/tts"
)

type RouterConfig struct {
	// JWT Authentication; empty secret disables auth on /v1
	JWTSecret string
}

type Router struct {
	cfg    RouterConfig
	logger *log.Logger
	speech *tts.Router
	norm   *textnorm.Normalizer
	events *telemetry.Log
	mux    *http.ServeMux
}

func NewRouter(cfg RouterConfig, logger *log.Logger, speech *tts.Router, norm *textnorm.Normalizer, events *telemetry.Log) http.Handler {
	r := &Router{
		cfg:    cfg,
		logger: logger,
		speech: speech,
		norm:   norm,
		events: events,
		mux:    http.NewServeMux(),
	}

	r.routes()
	return withSentryRecovery(withCORS(r.mux))
}

func (r *Router) routes() {
	// Health check
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)

	// Synthesis
	r.mux.HandleFunc("POST /v1/speak", r.withAuth(r.handleSpeak))
	r.mux.HandleFunc("GET /v1/speak/ws", r.handleSpeakWS)

	// Provider registry
	r.mux.HandleFunc("GET /v1/providers", r.withAuth(r.handleListProviders))
	r.mux.HandleFunc("POST /v1/providers/force", r.withAuth(r.handleForceProvider))
	r.mux.HandleFunc("DELETE /v1/providers/force", r.withAuth(r.handleClearForced))
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusForErr maps the synthesis error taxonomy to HTTP statuses.
func statusForErr(err error) int {
	switch {
	case errors.Is(err, tts.ErrNoProvider):
		return http.StatusServiceUnavailable
	case errors.Is(err, tts.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, tts.ErrEmptyText):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}
