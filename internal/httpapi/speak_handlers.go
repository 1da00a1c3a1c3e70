package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/lukasbauer/aloud/internal/costs"
	"github.com/lukasbauer/aloud/internal/telemetry"
)

type speakRequest struct {
	Text string `json:"text"`
}

// handleSpeak synthesizes text and streams the raw audio back as a
// chunked octet-stream. Each relayed chunk is flushed so time-to-first-
// audio survives the HTTP hop.
func (r *Router) handleSpeak(w http.ResponseWriter, req *http.Request) {
	var body speakRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}

	text := r.norm.Normalize(body.Text)
	if text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
		return
	}

	requestID := uuid.NewString()
	r.events.RecordAsync(requestID, telemetry.EventSynthesisStarted, map[string]any{
		"chars": len(text),
	})

	chunks, errs := r.speech.Synthesize(req.Context(), text).Start(req.Context())

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Request-ID", requestID)
	flusher, _ := w.(http.Flusher)

	wrote := false
	for chunk := range chunks {
		if len(chunk.Data) == 0 {
			continue
		}
		if _, err := w.Write(chunk.Data); err != nil {
			// client went away; the request context cancels the stream
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		if !wrote {
			r.events.RecordAsync(requestID, telemetry.EventFirstAudio, map[string]any{
				"provider": r.speech.ActiveProvider(),
			})
		}
		wrote = true
	}

	if err := <-errs; err != nil {
		r.events.RecordAsync(requestID, telemetry.EventSynthesisFailed, map[string]any{
			"error":    err.Error(),
			"provider": r.speech.ActiveProvider(),
		})
		captureError(req, err, "synthesis failed")
		if !wrote {
			writeJSON(w, statusForErr(err), map[string]string{"error": err.Error()})
		}
		return
	}

	provider := r.speech.ActiveProvider()
	r.events.RecordAsync(requestID, telemetry.EventSynthesisCompleted, map[string]any{
		"provider":   provider,
		"cost_cents": costs.EstimateCents(provider, len(text)),
	})
}

func (r *Router) handleListProviders(w http.ResponseWriter, _ *http.Request) {
	type providerInfo struct {
		Name            string  `json:"name"`
		Health          string  `json:"health"`
		CentsPerKiloChr float64 `json:"cents_per_1k_chars"`
	}

	names := r.speech.RegisteredProviders()
	providers := make([]providerInfo, 0, len(names))
	for _, name := range names {
		status, _ := r.speech.ProviderHealth(name)
		providers = append(providers, providerInfo{
			Name:            name,
			Health:          string(status),
			CentsPerKiloChr: costs.RatePerThousandChars(name),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"providers": providers,
		"active":    r.speech.ActiveProvider(),
		"available": r.speech.HasAvailableProvider(),
	})
}

func (r *Router) handleForceProvider(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	if !r.speech.ForceProvider(body.Name) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown provider"})
		return
	}

	r.events.RecordAsync(body.Name, telemetry.EventProviderForced, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleClearForced(w http.ResponseWriter, _ *http.Request) {
	r.speech.ClearForcedProvider()
	w.WriteHeader(http.StatusNoContent)
}
