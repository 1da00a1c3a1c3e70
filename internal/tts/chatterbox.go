package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// minAudioSize is the smallest plausible audio payload: a bare WAV
// header. Anything smaller is treated as a backend failure rather than
// a truncated success.
const minAudioSize = 44

// Chatterbox is a single-shot adapter for a self-hosted Chatterbox
// server: one POST, the complete audio body back, emitted as a single
// payload chunk plus a terminal marker. Trades time-to-first-byte for
// simplicity; it never attempts partial delivery.
type Chatterbox struct {
	url        string
	settings   ChatterboxSettings
	httpClient *http.Client
	stops      stopper
}

// ChatterboxSettings are the synthesis tuning values sent with every
// request. Construction of the adapter fails on out-of-range values.
type ChatterboxSettings struct {
	VoiceID      string
	Language     string
	Exaggeration float64 // 0.25-2.0, emotional intensity
	CFGWeight    float64 // 0.0-1.0, guidance weight
	Speed        float64 // 0.5-2.0
}

// Validate rejects out-of-range values. Values are never clamped.
func (s ChatterboxSettings) Validate() error {
	if s.Exaggeration < 0.25 || s.Exaggeration > 2 {
		return fmt.Errorf("chatterbox: exaggeration %v out of range [0.25, 2]", s.Exaggeration)
	}
	if s.CFGWeight < 0 || s.CFGWeight > 1 {
		return fmt.Errorf("chatterbox: cfg_weight %v out of range [0, 1]", s.CFGWeight)
	}
	if s.Speed < 0.5 || s.Speed > 2 {
		return fmt.Errorf("chatterbox: speed %v out of range [0.5, 2]", s.Speed)
	}
	return nil
}

// Pre-validated settings presets.
var (
	// ChatterboxNarration is the default reading voice: neutral delivery
	// at normal pace.
	ChatterboxNarration = ChatterboxSettings{
		Language:     "en",
		Exaggeration: 0.5,
		CFGWeight:    0.5,
		Speed:        1.0,
	}

	// ChatterboxExpressive leans into emotional delivery for dialogue.
	ChatterboxExpressive = ChatterboxSettings{
		Language:     "en",
		Exaggeration: 1.2,
		CFGWeight:    0.3,
		Speed:        0.95,
	}
)

// ChatterboxConfig holds configuration for the Chatterbox adapter.
type ChatterboxConfig struct {
	URL        string // e.g. http://localhost:8004/tts
	Settings   ChatterboxSettings
	HTTPClient *http.Client
}

// NewChatterbox creates the single-shot Chatterbox adapter.
func NewChatterbox(cfg ChatterboxConfig) (*Chatterbox, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("chatterbox: url is required")
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Chatterbox{
		url:        cfg.URL,
		settings:   cfg.Settings,
		httpClient: httpClient,
	}, nil
}

// chatterboxRequest is the JSON request body.
type chatterboxRequest struct {
	Text         string  `json:"text"`
	VoiceID      string  `json:"voice_id,omitempty"`
	Language     string  `json:"language"`
	Exaggeration float64 `json:"exaggeration"`
	CFGWeight    float64 `json:"cfg_weight"`
	Speed        float64 `json:"speed"`
}

func (c *Chatterbox) Name() string { return "chatterbox" }

// Synthesize returns a cold stream that waits for the complete response
// body and then emits exactly two chunks: the full payload and a
// zero-length terminal marker.
func (c *Chatterbox) Synthesize(ctx context.Context, text string) *Stream {
	return NewStream(func(ctx context.Context, out chan<- Chunk) error {
		if text == "" {
			return ErrEmptyText
		}

		ctx, release := c.stops.track(ctx)
		defer release()

		body, err := json.Marshal(chatterboxRequest{
			Text:         text,
			VoiceID:      c.settings.VoiceID,
			Language:     c.settings.Language,
			Exaggeration: c.settings.Exaggeration,
			CFGWeight:    c.settings.CFGWeight,
			Speed:        c.settings.Speed,
		})
		if err != nil {
			return fmt.Errorf("chatterbox: marshal request: %w", err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("chatterbox: create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("chatterbox: send request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return httpStatusError("chatterbox", resp.StatusCode, respBody)
		}

		audio, err := io.ReadAll(resp.Body)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("chatterbox: read response: %w", err)
		}
		if len(audio) < minAudioSize {
			return fmt.Errorf("chatterbox: response too small to be audio (%d bytes)", len(audio))
		}

		if err := sendChunk(ctx, out, Chunk{Data: audio, First: true}); err != nil {
			return err
		}
		return sendChunk(ctx, out, Chunk{Last: true})
	})
}

// Stop cancels any in-flight synthesis.
func (c *Chatterbox) Stop() { c.stops.stopAll() }
