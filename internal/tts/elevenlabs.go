package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const elevenLabsAPIURL = "https://api.elevenlabs.io/v1/text-to-speech"

// ElevenLabs streams audio from the ElevenLabs chunked HTTP endpoint.
type ElevenLabs struct {
	apiKey     string
	apiURL     string // test override, empty in production
	voiceID    string
	modelID    string
	settings   ElevenLabsSettings
	httpClient *http.Client
	recorder   TTFBRecorder
	stops      stopper
}

// ElevenLabsSettings are per-voice tuning values. Zero value means
// "use the service default" for that field.
type ElevenLabsSettings struct {
	Stability  float64 // 0.0-1.0
	Similarity float64 // 0.0-1.0
	Speed      float64 // 0.5-2.0, 0 = default
}

// Validate rejects out-of-range values before any network activity.
func (s ElevenLabsSettings) Validate() error {
	if s.Stability < 0 || s.Stability > 1 {
		return fmt.Errorf("elevenlabs: stability %v out of range [0, 1]", s.Stability)
	}
	if s.Similarity < 0 || s.Similarity > 1 {
		return fmt.Errorf("elevenlabs: similarity %v out of range [0, 1]", s.Similarity)
	}
	if s.Speed != 0 && (s.Speed < 0.5 || s.Speed > 2) {
		return fmt.Errorf("elevenlabs: speed %v out of range [0.5, 2]", s.Speed)
	}
	return nil
}

// ElevenLabsConfig holds configuration for the ElevenLabs adapter.
type ElevenLabsConfig struct {
	APIKey     string
	VoiceID    string // ElevenLabs voice ID
	ModelID    string // e.g., "eleven_flash_v2_5" for low latency
	Settings   ElevenLabsSettings
	HTTPClient *http.Client // optional shared client
	Recorder   TTFBRecorder // optional TTFB sink
}

// NewElevenLabs creates the ElevenLabs streaming adapter.
func NewElevenLabs(cfg ElevenLabsConfig) (*ElevenLabs, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("elevenlabs: api key is required")
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}
	modelID := cfg.ModelID
	if modelID == "" {
		modelID = "eleven_flash_v2_5"
	}
	voiceID := cfg.VoiceID
	if voiceID == "" {
		voiceID = "21m00Tcm4TlvDq8ikWAM" // Rachel - default voice
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &ElevenLabs{
		apiKey:     cfg.APIKey,
		voiceID:    voiceID,
		modelID:    modelID,
		settings:   cfg.Settings,
		httpClient: httpClient,
		recorder:   cfg.Recorder,
	}, nil
}

// elevenLabsRequest is the JSON request body.
type elevenLabsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

func (c *ElevenLabs) Name() string { return "elevenlabs" }

// Synthesize returns a cold stream that POSTs to the chunked streaming
// endpoint and relays the response body in fixed-size blocks.
func (c *ElevenLabs) Synthesize(ctx context.Context, text string) *Stream {
	return NewStream(func(ctx context.Context, out chan<- Chunk) error {
		if text == "" {
			return ErrEmptyText
		}

		ctx, release := c.stops.track(ctx)
		defer release()

		url := fmt.Sprintf("%s/%s/stream?output_format=pcm_24000", c.baseURL(), c.voiceID)
		body, err := json.Marshal(elevenLabsRequest{
			Text:    text,
			ModelID: c.modelID,
			VoiceSettings: voiceSettings{
				Stability:       c.settings.Stability,
				SimilarityBoost: c.settings.Similarity,
				Speed:           c.settings.Speed,
			},
		})
		if err != nil {
			return fmt.Errorf("elevenlabs: marshal request: %w", err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("elevenlabs: create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("xi-api-key", c.apiKey)

		start := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("elevenlabs: send request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return httpStatusError("elevenlabs", resp.StatusCode, respBody)
		}

		return relayReader(ctx, out, resp.Body, func() {
			if c.recorder != nil {
				c.recorder.RecordTTFB(c.Name(), time.Since(start))
			}
		})
	})
}

// Stop cancels any in-flight synthesis.
func (c *ElevenLabs) Stop() { c.stops.stopAll() }

// baseURL is overridable for tests via the apiURL field.
func (c *ElevenLabs) baseURL() string {
	if c.apiURL != "" {
		return c.apiURL
	}
	return elevenLabsAPIURL
}

// httpStatusError maps an HTTP failure to the shared error taxonomy:
// authentication, rate-limiting, or a generic failure carrying the
// status and the response body as diagnostic text.
func httpStatusError(provider string, status int, body []byte) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: status %d: %s: %w", provider, status, body, ErrAuth)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%s: status %d: %w", provider, status, ErrRateLimited)
	default:
		return fmt.Errorf("%s: unexpected status %d: %s", provider, status, body)
	}
}
