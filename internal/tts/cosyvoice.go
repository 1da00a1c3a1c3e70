package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// CosyVoice streams audio from a self-hosted CosyVoice gateway over a
// persistent websocket. Voice parameters travel in the speak message; an
// explicit flush message marks end of input. Audio arrives as binary
// frames, control traffic as JSON text frames.
type CosyVoice struct {
	url      string
	apiKey   string
	settings CosyVoiceSettings
	dialer   *websocket.Dialer
	recorder TTFBRecorder
	stops    stopper
}

// CosyVoiceSettings are the per-request sampling parameters.
type CosyVoiceSettings struct {
	VoiceIndex       int     // >= 0
	Temperature      float64 // (0.0, 2.0]
	TopP             float64 // (0.0, 1.0]
	ConsistencySteps int     // 1-50
}

// Validate rejects out-of-range values at construction time.
func (s CosyVoiceSettings) Validate() error {
	if s.VoiceIndex < 0 {
		return fmt.Errorf("cosyvoice: voice_index %d must not be negative", s.VoiceIndex)
	}
	if s.Temperature <= 0 || s.Temperature > 2 {
		return fmt.Errorf("cosyvoice: temperature %v out of range (0, 2]", s.Temperature)
	}
	if s.TopP <= 0 || s.TopP > 1 {
		return fmt.Errorf("cosyvoice: top_p %v out of range (0, 1]", s.TopP)
	}
	if s.ConsistencySteps < 1 || s.ConsistencySteps > 50 {
		return fmt.Errorf("cosyvoice: consistency_steps %d out of range [1, 50]", s.ConsistencySteps)
	}
	return nil
}

// CosyVoiceDefault is the pre-validated default voice.
var CosyVoiceDefault = CosyVoiceSettings{
	VoiceIndex:       0,
	Temperature:      0.8,
	TopP:             0.9,
	ConsistencySteps: 10,
}

// CosyVoiceConfig holds configuration for the CosyVoice adapter.
type CosyVoiceConfig struct {
	URL      string // e.g. ws://localhost:9880/v1/tts/stream
	APIKey   string // optional bearer token
	Settings CosyVoiceSettings
	Recorder TTFBRecorder
}

// NewCosyVoice creates the CosyVoice socket-streaming adapter.
func NewCosyVoice(cfg CosyVoiceConfig) (*CosyVoice, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("cosyvoice: url is required")
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}
	return &CosyVoice{
		url:      cfg.URL,
		apiKey:   cfg.APIKey,
		settings: cfg.Settings,
		dialer:   websocket.DefaultDialer,
		recorder: cfg.Recorder,
	}, nil
}

func (c *CosyVoice) Name() string { return "cosyvoice" }

// Synthesize returns a cold stream that opens the socket, sends the
// speak and flush messages, and relays binary frames until the backend
// reports the flush completed.
func (c *CosyVoice) Synthesize(ctx context.Context, text string) *Stream {
	return NewStream(func(ctx context.Context, out chan<- Chunk) error {
		if text == "" {
			return ErrEmptyText
		}

		ctx, release := c.stops.track(ctx)
		defer release()

		headers := http.Header{}
		if c.apiKey != "" {
			headers.Set("Authorization", "Bearer "+c.apiKey)
		}

		conn, resp, err := c.dialer.DialContext(ctx, c.url, headers)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if resp != nil {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
				resp.Body.Close()
				return httpStatusError("cosyvoice", resp.StatusCode, body)
			}
			return fmt.Errorf("cosyvoice: connect: %w", err)
		}
		defer conn.Close()
		defer closeOnCancel(ctx, conn)()

		speak := speakMessage{
			Type:             "speak",
			Text:             text,
			RequestID:        uuid.NewString(),
			VoiceIndex:       &c.settings.VoiceIndex,
			Temperature:      &c.settings.Temperature,
			TopP:             &c.settings.TopP,
			ConsistencySteps: &c.settings.ConsistencySteps,
		}
		if err := conn.WriteJSON(speak); err != nil {
			return fmt.Errorf("cosyvoice: send speak: %w", err)
		}
		if err := conn.WriteJSON(flushMessage{Type: "flush"}); err != nil {
			return fmt.Errorf("cosyvoice: send flush: %w", err)
		}

		return c.readFrames(ctx, conn, out, time.Now())
	})
}

// readFrames relays frames until a terminal control frame, an error
// frame, or a connection failure.
func (c *CosyVoice) readFrames(ctx context.Context, conn *websocket.Conn, out chan<- Chunk, start time.Time) error {
	first := true
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("cosyvoice: read: %w", err)
		}

		switch msgType {
		case websocket.BinaryMessage:
			if len(data) == 0 {
				continue
			}
			if first && c.recorder != nil {
				c.recorder.RecordTTFB(c.Name(), time.Since(start))
			}
			if err := sendChunk(ctx, out, Chunk{Data: data, First: first}); err != nil {
				return err
			}
			first = false

		case websocket.TextMessage:
			var ctrl controlMessage
			if err := json.Unmarshal(data, &ctrl); err != nil {
				return fmt.Errorf("cosyvoice: malformed control frame: %w", err)
			}
			switch ctrl.Type {
			case "flushed":
				return sendChunk(ctx, out, Chunk{Last: true})
			case "error":
				return wireError("cosyvoice", ctrl.ErrCode, ctrl.ErrMsg)
			case "warning":
				log.Printf("cosyvoice: warning: %s", ctrl.WarnMsg)
			default:
				// status/metadata frames are informational
			}
		}
	}
}

// Stop closes any in-flight connection with a normal closure code.
func (c *CosyVoice) Stop() { c.stops.stopAll() }
