package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// GLMTTS streams audio from a GLM speech gateway over a persistent
// websocket. Sibling of CosyVoice with a different message schema: the
// voice and model parameters are encoded in the connection URI, the
// speak message carries only the text, and the server flushes on speak
// without an explicit end-of-input message.
type GLMTTS struct {
	url      string
	apiKey   string
	voice    string
	model    string
	speed    float64
	dialer   *websocket.Dialer
	recorder TTFBRecorder
	stops    stopper
}

// GLMTTSConfig holds configuration for the GLM adapter.
type GLMTTSConfig struct {
	URL      string  // e.g. wss://gateway.example.com/v1/speech
	APIKey   string  // optional bearer token
	Voice    string  // voice name, e.g. "female-warm"
	Model    string  // e.g. "glm-tts-flash"
	Speed    float64 // 0.5-2.0, 0 = server default
	Recorder TTFBRecorder
}

// NewGLMTTS creates the GLM socket-streaming adapter.
func NewGLMTTS(cfg GLMTTSConfig) (*GLMTTS, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("glmtts: url is required")
	}
	if cfg.Speed != 0 && (cfg.Speed < 0.5 || cfg.Speed > 2) {
		return nil, fmt.Errorf("glmtts: speed %v out of range [0.5, 2]", cfg.Speed)
	}
	return &GLMTTS{
		url:      cfg.URL,
		apiKey:   cfg.APIKey,
		voice:    cfg.Voice,
		model:    cfg.Model,
		speed:    cfg.Speed,
		dialer:   websocket.DefaultDialer,
		recorder: cfg.Recorder,
	}, nil
}

func (c *GLMTTS) Name() string { return "glmtts" }

// connectURL appends the voice parameters to the configured endpoint.
func (c *GLMTTS) connectURL() (string, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return "", fmt.Errorf("glmtts: parse url: %w", err)
	}
	q := u.Query()
	if c.voice != "" {
		q.Set("voice", c.voice)
	}
	if c.model != "" {
		q.Set("model", c.model)
	}
	if c.speed != 0 {
		q.Set("speed", fmt.Sprintf("%g", c.speed))
	}
	q.Set("sample_rate", "24000")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Synthesize returns a cold stream over a fresh socket connection.
func (c *GLMTTS) Synthesize(ctx context.Context, text string) *Stream {
	return NewStream(func(ctx context.Context, out chan<- Chunk) error {
		if text == "" {
			return ErrEmptyText
		}

		ctx, release := c.stops.track(ctx)
		defer release()

		connectURL, err := c.connectURL()
		if err != nil {
			return err
		}

		headers := http.Header{}
		if c.apiKey != "" {
			headers.Set("Authorization", "Bearer "+c.apiKey)
		}

		conn, resp, err := c.dialer.DialContext(ctx, connectURL, headers)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if resp != nil {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
				resp.Body.Close()
				return httpStatusError("glmtts", resp.StatusCode, body)
			}
			return fmt.Errorf("glmtts: connect: %w", err)
		}
		defer conn.Close()
		defer closeOnCancel(ctx, conn)()

		speak := speakMessage{Type: "speak", Text: text, RequestID: uuid.NewString()}
		if err := conn.WriteJSON(speak); err != nil {
			return fmt.Errorf("glmtts: send speak: %w", err)
		}
		start := time.Now()

		first := true
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("glmtts: read: %w", err)
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
					return fmt.Errorf("glmtts: malformed control frame: %w", err)
				}
				switch ctrl.Type {
				case "complete":
					return sendChunk(ctx, out, Chunk{Last: true})
				case "error":
					return wireError("glmtts", ctrl.ErrCode, ctrl.ErrMsg)
				case "warning":
					log.Printf("glmtts: warning: %s", ctrl.WarnMsg)
				default:
				}
			}
		}
	})
}

// Stop closes any in-flight connection with a normal closure code.
func (c *GLMTTS) Stop() { c.stops.stopAll() }
