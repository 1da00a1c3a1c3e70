package tts

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Wire messages shared by the socket-streaming adapters. Both speak the
// same control schema; they differ only in how the speak message and
// voice parameters are encoded.

// speakMessage carries the text to synthesize. Variant-specific voice
// parameters ride along as optional fields.
type speakMessage struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	RequestID string `json:"request_id,omitempty"`

	// CosyVoice-style inline voice parameters.
	VoiceIndex       *int     `json:"voice_index,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	ConsistencySteps *int     `json:"consistency_steps,omitempty"`
}

// flushMessage signals end of input on backends that require it.
type flushMessage struct {
	Type string `json:"type"`
}

// controlMessage is a structured (non-binary) frame from the backend.
type controlMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	WarnMsg   string `json:"warn_msg,omitempty"`
	ErrMsg    string `json:"err_msg,omitempty"`
	ErrCode   int    `json:"err_code,omitempty"`
}

// wireError maps a backend error frame to the shared taxonomy.
func wireError(provider string, code int, msg string) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: %s (code %d): %w", provider, msg, code, ErrAuth)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%s: %s (code %d): %w", provider, msg, code, ErrRateLimited)
	default:
		return fmt.Errorf("%s: backend error %d: %s", provider, code, msg)
	}
}

// closeOnCancel closes conn with a normal closure code when ctx is
// cancelled, which unblocks any pending read. The returned func must be
// called when the read loop ends.
func closeOnCancel(ctx context.Context, conn *websocket.Conn) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}
