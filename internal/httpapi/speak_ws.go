package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsSpeakRequest is the first client frame on the speak socket.
type wsSpeakRequest struct {
	Text string `json:"text"`
}

// wsControl is a JSON frame sent to the client alongside binary audio.
type wsControl struct {
	Type    string `json:"type"` // "done" or "error"
	Message string `json:"message,omitempty"`
}

// handleSpeakWS streams synthesis over a websocket: the client sends one
// JSON request, audio comes back as binary frames, and a JSON control
// frame terminates the exchange. Closing the socket cancels the
// in-flight synthesis.
func (r *Router) handleSpeakWS(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("speak ws: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	var speakReq wsSpeakRequest
	if err := conn.ReadJSON(&speakReq); err != nil {
		_ = conn.WriteJSON(wsControl{Type: "error", Message: "invalid request frame"})
		return
	}

	text := r.norm.Normalize(speakReq.Text)
	if text == "" {
		_ = conn.WriteJSON(wsControl{Type: "error", Message: "text is required"})
		return
	}

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	// Any further client frame, or the socket closing, cancels synthesis.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	chunks, errs := r.speech.Synthesize(ctx, text).Start(ctx)
	for chunk := range chunks {
		if len(chunk.Data) == 0 {
			continue
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, chunk.Data); err != nil {
			return
		}
	}

	if err := <-errs; err != nil {
		captureError(req, err, "ws synthesis failed")
		_ = conn.WriteJSON(wsControl{Type: "error", Message: err.Error()})
		return
	}
	if ctx.Err() != nil {
		return
	}
	_ = conn.WriteJSON(wsControl{Type: "done"})
}
