package tts

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsTestServer runs handler behind an upgraded websocket connection and
// returns the ws:// URL to dial.
func wsTestServer(t *testing.T, handler func(t *testing.T, conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := testUpgrader.Upgrade(w, req, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		handler(t, conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newTestCosyVoice(t *testing.T, url string) *CosyVoice {
	t.Helper()
	c, err := NewCosyVoice(CosyVoiceConfig{URL: url, Settings: CosyVoiceDefault})
	if err != nil {
		t.Fatalf("NewCosyVoice() error = %v", err)
	}
	return c
}

func TestCosyVoiceStreamsFrames(t *testing.T) {
	frames := [][]byte{
		bytes.Repeat([]byte{0x01}, 512),
		bytes.Repeat([]byte{0x02}, 512),
	}
	url := wsTestServer(t, func(t *testing.T, conn *websocket.Conn) {
		var speak speakMessage
		if err := conn.ReadJSON(&speak); err != nil {
			t.Errorf("read speak: %v", err)
			return
		}
		if speak.Type != "speak" || speak.Text != "hello world" {
			t.Errorf("speak = %+v, want type speak with text", speak)
		}
		if speak.RequestID == "" {
			t.Error("speak request_id is empty")
		}
		if speak.VoiceIndex == nil || speak.Temperature == nil {
			t.Error("speak is missing inline voice parameters")
		}
		var flush flushMessage
		if err := conn.ReadJSON(&flush); err != nil {
			t.Errorf("read flush: %v", err)
			return
		}
		if flush.Type != "flush" {
			t.Errorf("flush type = %q, want flush", flush.Type)
		}

		for _, f := range frames {
			_ = conn.WriteMessage(websocket.BinaryMessage, f)
		}
		_ = conn.WriteJSON(controlMessage{Type: "flushed"})
	})

	c := newTestCosyVoice(t, url)
	chunks, err := collect(t, c.Synthesize(context.Background(), "hello world"))
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	if !chunks[0].First || !bytes.Equal(chunks[0].Data, frames[0]) {
		t.Errorf("first chunk = First:%v %d bytes, want first frame", chunks[0].First, len(chunks[0].Data))
	}
	if chunks[1].First || !bytes.Equal(chunks[1].Data, frames[1]) {
		t.Errorf("second chunk = %+v, want second frame without First", chunks[1])
	}
	if !chunks[2].Last || len(chunks[2].Data) != 0 {
		t.Errorf("terminal chunk = %+v, want zero-length Last", chunks[2])
	}
}

func TestCosyVoiceSkipsEmptyFramesAndWarnings(t *testing.T) {
	url := wsTestServer(t, func(t *testing.T, conn *websocket.Conn) {
		var speak speakMessage
		_ = conn.ReadJSON(&speak)
		var flush flushMessage
		_ = conn.ReadJSON(&flush)

		_ = conn.WriteMessage(websocket.BinaryMessage, nil)
		_ = conn.WriteJSON(controlMessage{Type: "warning", WarnMsg: "gpu busy"})
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0x01})
		_ = conn.WriteJSON(controlMessage{Type: "flushed"})
	})

	c := newTestCosyVoice(t, url)
	chunks, err := collect(t, c.Synthesize(context.Background(), "hello"))
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2 (empty frame skipped)", len(chunks))
	}
	if !chunks[0].First {
		t.Error("first audible chunk not marked First")
	}
}

func TestCosyVoiceErrorFrame(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		wantIs error
	}{
		{"auth", http.StatusUnauthorized, ErrAuth},
		{"forbidden", http.StatusForbidden, ErrAuth},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited},
		{"backend", 500, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := wsTestServer(t, func(t *testing.T, conn *websocket.Conn) {
				var speak speakMessage
				_ = conn.ReadJSON(&speak)
				var flush flushMessage
				_ = conn.ReadJSON(&flush)
				_ = conn.WriteJSON(controlMessage{Type: "error", ErrCode: tt.code, ErrMsg: "nope"})
			})

			c := newTestCosyVoice(t, url)
			_, err := collect(t, c.Synthesize(context.Background(), "hello"))
			if err == nil {
				t.Fatal("Synthesize() error = nil, want backend failure")
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("Synthesize() error = %v, want %v", err, tt.wantIs)
			}
		})
	}
}

func TestCosyVoiceMalformedControlFrame(t *testing.T) {
	url := wsTestServer(t, func(t *testing.T, conn *websocket.Conn) {
		var speak speakMessage
		_ = conn.ReadJSON(&speak)
		var flush flushMessage
		_ = conn.ReadJSON(&flush)
		_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
	})

	c := newTestCosyVoice(t, url)
	_, err := collect(t, c.Synthesize(context.Background(), "hello"))
	if err == nil {
		t.Fatal("Synthesize() error = nil, want malformed-frame failure")
	}
}

func TestCosyVoiceStopClosesConnection(t *testing.T) {
	started := make(chan struct{})
	url := wsTestServer(t, func(t *testing.T, conn *websocket.Conn) {
		var speak speakMessage
		_ = conn.ReadJSON(&speak)
		var flush flushMessage
		_ = conn.ReadJSON(&flush)
		close(started)
		// never send audio; wait for the client's closure
		_, _, _ = conn.ReadMessage()
	})

	c := newTestCosyVoice(t, url)
	chunks, errs := c.Synthesize(context.Background(), "hello").Start(context.Background())

	<-started
	c.Stop()

	select {
	case err := <-errs:
		if err != nil {
			t.Errorf("stopped stream error = %v, want clean close", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end after Stop")
	}
	for range chunks {
	}
}

func TestCosyVoiceSettingsValidation(t *testing.T) {
	tests := []struct {
		name     string
		settings CosyVoiceSettings
		wantErr  bool
	}{
		{"default", CosyVoiceDefault, false},
		{"negative voice index", CosyVoiceSettings{VoiceIndex: -1, Temperature: 0.8, TopP: 0.9, ConsistencySteps: 10}, true},
		{"zero temperature", CosyVoiceSettings{Temperature: 0, TopP: 0.9, ConsistencySteps: 10}, true},
		{"temperature too high", CosyVoiceSettings{Temperature: 2.5, TopP: 0.9, ConsistencySteps: 10}, true},
		{"top_p too high", CosyVoiceSettings{Temperature: 0.8, TopP: 1.5, ConsistencySteps: 10}, true},
		{"zero steps", CosyVoiceSettings{Temperature: 0.8, TopP: 0.9, ConsistencySteps: 0}, true},
		{"too many steps", CosyVoiceSettings{Temperature: 0.8, TopP: 0.9, ConsistencySteps: 51}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.settings.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%+v) error = %v, wantErr %v", tt.settings, err, tt.wantErr)
			}
		})
	}
}
