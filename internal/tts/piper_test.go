package tts

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func newTestPiper(t *testing.T) *Piper {
	t.Helper()
	p, err := NewPiper(PiperConfig{
		BinaryPath:  "/usr/local/bin/piper",
		ModelPath:   "/var/lib/piper/en_US-amy-medium.onnx",
		InitTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("NewPiper() error = %v", err)
	}
	p.initFn = func(context.Context) error { return nil }
	return p
}

// writeTestWav renders a short valid PCM file to path.
func writeTestWav(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, 24000, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 24000},
		SourceBitDepth: 16,
		Data:           make([]int, 2400),
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close wav: %v", err)
	}
}

func TestPiperRendersAndChunks(t *testing.T) {
	p := newTestPiper(t)

	var renderedPath string
	p.render = func(_ context.Context, text, path string) error {
		if text != "hello there" {
			t.Errorf("render text = %q, want hello there", text)
		}
		renderedPath = path
		writeTestWav(t, path)
		return nil
	}

	chunks, err := collect(t, p.Synthesize(context.Background(), "hello there"))
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want payload plus terminal", len(chunks))
	}
	if !chunks[0].First {
		t.Error("first chunk not marked First")
	}
	last := chunks[len(chunks)-1]
	if !last.Last || len(last.Data) != 0 {
		t.Errorf("terminal chunk = %+v, want zero-length Last", last)
	}
	var total int
	for _, ch := range chunks[:len(chunks)-1] {
		total += len(ch.Data)
	}
	if total == 0 {
		t.Error("no audio bytes relayed")
	}

	if _, err := os.Stat(renderedPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temp file %s still exists after stream end", renderedPath)
	}
}

func TestPiperEmptyTextSkipsEngine(t *testing.T) {
	p := newTestPiper(t)
	var initCalls atomic.Int32
	p.initFn = func(context.Context) error {
		initCalls.Add(1)
		return nil
	}

	chunks, err := collect(t, p.Synthesize(context.Background(), "   "))
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if len(chunks) != 1 || !chunks[0].Last {
		t.Errorf("chunks = %+v, want a single terminal marker", chunks)
	}
	if n := initCalls.Load(); n != 0 {
		t.Errorf("initialization ran %d times for empty text, want 0", n)
	}
}

func TestPiperInitTimeout(t *testing.T) {
	p, err := NewPiper(PiperConfig{
		BinaryPath:  "/usr/local/bin/piper",
		ModelPath:   "/var/lib/piper/en_US-amy-medium.onnx",
		InitTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewPiper() error = %v", err)
	}
	release := make(chan struct{})
	defer close(release)
	p.initFn = func(context.Context) error {
		<-release
		return nil
	}

	_, err = collect(t, p.Synthesize(context.Background(), "hello"))
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Synthesize() error = %v, want ErrNotInitialized", err)
	}
}

func TestPiperInitFailurePropagates(t *testing.T) {
	p := newTestPiper(t)
	p.initFn = func(context.Context) error {
		return errors.New("model file corrupt")
	}

	_, err := collect(t, p.Synthesize(context.Background(), "hello"))
	if err == nil || !strings.Contains(err.Error(), "model file corrupt") {
		t.Errorf("Synthesize() error = %v, want init failure", err)
	}
}

func TestPiperRejectsInvalidWav(t *testing.T) {
	p := newTestPiper(t)
	p.render = func(_ context.Context, _, path string) error {
		return os.WriteFile(path, []byte("definitely not audio"), 0o644)
	}

	_, err := collect(t, p.Synthesize(context.Background(), "hello"))
	if err == nil {
		t.Fatal("Synthesize() error = nil, want invalid-wav failure")
	}
}

func TestPiperReady(t *testing.T) {
	p := newTestPiper(t)
	p.render = func(_ context.Context, _, path string) error {
		writeTestWav(t, path)
		return nil
	}

	if p.Ready() {
		t.Error("Ready() = true before first synthesis")
	}
	if _, err := collect(t, p.Synthesize(context.Background(), "hello")); err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if !p.Ready() {
		t.Error("Ready() = false after successful initialization")
	}
}

func TestNewPiperValidation(t *testing.T) {
	if _, err := NewPiper(PiperConfig{ModelPath: "m.onnx"}); err == nil {
		t.Error("NewPiper() without binary path succeeded")
	}
	if _, err := NewPiper(PiperConfig{BinaryPath: "/usr/bin/piper"}); err == nil {
		t.Error("NewPiper() without model path succeeded")
	}
}

func TestNativeStub(t *testing.T) {
	s := NewNativeStub()
	if s.Ready() {
		t.Error("stub Ready() = true, want false")
	}
	chunks, err := collect(t, s.Synthesize(context.Background(), "hello"))
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if len(chunks) != 1 || !chunks[0].Last {
		t.Errorf("chunks = %+v, want a single terminal marker", chunks)
	}
	s.Stop()
}
