package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/wav"
)

// Piper is the on-device adapter. It renders the complete utterance to a
// temporary WAV file with a local piper process, then reads the file
// back and splits it into fixed-size chunks. The engine is initialized
// lazily on first use with a bounded wait.
type Piper struct {
	binaryPath  string
	modelPath   string
	configPath  string
	initTimeout time.Duration
	recorder    TTFBRecorder

	initOnce sync.Once
	initDone chan struct{}
	initErr  error
	initFn   func(ctx context.Context) error                  // overridable in tests
	render   func(ctx context.Context, text, path string) error // overridable in tests

	stops stopper
}

// PiperConfig holds configuration for the on-device adapter.
type PiperConfig struct {
	BinaryPath  string
	ModelPath   string        // .onnx voice model; config expected at ModelPath+".json"
	InitTimeout time.Duration // bounded wait for lazy init, default 10s
	Recorder    TTFBRecorder
}

// NewPiper creates the on-device piper adapter. Binary and model are
// verified during lazy initialization, not here.
func NewPiper(cfg PiperConfig) (*Piper, error) {
	if cfg.BinaryPath == "" {
		return nil, fmt.Errorf("piper: binary path is required")
	}
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("piper: model path is required")
	}
	initTimeout := cfg.InitTimeout
	if initTimeout <= 0 {
		initTimeout = 10 * time.Second
	}
	p := &Piper{
		binaryPath:  cfg.BinaryPath,
		modelPath:   cfg.ModelPath,
		configPath:  cfg.ModelPath + ".json",
		initTimeout: initTimeout,
		recorder:    cfg.Recorder,
		initDone:    make(chan struct{}),
	}
	p.initFn = p.verifyInstall
	p.render = p.renderToFile
	return p, nil
}

func (p *Piper) Name() string { return "piper" }

// Ready reports whether the engine finished initializing successfully.
// Distinct from model availability: a registered but uninitialized
// engine reports false.
func (p *Piper) Ready() bool {
	select {
	case <-p.initDone:
		return p.initErr == nil
	default:
		return false
	}
}

// ensureReady kicks off initialization on first use and waits for it
// with a bounded timeout.
func (p *Piper) ensureReady(ctx context.Context) error {
	p.initOnce.Do(func() {
		go func() {
			p.initErr = p.initFn(context.Background())
			close(p.initDone)
		}()
	})

	select {
	case <-p.initDone:
		return p.initErr
	case <-time.After(p.initTimeout):
		return fmt.Errorf("piper: initialization timed out after %v: %w", p.initTimeout, ErrNotInitialized)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// verifyInstall checks that the binary, model and model config exist.
func (p *Piper) verifyInstall(_ context.Context) error {
	if _, err := os.Stat(p.binaryPath); err != nil {
		return fmt.Errorf("piper: binary not found: %s", p.binaryPath)
	}
	if _, err := os.Stat(p.modelPath); err != nil {
		return fmt.Errorf("piper: model not found: %s", p.modelPath)
	}
	if _, err := os.Stat(p.configPath); err != nil {
		return fmt.Errorf("piper: model config not found: %s", p.configPath)
	}
	return nil
}

// renderToFile runs the piper process, writing a WAV file to path.
func (p *Piper) renderToFile(ctx context.Context, text, path string) error {
	args := []string{
		"--model", p.modelPath,
		"--config", p.configPath,
		"--output_file", path,
	}

	cmd := exec.CommandContext(ctx, p.binaryPath, args...)
	cmd.Stdin = strings.NewReader(text)
	cmd.Dir = filepath.Dir(p.binaryPath)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("piper: render failed: %w, stderr: %s", err, stderr.String())
	}
	return nil
}

// Synthesize returns a cold stream that renders to a temp file and
// re-chunks it. The temp file is removed on every exit path. Empty text
// is a no-op: the stream terminates immediately without engine work.
func (p *Piper) Synthesize(ctx context.Context, text string) *Stream {
	return NewStream(func(ctx context.Context, out chan<- Chunk) error {
		if strings.TrimSpace(text) == "" {
			return sendChunk(ctx, out, Chunk{Last: true})
		}

		ctx, release := p.stops.track(ctx)
		defer release()

		if err := p.ensureReady(ctx); err != nil {
			return err
		}

		tmp, err := os.CreateTemp("", "aloud-piper-*.wav")
		if err != nil {
			return fmt.Errorf("piper: create temp file: %w", err)
		}
		path := tmp.Name()
		tmp.Close()
		defer os.Remove(path)

		start := time.Now()
		if err := p.render(ctx, text, path); err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("piper: open rendered file: %w", err)
		}
		defer f.Close()

		if !wav.NewDecoder(f).IsValidFile() {
			return fmt.Errorf("piper: rendered file is not valid wav")
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("piper: rewind rendered file: %w", err)
		}

		return relayReader(ctx, out, f, func() {
			if p.recorder != nil {
				p.recorder.RecordTTFB(p.Name(), time.Since(start))
			}
		})
	})
}

// Stop cancels any in-flight render.
func (p *Piper) Stop() { p.stops.stopAll() }
