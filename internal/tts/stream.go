package tts

import (
	"context"
	"errors"
	"io"
	"sync"
)

// readChunkSize is the block size used when splitting an audio body into
// chunks (HTTP streaming and on-device file reads).
const readChunkSize = 4096

// Stream is a cold synthesis stream. Nothing happens until Start is
// called; each call to Start begins an independent synthesis attempt, so
// a failed stream can be retried by starting it again.
type Stream struct {
	run func(ctx context.Context, out chan<- Chunk) error
}

// NewStream wraps a run function into a cold stream. The run function
// must send chunks on out (honoring ctx) and return nil after emitting a
// Last chunk, or return the failure.
func NewStream(run func(ctx context.Context, out chan<- Chunk) error) *Stream {
	return &Stream{run: run}
}

// Start begins one synthesis attempt. Chunks arrive in emission order on
// the first channel; at most one error arrives on the second. Both
// channels close when the attempt ends. A cancelled attempt (ctx or a
// provider Stop) closes both channels without an error and without a
// guaranteed Last chunk. Abandoning consumption requires cancelling ctx;
// that is what releases the underlying transport.
func (s *Stream) Start(ctx context.Context) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk, 32)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(chunks)
		if err := s.run(ctx, chunks); err != nil && !errors.Is(err, context.Canceled) {
			errs <- err
		}
	}()

	return chunks, errs
}

// Collect starts the stream and concatenates every chunk payload. Mainly
// useful for single-shot consumers and tests.
func (s *Stream) Collect(ctx context.Context) ([]byte, error) {
	chunks, errs := s.Start(ctx)

	var audio []byte
	for chunk := range chunks {
		audio = append(audio, chunk.Data...)
	}
	if err := <-errs; err != nil {
		return nil, err
	}
	return audio, nil
}

// relayReader reads r in fixed-size blocks and emits each non-empty
// block as a chunk, the first flagged First, followed by a zero-length
// Last chunk at EOF. onFirst, if non-nil, runs just before the first
// audio-bearing chunk is emitted.
func relayReader(ctx context.Context, out chan<- Chunk, r io.Reader, onFirst func()) error {
	buf := make([]byte, readChunkSize)
	first := true
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if first && onFirst != nil {
				onFirst()
			}
			if sendErr := sendChunk(ctx, out, Chunk{Data: data, First: first}); sendErr != nil {
				return sendErr
			}
			first = false
		}
		if err == io.EOF {
			return sendChunk(ctx, out, Chunk{Last: true})
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

// sendChunk delivers a chunk unless the attempt is cancelled first.
func sendChunk(ctx context.Context, out chan<- Chunk, c Chunk) error {
	select {
	case out <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stopper tracks the cancel functions of in-flight attempts so a
// provider's Stop can cancel them all.
type stopper struct {
	mu      sync.Mutex
	nextID  int
	cancels map[int]context.CancelFunc
}

// track derives a cancellable context for one attempt. The returned
// release must be called when the attempt ends.
func (s *stopper) track(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancels == nil {
		s.cancels = make(map[int]context.CancelFunc)
	}
	id := s.nextID
	s.nextID++
	s.cancels[id] = cancel
	s.mu.Unlock()

	return ctx, func() {
		s.mu.Lock()
		delete(s.cancels, id)
		s.mu.Unlock()
		cancel()
	}
}

// stopAll cancels every tracked attempt. No-op when nothing is in flight.
func (s *stopper) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cancel := range s.cancels {
		cancel()
		delete(s.cancels, id)
	}
}
