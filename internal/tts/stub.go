package tts

import "context"

// NativeStub stands in for the platform speech engine until the native
// integration lands. Its streams terminate immediately and successfully
// so the router's selection contract stays uniform; Ready reports the
// missing integration separately.
type NativeStub struct{}

// NewNativeStub creates the placeholder on-device provider.
func NewNativeStub() *NativeStub { return &NativeStub{} }

func (s *NativeStub) Name() string { return "native" }

// Ready always reports false until the native engine is wired up.
func (s *NativeStub) Ready() bool { return false }

// Synthesize returns an immediately-empty, successfully-terminating
// stream.
func (s *NativeStub) Synthesize(_ context.Context, _ string) *Stream {
	return NewStream(func(ctx context.Context, out chan<- Chunk) error {
		return sendChunk(ctx, out, Chunk{Last: true})
	})
}

// Stop is a no-op; nothing is ever in flight.
func (s *NativeStub) Stop() {}
