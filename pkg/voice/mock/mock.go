// Package mock provides an in-memory mock implementation of [voice.Runtime]
// for use in unit tests.
//
// The mock records every method call and exposes an input channel the test
// can feed utterances through. It is safe for concurrent use.
//
// Example:
//
//	rt := mock.New()
//	go worker.Run(ctx, rt)
//	rt.Commit("I led the migration project", time.Now())
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/intervox/intervox/pkg/voice"
)

// Compile-time interface assertion.
var _ voice.Runtime = (*Runtime)(nil)

// SpeakCall records one invocation of Speak.
type SpeakCall struct {
	// Text is the text passed to Speak.
	Text string
	// AllowInterruption is the flag passed to Speak.
	AllowInterruption bool
}

// Runtime is a mock implementation of voice.Runtime.
type Runtime struct {
	mu sync.Mutex

	// SpeakErr, if non-nil, is returned from every Speak call.
	SpeakErr error

	// PublishErr, if non-nil, is returned from every PublishData call.
	PublishErr error

	// SpeakCalls records every Speak invocation in order.
	SpeakCalls []SpeakCall

	// Published records every payload passed to PublishData.
	Published [][]byte

	// Ended reports whether End has been called.
	Ended bool

	in chan voice.Utterance
}

// New creates a mock Runtime with a buffered utterance channel.
func New() *Runtime {
	return &Runtime{in: make(chan voice.Utterance, 16)}
}

// Commit feeds a committed utterance into the Utterances channel.
func (r *Runtime) Commit(text string, ts time.Time) {
	r.in <- voice.Utterance{Text: text, Timestamp: ts}
}

// CloseInput closes the utterance channel, simulating transport disconnect.
func (r *Runtime) CloseInput() {
	close(r.in)
}

// Utterances implements voice.Runtime.
func (r *Runtime) Utterances() <-chan voice.Utterance {
	return r.in
}

// Speak implements voice.Runtime.
func (r *Runtime) Speak(_ context.Context, text string, allowInterruption bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.SpeakCalls = append(r.SpeakCalls, SpeakCall{Text: text, AllowInterruption: allowInterruption})
	return r.SpeakErr
}

// PublishData implements voice.Runtime.
func (r *Runtime) PublishData(_ context.Context, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	r.Published = append(r.Published, cp)
	return r.PublishErr
}

// End implements voice.Runtime.
func (r *Runtime) End(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Ended = true
	return nil
}

// Spoken returns a snapshot of all text spoken so far.
func (r *Runtime) Spoken() []SpeakCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SpeakCall, len(r.SpeakCalls))
	copy(out, r.SpeakCalls)
	return out
}

// PublishedPayloads returns a snapshot of all published data payloads.
func (r *Runtime) PublishedPayloads() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.Published))
	copy(out, r.Published)
	return out
}

// HasEnded reports whether End was called.
func (r *Runtime) HasEnded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Ended
}
