// Package voice defines the Runtime interface over the external voice stack.
//
// The actual speech pipeline — audio capture, VAD, STT, TTS synthesis, and
// the network transport used to join a room — lives outside this codebase.
// The interview engine only ever sees committed utterances (final transcripts
// with a timestamp) and issues three kinds of requests back: speak a line,
// publish a data message to the room, and end the session.
//
// Implementations must be safe for concurrent use. The Utterances channel is
// owned by the implementation and closed when the underlying transport shuts
// down.
package voice

import (
	"context"
	"time"
)

// Utterance is a single committed (final) transcript of candidate speech.
type Utterance struct {
	// Text is the final transcript text.
	Text string

	// Timestamp marks when the utterance was committed.
	Timestamp time.Time
}

// Runtime is the abstraction over the external voice session.
type Runtime interface {
	// Utterances returns the channel on which committed candidate utterances
	// arrive. The channel is closed when the transport disconnects.
	Utterances() <-chan Utterance

	// Speak asks the voice stack to synthesise and play text.
	// allowInterruption controls whether candidate speech may barge in and
	// cut the playback short.
	Speak(ctx context.Context, text string, allowInterruption bool) error

	// PublishData sends an application payload on the room's data channel.
	// Used for live per-turn metrics consumed by the front-end.
	PublishData(ctx context.Context, payload []byte) error

	// End terminates the voice session. Implementations should flush any
	// in-flight playback before tearing down the transport.
	End(ctx context.Context) error
}
