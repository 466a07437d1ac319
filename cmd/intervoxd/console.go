package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/intervox/intervox/pkg/voice"
)

// Compile-time interface assertion.
var _ voice.Runtime = (*consoleRuntime)(nil)

// consoleRuntime is a development voice runtime over stdin/stdout. Each line
// typed on stdin becomes one committed utterance; Speak prints the
// interviewer's lines. There is no audio involved, which makes it handy for
// exercising the full interview loop without a speech stack.
type consoleRuntime struct {
	out        io.Writer
	utterances chan voice.Utterance

	endOnce sync.Once
	done    chan struct{}
}

// newConsoleRuntime starts reading lines from in immediately.
func newConsoleRuntime(in io.Reader, out io.Writer) *consoleRuntime {
	rt := &consoleRuntime{
		out:        out,
		utterances: make(chan voice.Utterance),
		done:       make(chan struct{}),
	}
	go rt.readLoop(in)
	return rt
}

// readLoop turns stdin lines into utterances until EOF or End.
func (rt *consoleRuntime) readLoop(in io.Reader) {
	defer close(rt.utterances)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		select {
		case rt.utterances <- voice.Utterance{Text: text, Timestamp: time.Now()}:
		case <-rt.done:
			return
		}
	}
}

func (rt *consoleRuntime) Utterances() <-chan voice.Utterance {
	return rt.utterances
}

func (rt *consoleRuntime) Speak(_ context.Context, text string, _ bool) error {
	_, err := fmt.Fprintf(rt.out, "\ninterviewer: %s\n> ", text)
	return err
}

func (rt *consoleRuntime) PublishData(_ context.Context, payload []byte) error {
	// The real transport sends these to the front-end; in the console they
	// only matter for debugging.
	slog.Debug("turn metrics", "payload", string(payload))
	return nil
}

func (rt *consoleRuntime) End(context.Context) error {
	rt.endOnce.Do(func() {
		close(rt.done)
		fmt.Fprintln(rt.out, "\n[session ended]")
	})
	return nil
}
