// Package policy holds the per-use-case session strategies. A policy supplies
// the upstream model configuration, the opening prompt, and the translation of
// higher-level client messages into plain upstream instructions. It never
// touches the shared session machinery.
package policy

import (
	"context"
	"errors"
	"fmt"

	"mentor-voice/messages"
)

// ErrSessionEnded is returned by a policy when the client explicitly ends the
// conversation. It terminates the reader loop and, with it, the session.
var ErrSessionEnded = errors.New("session ended by client")

// ErrMissingPrecondition means the bootstrap data a policy requires was not
// supplied in the authenticate frame. Raised before any upstream connection
// is attempted.
var ErrMissingPrecondition = errors.New("missing session precondition")

// Sink receives the upstream-bound output of a policy. Text pushes end the
// current turn once sent; audio pushes stream continuously.
type Sink interface {
	PushText(ctx context.Context, text string) error
	PushAudio(ctx context.Context, frame messages.AudioFrame) error
}

// Policy is the strategy contract shared by the three session kinds.
type Policy interface {
	// BuildSystemInstruction produces the immutable system instruction for
	// the session. It may perform I/O (content fetch) and may fail, in which
	// case the session fails fast before the upstream channel is opened.
	BuildSystemInstruction(ctx context.Context) (string, error)

	// InitialPrompt is sent upstream as the first turn when non-empty.
	// Called after BuildSystemInstruction.
	InitialPrompt() string

	// HandleClientMessage reacts to one decoded client frame. Errors other
	// than ErrSessionEnded are logged by the caller and do not end the
	// session. Unknown message types are ignored.
	HandleClientMessage(ctx context.Context, msg *messages.ClientMessage, sink Sink) error

	// Voice names the prebuilt voice the session speaks with.
	Voice() string
}

// pushAudioPayload validates a JSON-framed audio chunk against the ingress
// contract and queues it.
func pushAudioPayload(ctx context.Context, msg *messages.ClientMessage, sink Sink) error {
	frame, err := messages.FrameFromPayload(msg.Audio)
	if err != nil {
		return err
	}
	if err := frame.ValidateIngress(); err != nil {
		return fmt.Errorf("audio frame rejected: %w", err)
	}
	return sink.PushAudio(ctx, frame)
}
