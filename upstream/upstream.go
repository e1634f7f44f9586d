// Package upstream abstracts the persistent connection to the real-time AI
// model. The session layer only ever sees Connector, Channel and Event.
package upstream

import "context"

// ModelConfig is built once by the session policy and is immutable for the
// lifetime of the channel it opens.
type ModelConfig struct {
	Model             string
	Voice             string
	SystemInstruction string
}

// Event is one response item from the model. Its fields are orthogonal
// facets, not mutually exclusive tags: a single upstream item may carry text,
// audio and a turn boundary at once, and the consumer must inspect each
// facet independently.
type Event struct {
	Text             string
	Audio            []byte
	InputTranscript  string
	OutputTranscript string
	TurnComplete     bool
}

// Empty reports whether the event carries no facet worth forwarding.
func (e *Event) Empty() bool {
	return e.Text == "" && len(e.Audio) == 0 &&
		e.InputTranscript == "" && e.OutputTranscript == "" && !e.TurnComplete
}

// Channel is a live bidirectional handle to the model.
//
// SendText ends the current turn when endOfTurn is set; SendAudio streams a
// 16kHz PCM chunk without ending the turn. Receive blocks for the next
// response item and returns io.EOF (or a transport error) when the stream is
// over. Close is safe to call more than once.
type Channel interface {
	SendText(text string, endOfTurn bool) error
	SendAudio(pcm []byte) error
	Receive() (*Event, error)
	Close() error
}

// Connector opens channels. Implementations hold no per-session state.
type Connector interface {
	Connect(ctx context.Context, cfg ModelConfig) (Channel, error)
}
