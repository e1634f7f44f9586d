package session

import (
	"context"

	"go.uber.org/zap"

	"mentor-voice/messages"
)

// Item is one unit of upstream-bound work: either a turn-ending text
// instruction or a streaming audio frame, never both.
type Item struct {
	Text  string
	Frame *messages.AudioFrame
}

// InputMux merges the two client-originated input streams headed upstream.
// Order is FIFO within each queue; interleaving across the two queues is
// deliberately unspecified, except that a pending text instruction is
// preferred over pending audio (text preempts, audio streams).
//
// Both queues are bounded. Text is never dropped: a full text queue blocks
// the producer until the sender catches up. Audio drops the oldest frame on
// overflow since a continuous stream loses value from the front.
type InputMux struct {
	text   chan string
	audio  chan messages.AudioFrame
	logger *zap.Logger
}

func NewInputMux(textSize, audioSize int, logger *zap.Logger) *InputMux {
	return &InputMux{
		text:   make(chan string, textSize),
		audio:  make(chan messages.AudioFrame, audioSize),
		logger: logger,
	}
}

// PushText enqueues a turn-ending instruction. Blocks when the queue is full.
func (m *InputMux) PushText(ctx context.Context, text string) error {
	select {
	case m.text <- text:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PushAudio enqueues an already-validated audio frame, evicting the oldest
// queued frame instead of blocking when the queue is full.
func (m *InputMux) PushAudio(ctx context.Context, frame messages.AudioFrame) error {
	for {
		select {
		case m.audio <- frame:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		select {
		case dropped := <-m.audio:
			m.logger.Warn("Audio queue full, dropping oldest frame",
				zap.Int("dropped_bytes", len(dropped.Data)))
		default:
			// a concurrent consumer freed space first; retry the send
		}
	}
}

// Next blocks for the next upstream-bound item. Text is checked first
// without blocking so queued instructions preempt queued audio; otherwise
// whichever queue becomes ready first wins.
func (m *InputMux) Next(ctx context.Context) (Item, error) {
	select {
	case text := <-m.text:
		return Item{Text: text}, nil
	default:
	}

	select {
	case text := <-m.text:
		return Item{Text: text}, nil
	case frame := <-m.audio:
		return Item{Frame: &frame}, nil
	case <-ctx.Done():
		return Item{}, ctx.Err()
	}
}
