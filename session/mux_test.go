package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mentor-voice/messages"
)

func frame(b byte) messages.AudioFrame {
	return messages.NewIngressFrame([]byte{b, b})
}

func TestInputMuxTextPreemptsAudio(t *testing.T) {
	m := NewInputMux(8, 8, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, m.PushAudio(ctx, frame(1)))
	require.NoError(t, m.PushAudio(ctx, frame(2)))
	require.NoError(t, m.PushText(ctx, "first"))
	require.NoError(t, m.PushText(ctx, "second"))

	got := make([]Item, 0, 4)
	for i := 0; i < 4; i++ {
		item, err := m.Next(ctx)
		require.NoError(t, err)
		got = append(got, item)
	}

	assert.Equal(t, "first", got[0].Text)
	assert.Equal(t, "second", got[1].Text)
	require.NotNil(t, got[2].Frame)
	require.NotNil(t, got[3].Frame)
	assert.Equal(t, byte(1), got[2].Frame.Data[0])
	assert.Equal(t, byte(2), got[3].Frame.Data[0])
}

func TestInputMuxAudioOverflowDropsOldest(t *testing.T) {
	m := NewInputMux(1, 2, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, m.PushAudio(ctx, frame(1)))
	require.NoError(t, m.PushAudio(ctx, frame(2)))
	require.NoError(t, m.PushAudio(ctx, frame(3)))

	first, err := m.Next(ctx)
	require.NoError(t, err)
	second, err := m.Next(ctx)
	require.NoError(t, err)

	require.NotNil(t, first.Frame)
	require.NotNil(t, second.Frame)
	assert.Equal(t, byte(2), first.Frame.Data[0])
	assert.Equal(t, byte(3), second.Frame.Data[0])
}

func TestInputMuxTextNeverDropped(t *testing.T) {
	m := NewInputMux(1, 1, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, m.PushText(ctx, "one"))

	pushed := make(chan error, 1)
	go func() { pushed <- m.PushText(ctx, "two") }()

	select {
	case err := <-pushed:
		t.Fatalf("push on a full text queue returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	item, err := m.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "one", item.Text)

	require.NoError(t, <-pushed)
	item, err = m.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "two", item.Text)
}

func TestInputMuxConcurrentProducers(t *testing.T) {
	const (
		nText  = 50
		nAudio = 200
	)
	// audio queue sized to the full stream so overflow cannot drop frames
	m := NewInputMux(4, nAudio, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		for i := 0; i < nText; i++ {
			if err := m.PushText(ctx, fmt.Sprintf("t-%d", i)); err != nil {
				return
			}
		}
	}()
	go func() {
		for i := 0; i < nAudio; i++ {
			f := messages.NewIngressFrame([]byte{byte(i), byte(i >> 8)})
			if err := m.PushAudio(ctx, f); err != nil {
				return
			}
		}
	}()

	var texts []string
	var audioSeq []int
	for len(texts)+len(audioSeq) < nText+nAudio {
		item, err := m.Next(ctx)
		require.NoError(t, err)
		if item.Frame != nil {
			audioSeq = append(audioSeq, int(item.Frame.Data[0])|int(item.Frame.Data[1])<<8)
		} else {
			texts = append(texts, item.Text)
		}
	}

	// exactly once, FIFO within each queue
	require.Len(t, texts, nText)
	require.Len(t, audioSeq, nAudio)
	for i, text := range texts {
		assert.Equal(t, fmt.Sprintf("t-%d", i), text)
	}
	for i, seq := range audioSeq {
		assert.Equal(t, i, seq)
	}
}

func TestInputMuxNextHonorsCancellation(t *testing.T) {
	m := NewInputMux(1, 1, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
