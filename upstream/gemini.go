package upstream

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiConnector opens Live API channels. The genai client is shared across
// sessions and carries configuration only; all session state lives in the
// channel it hands out.
type GeminiConnector struct {
	client *genai.Client
	logger *zap.Logger
}

func NewGeminiConnector(ctx context.Context, apiKey string, logger *zap.Logger) (*GeminiConnector, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiConnector{client: client, logger: logger}, nil
}

// Connect establishes a Live session configured for duplex audio with input
// and output transcription enabled.
func (c *GeminiConnector) Connect(ctx context.Context, cfg ModelConfig) (Channel, error) {
	config := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{"AUDIO"},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{
				{Text: cfg.SystemInstruction},
			},
		},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{
					VoiceName: cfg.Voice,
				},
			},
		},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}

	session, err := c.client.Live.Connect(ctx, cfg.Model, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Live API: %w", err)
	}

	c.logger.Info("Connected to Gemini Live",
		zap.String("model", cfg.Model),
		zap.String("voice", cfg.Voice))

	return &geminiChannel{session: session, logger: c.logger}, nil
}

// geminiChannel adapts one *genai.Session to the Channel contract.
type geminiChannel struct {
	session *genai.Session
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
}

func (ch *geminiChannel) isClosed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closed
}

func (ch *geminiChannel) SendText(text string, endOfTurn bool) error {
	if ch.isClosed() {
		return fmt.Errorf("upstream channel is closed")
	}

	err := ch.session.SendClientContent(genai.LiveSendClientContentParameters{
		Turns: []*genai.Content{
			{
				Role:  "user",
				Parts: []*genai.Part{{Text: text}},
			},
		},
		TurnComplete: &endOfTurn,
	})
	if err != nil {
		return fmt.Errorf("failed to send text upstream: %w", err)
	}
	return nil
}

func (ch *geminiChannel) SendAudio(pcm []byte) error {
	if ch.isClosed() {
		return fmt.Errorf("upstream channel is closed")
	}

	err := ch.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{
			MIMEType: "audio/pcm;rate=16000",
			Data:     pcm,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send audio upstream: %w", err)
	}
	return nil
}

// Receive blocks for the next Live message and flattens it into an Event.
// Text, inline audio, transcriptions and the turn boundary are independent
// facets of a single message and are all inspected.
func (ch *geminiChannel) Receive() (*Event, error) {
	resp, err := ch.session.Receive()
	if err != nil {
		if ch.isClosed() {
			return nil, io.EOF
		}
		return nil, err
	}

	ev := &Event{}
	if sc := resp.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.Text != "" {
					ev.Text += part.Text
				}
				if part.InlineData != nil {
					ev.Audio = append(ev.Audio, part.InlineData.Data...)
				}
			}
		}
		if sc.InputTranscription != nil {
			ev.InputTranscript = sc.InputTranscription.Text
		}
		if sc.OutputTranscription != nil {
			ev.OutputTranscript = sc.OutputTranscription.Text
		}
		ev.TurnComplete = sc.TurnComplete
	}

	return ev, nil
}

func (ch *geminiChannel) Close() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return nil
	}
	ch.closed = true
	return ch.session.Close()
}
