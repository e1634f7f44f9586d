package messages

import (
	"encoding/base64"
	"fmt"
)

// Audio wire contract: raw PCM 16kHz mono up, raw PCM 24kHz mono 16-bit down.
const (
	FormatRawPCM = "raw-pcm"

	IngressSampleRate = 16000
	IngressChannels   = 1

	EgressSampleRate = 24000
	EgressMimeType   = "audio/pcm;rate=24000"
)

// AudioFrame is one chunk of client audio headed upstream.
type AudioFrame struct {
	Data       []byte
	SampleRate int
	Channels   int
	Format     string
}

// NewIngressFrame wraps a raw binary frame, which by contract is already
// 16kHz mono raw PCM.
func NewIngressFrame(pcm []byte) AudioFrame {
	return AudioFrame{
		Data:       pcm,
		SampleRate: IngressSampleRate,
		Channels:   IngressChannels,
		Format:     FormatRawPCM,
	}
}

// FrameFromPayload decodes a JSON audio payload into an AudioFrame,
// filling contract defaults for omitted fields.
func FrameFromPayload(p *AudioPayload) (AudioFrame, error) {
	if p == nil || p.Data == "" {
		return AudioFrame{}, fmt.Errorf("audio payload missing data")
	}
	pcm, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		return AudioFrame{}, fmt.Errorf("invalid base64 audio data: %w", err)
	}

	frame := NewIngressFrame(pcm)
	if p.SampleRate != 0 {
		frame.SampleRate = p.SampleRate
	}
	if p.Channels != 0 {
		frame.Channels = p.Channels
	}
	if p.Format != "" {
		frame.Format = p.Format
	}
	return frame, nil
}

// ValidateIngress enforces the upstream audio contract. Violating frames are
// rejected before they ever reach the audio queue.
func (f AudioFrame) ValidateIngress() error {
	if f.Format != FormatRawPCM {
		return fmt.Errorf("unsupported audio format %q, want %q", f.Format, FormatRawPCM)
	}
	if f.SampleRate != IngressSampleRate {
		return fmt.Errorf("unsupported sample rate %d, want %d", f.SampleRate, IngressSampleRate)
	}
	if f.Channels != IngressChannels {
		return fmt.Errorf("unsupported channel count %d, want mono", f.Channels)
	}
	if len(f.Data) == 0 {
		return fmt.Errorf("empty audio frame")
	}
	return nil
}
