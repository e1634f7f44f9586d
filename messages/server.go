package messages

import "encoding/base64"

// WebSocket close codes. Each terminal condition gets a distinct code so
// clients can react without parsing free text.
const (
	CloseMissingAuth         = 4001
	CloseInvalidToken        = 4002
	CloseMissingPrecondition = 4003
	CloseAuthTimeout         = 4004
	CloseInternalError       = 4500
	CloseUpstreamUnavailable = 4502
)

// Error codes carried inside error frames
const (
	ErrCodeInvalidMessage      = "INVALID_MESSAGE"
	ErrCodeUnsupportedAudio    = "UNSUPPORTED_AUDIO"
	ErrCodeUpstreamError       = "UPSTREAM_ERROR"
	ErrCodeSessionFailed       = "SESSION_FAILED"
	ErrCodeAuthFailed          = "AUTH_FAILED"
	ErrCodeMissingPrecondition = "MISSING_PRECONDITION"
)

// Server message types
const (
	TypeAuthSuccess      = "auth_success"
	TypeSessionReady     = "session_ready"
	TypeAIText           = "ai_text"
	TypeAIAudio          = "ai_audio"
	TypeInputTranscript  = "input_transcript"
	TypeOutputTranscript = "output_transcript"
	TypeTurnComplete     = "turn_complete"
	TypeError            = "error"
	TypeSessionEnd       = "session_end"
)

// ServerMessage is an outbound frame. Every frame is self-contained and
// stamped with a type discriminator, so delivery order across types is not
// load-bearing.
type ServerMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text,omitempty"`
	Data      string `json:"data,omitempty"` // base64 audio
	MimeType  string `json:"mime_type,omitempty"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
}

func NewAuthSuccess(sessionID string) *ServerMessage {
	return &ServerMessage{Type: TypeAuthSuccess, SessionID: sessionID}
}

func NewSessionReady(sessionID string) *ServerMessage {
	return &ServerMessage{Type: TypeSessionReady, SessionID: sessionID}
}

func NewAIText(sessionID, text string) *ServerMessage {
	return &ServerMessage{Type: TypeAIText, SessionID: sessionID, Text: text}
}

// NewAIAudio frames a 24kHz PCM chunk from the model for client delivery.
func NewAIAudio(sessionID string, pcm []byte) *ServerMessage {
	return &ServerMessage{
		Type:      TypeAIAudio,
		SessionID: sessionID,
		Data:      base64.StdEncoding.EncodeToString(pcm),
		MimeType:  EgressMimeType,
	}
}

func NewInputTranscript(sessionID, text string) *ServerMessage {
	return &ServerMessage{Type: TypeInputTranscript, SessionID: sessionID, Text: text}
}

func NewOutputTranscript(sessionID, text string) *ServerMessage {
	return &ServerMessage{Type: TypeOutputTranscript, SessionID: sessionID, Text: text}
}

func NewTurnComplete(sessionID string) *ServerMessage {
	return &ServerMessage{Type: TypeTurnComplete, SessionID: sessionID}
}

func NewError(sessionID, code, message string) *ServerMessage {
	return &ServerMessage{Type: TypeError, SessionID: sessionID, Code: code, Message: message}
}

func NewSessionEnd(sessionID string) *ServerMessage {
	return &ServerMessage{Type: TypeSessionEnd, SessionID: sessionID}
}
