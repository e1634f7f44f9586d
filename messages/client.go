package messages

import (
	"encoding/json"
	"fmt"
)

// Client message types. Unknown types decode fine and are ignored downstream
// so older servers tolerate newer clients.
const (
	TypeAuthenticate       = "authenticate"
	TypeText               = "text"
	TypeAudio              = "audio"
	TypeNewProblem         = "new_problem"
	TypeHintRequest        = "hint_request"
	TypeConceptExplanation = "concept_explanation"
	TypeCheckWork          = "check_work"
	TypeResultFeedback     = "result_feedback"
	TypeUpdateContext      = "update_context"
	TypeStudentAction      = "student_action"
	TypeEndConversation    = "end_conversation"
	TypeEndBriefing        = "end_briefing"
)

// TopicContext describes what a practice session is about.
type TopicContext struct {
	Subject  string `json:"subject"`
	Skill    string `json:"skill"`
	Subskill string `json:"subskill,omitempty"`
}

// ProblemData is one practice problem as authored upstream of this service.
type ProblemData struct {
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
	Answer   string   `json:"answer,omitempty"`
}

// ProblemContext wraps the problem a new_problem frame refers to.
type ProblemContext struct {
	ProblemData ProblemData `json:"problem_data"`
}

// AudioPayload carries base64 audio inside a JSON frame. SampleRate, Channels
// and Format default to the ingress contract when omitted.
type AudioPayload struct {
	Data       string `json:"data"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Format     string `json:"format,omitempty"`
}

// ClientMessage is a decoded inbound frame, discriminated by Type.
// Variant fields sit at the top level of the wire frame.
type ClientMessage struct {
	Type string `json:"type"`

	// authenticate
	Token        string        `json:"token,omitempty"`
	TopicContext *TopicContext `json:"topic_context,omitempty"`
	PackageID    string        `json:"package_id,omitempty"`
	StudentID    string        `json:"student_id,omitempty"`

	// text
	Text string `json:"text,omitempty"`

	// audio
	Audio *AudioPayload `json:"audio,omitempty"`

	// new_problem / check_work
	ProblemContext *ProblemContext `json:"problem_context,omitempty"`

	// result_feedback
	Correct *bool `json:"correct,omitempty"`

	// student_action / update_context
	Action  string          `json:"action,omitempty"`
	Context json.RawMessage `json:"context,omitempty"`
}

// Decode parses a JSON text frame into a ClientMessage. A decode error never
// terminates the session; callers log and skip the frame.
func Decode(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("malformed client frame: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("client frame missing type field")
	}
	return &msg, nil
}
