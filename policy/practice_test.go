package policy

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentor-voice/messages"
)

// recordingSink collects everything a policy pushes upstream.
type recordingSink struct {
	texts  []string
	frames []messages.AudioFrame
}

func (s *recordingSink) PushText(_ context.Context, text string) error {
	s.texts = append(s.texts, text)
	return nil
}

func (s *recordingSink) PushAudio(_ context.Context, frame messages.AudioFrame) error {
	s.frames = append(s.frames, frame)
	return nil
}

func newTutor(t *testing.T) *PracticeTutor {
	t.Helper()
	tutor, err := NewPracticeTutor(&messages.TopicContext{Subject: "math", Skill: "addition"})
	require.NoError(t, err)
	return tutor
}

func TestNewPracticeTutorRequiresTopic(t *testing.T) {
	tests := []struct {
		name  string
		topic *messages.TopicContext
	}{
		{"nil topic", nil},
		{"missing subject", &messages.TopicContext{Skill: "addition"}},
		{"missing skill", &messages.TopicContext{Subject: "math"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPracticeTutor(tt.topic)
			assert.ErrorIs(t, err, ErrMissingPrecondition)
		})
	}
}

func TestPracticeTutorInstructionMentionsTopic(t *testing.T) {
	tutor, err := NewPracticeTutor(&messages.TopicContext{
		Subject: "math", Skill: "fractions", Subskill: "common denominators",
	})
	require.NoError(t, err)

	instruction, err := tutor.BuildSystemInstruction(context.Background())
	require.NoError(t, err)
	assert.Contains(t, instruction, "math")
	assert.Contains(t, instruction, "fractions")
	assert.Contains(t, instruction, "common denominators")

	assert.Empty(t, tutor.InitialPrompt())
	assert.Equal(t, "Kore", tutor.Voice())
}

func TestPracticeTutorNewProblem(t *testing.T) {
	tutor := newTutor(t)
	sink := &recordingSink{}

	err := tutor.HandleClientMessage(context.Background(), &messages.ClientMessage{
		Type: messages.TypeNewProblem,
		ProblemContext: &messages.ProblemContext{
			ProblemData: messages.ProblemData{
				Question: "What is 2+2?",
				Options:  []string{"3", "4", "5"},
			},
		},
	}, sink)
	require.NoError(t, err)

	require.Len(t, sink.texts, 1)
	instruction := sink.texts[0]
	assert.Contains(t, instruction, "What is 2+2?")
	assert.Contains(t, instruction, "Option A: 3")
	assert.Contains(t, instruction, "Option B: 4")
	assert.Contains(t, instruction, "Option C: 5")
}

func TestPracticeTutorNewProblemRequiresContext(t *testing.T) {
	tutor := newTutor(t)
	err := tutor.HandleClientMessage(context.Background(), &messages.ClientMessage{
		Type: messages.TypeNewProblem,
	}, &recordingSink{})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionEnded)
}

func TestPracticeTutorResultFeedback(t *testing.T) {
	tutor := newTutor(t)
	correct := true
	incorrect := false

	tests := []struct {
		name    string
		correct *bool
		want    string
	}{
		{"correct", &correct, "correctly"},
		{"incorrect", &incorrect, "incorrectly"},
		{"unknown", nil, "attempt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			err := tutor.HandleClientMessage(context.Background(), &messages.ClientMessage{
				Type:    messages.TypeResultFeedback,
				Correct: tt.correct,
			}, sink)
			require.NoError(t, err)
			require.Len(t, sink.texts, 1)
			assert.Contains(t, sink.texts[0], tt.want)
		})
	}
}

func TestPracticeTutorUpdateContext(t *testing.T) {
	tutor := newTutor(t)
	sink := &recordingSink{}

	err := tutor.HandleClientMessage(context.Background(), &messages.ClientMessage{
		Type:         messages.TypeUpdateContext,
		TopicContext: &messages.TopicContext{Subject: "science", Skill: "photosynthesis"},
	}, sink)
	require.NoError(t, err)
	require.Len(t, sink.texts, 1)
	assert.Contains(t, sink.texts[0], "science")

	instruction, err := tutor.BuildSystemInstruction(context.Background())
	require.NoError(t, err)
	assert.Contains(t, instruction, "photosynthesis")
}

func TestPracticeTutorAudioPayload(t *testing.T) {
	tutor := newTutor(t)
	sink := &recordingSink{}

	err := tutor.HandleClientMessage(context.Background(), &messages.ClientMessage{
		Type: messages.TypeAudio,
		Audio: &messages.AudioPayload{
			Data: base64.StdEncoding.EncodeToString([]byte{0, 1, 0, 1}),
		},
	}, sink)
	require.NoError(t, err)
	require.Len(t, sink.frames, 1)
	assert.Equal(t, []byte{0, 1, 0, 1}, sink.frames[0].Data)
}

func TestPracticeTutorRejectsBadAudio(t *testing.T) {
	tutor := newTutor(t)
	err := tutor.HandleClientMessage(context.Background(), &messages.ClientMessage{
		Type: messages.TypeAudio,
		Audio: &messages.AudioPayload{
			Data:       base64.StdEncoding.EncodeToString([]byte{0, 1}),
			SampleRate: 44100,
		},
	}, &recordingSink{})
	assert.Error(t, err)
}

func TestPracticeTutorEndConversation(t *testing.T) {
	tutor := newTutor(t)
	err := tutor.HandleClientMessage(context.Background(), &messages.ClientMessage{
		Type: messages.TypeEndConversation,
	}, &recordingSink{})
	assert.ErrorIs(t, err, ErrSessionEnded)
}

func TestPracticeTutorIgnoresUnknownTypes(t *testing.T) {
	tutor := newTutor(t)
	sink := &recordingSink{}
	err := tutor.HandleClientMessage(context.Background(), &messages.ClientMessage{
		Type: "future_thing",
	}, sink)
	assert.NoError(t, err)
	assert.Empty(t, sink.texts)
}
