package policy

import (
	"context"
	"fmt"
	"strings"

	"mentor-voice/messages"
)

// PracticeTutor coaches a student through individual practice problems. The
// session idles after connect: the first upstream turn comes from the first
// new_problem frame, not from an initial prompt.
type PracticeTutor struct {
	topic messages.TopicContext
}

func NewPracticeTutor(topic *messages.TopicContext) (*PracticeTutor, error) {
	if topic == nil || topic.Subject == "" || topic.Skill == "" {
		return nil, fmt.Errorf("%w: topic_context with subject and skill is required", ErrMissingPrecondition)
	}
	return &PracticeTutor{topic: *topic}, nil
}

func (p *PracticeTutor) Voice() string { return "Kore" }

func (p *PracticeTutor) BuildSystemInstruction(_ context.Context) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a patient, encouraging voice tutor helping a student practice %s.\n", p.topic.Subject)
	fmt.Fprintf(&b, "The current skill being practiced is: %s.\n", p.topic.Skill)
	if p.topic.Subskill != "" {
		fmt.Fprintf(&b, "Focus specifically on: %s.\n", p.topic.Subskill)
	}
	b.WriteString(`
Guidelines:
- Speak naturally and keep responses short; this is a voice conversation.
- Never give away the answer. Guide the student toward it with questions.
- When reading a problem aloud, read it exactly as written, including all answer options.
- Praise effort specifically, not just correctness.
- If the student is stuck, break the problem into smaller steps.`)
	return b.String(), nil
}

// InitialPrompt is empty: the tutor waits for the first problem.
func (p *PracticeTutor) InitialPrompt() string { return "" }

func (p *PracticeTutor) HandleClientMessage(ctx context.Context, msg *messages.ClientMessage, sink Sink) error {
	switch msg.Type {
	case messages.TypeText:
		return sink.PushText(ctx, msg.Text)

	case messages.TypeAudio:
		return pushAudioPayload(ctx, msg, sink)

	case messages.TypeNewProblem:
		if msg.ProblemContext == nil {
			return fmt.Errorf("new_problem frame missing problem_context")
		}
		return sink.PushText(ctx, renderProblemInstruction(&msg.ProblemContext.ProblemData))

	case messages.TypeHintRequest:
		return sink.PushText(ctx, "The student is asking for a hint. Give one small nudge toward the next step without revealing the answer.")

	case messages.TypeConceptExplanation:
		return sink.PushText(ctx, "The student wants the underlying concept explained. Explain it briefly with a concrete everyday example, then relate it back to the current problem.")

	case messages.TypeCheckWork:
		instruction := "The student wants their work checked. Walk through their reasoning step by step, point out the first place it goes wrong if it does, and let them correct it themselves."
		if msg.Text != "" {
			instruction += " The student's work: " + msg.Text
		}
		return sink.PushText(ctx, instruction)

	case messages.TypeResultFeedback:
		return sink.PushText(ctx, renderResultFeedback(msg.Correct))

	case messages.TypeUpdateContext:
		if msg.TopicContext != nil {
			p.topic = *msg.TopicContext
		}
		return sink.PushText(ctx, fmt.Sprintf(
			"The practice topic has changed. The student is now working on %s: %s. Acknowledge the switch briefly and wait for the next problem.",
			p.topic.Subject, p.topic.Skill))

	case messages.TypeStudentAction:
		if msg.Action == "" {
			return fmt.Errorf("student_action frame missing action")
		}
		return sink.PushText(ctx, fmt.Sprintf("The student just did the following in the app: %s. React naturally if it deserves a reaction, otherwise stay quiet.", msg.Action))

	case messages.TypeEndConversation:
		return ErrSessionEnded

	default:
		// forward-compatible: unknown types are ignored
		return nil
	}
}

// renderProblemInstruction turns a problem into a single read-aloud
// instruction, with multiple-choice options rendered as lettered text.
func renderProblemInstruction(pd *messages.ProblemData) string {
	var b strings.Builder
	b.WriteString("The student has received a new problem. Read this problem aloud to them, then wait silently while they work on it.\n")
	fmt.Fprintf(&b, "Problem: %s", pd.Question)
	for i, opt := range pd.Options {
		fmt.Fprintf(&b, "\nOption %c: %s", 'A'+i, opt)
	}
	if pd.Answer != "" {
		fmt.Fprintf(&b, "\n(For your reference only, never reveal it: the correct answer is %s.)", pd.Answer)
	}
	return b.String()
}

func renderResultFeedback(correct *bool) string {
	switch {
	case correct == nil:
		return "The student submitted an answer. Acknowledge the attempt and ask them to explain their thinking."
	case *correct:
		return "The student answered correctly. Celebrate briefly and name one thing they did well, then move on."
	default:
		return "The student answered incorrectly. Be warm about it, point at where their approach drifted, and encourage another try."
	}
}
