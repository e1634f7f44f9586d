package policy

import (
	"context"
	"fmt"
	"strings"

	"mentor-voice/messages"
)

// PlanActivity is one entry in a student's generated daily plan.
type PlanActivity struct {
	Title  string `json:"title"`
	Kind   string `json:"kind"` // "practice", "review", "package"
	Points int    `json:"points"`
}

// DailyPlan is the activity plan the briefing walks through.
type DailyPlan struct {
	StudentName string         `json:"student_name"`
	Activities  []PlanActivity `json:"activities"`
	TotalPoints int            `json:"total_points"`
	StreakDays  int            `json:"streak_days"`
}

// PlanStore fetches generated daily plans.
type PlanStore interface {
	DailyPlan(ctx context.Context, studentID string) (*DailyPlan, error)
}

// DailyBriefing delivers a short scheduled walkthrough of today's plan.
type DailyBriefing struct {
	studentID string
	store     PlanStore

	plan *DailyPlan // set by BuildSystemInstruction
}

func NewDailyBriefing(studentID string, store PlanStore) (*DailyBriefing, error) {
	if studentID == "" {
		return nil, fmt.Errorf("%w: student_id is required", ErrMissingPrecondition)
	}
	return &DailyBriefing{studentID: studentID, store: store}, nil
}

func (d *DailyBriefing) Voice() string { return "Zephyr" }

func (d *DailyBriefing) BuildSystemInstruction(ctx context.Context) (string, error) {
	plan, err := d.store.DailyPlan(ctx, d.studentID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch daily plan for student %q: %w", d.studentID, err)
	}
	d.plan = plan

	var b strings.Builder
	b.WriteString("You are an upbeat voice assistant giving a student their daily learning briefing.\n")
	b.WriteString("Keep it short: the whole briefing should take under a minute unless the student asks questions.\n")
	fmt.Fprintf(&b, "\nToday's plan (%d points available):\n", plan.TotalPoints)
	for i, a := range plan.Activities {
		fmt.Fprintf(&b, "%d. %s (%s, %d points)\n", i+1, a.Title, a.Kind, a.Points)
	}
	if plan.StreakDays > 0 {
		fmt.Fprintf(&b, "\nThe student is on a %d-day streak. Mention it once, positively.\n", plan.StreakDays)
	}
	b.WriteString("\nAnswer questions about the plan; do not start tutoring here.")
	return b.String(), nil
}

// InitialPrompt is the personalized greeting computed from the plan data.
func (d *DailyBriefing) InitialPrompt() string {
	if d.plan == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString("Greet")
	if d.plan.StudentName != "" {
		fmt.Fprintf(&b, " %s", d.plan.StudentName)
	} else {
		b.WriteString(" the student")
	}
	b.WriteString(" warmly and give today's briefing")
	if len(d.plan.Activities) > 0 {
		fmt.Fprintf(&b, ", starting with %q", d.plan.Activities[0].Title)
	}
	if d.plan.StreakDays > 1 {
		fmt.Fprintf(&b, ". Congratulate them on their %d-day streak", d.plan.StreakDays)
	}
	b.WriteString(".")
	return b.String()
}

func (d *DailyBriefing) HandleClientMessage(ctx context.Context, msg *messages.ClientMessage, sink Sink) error {
	switch msg.Type {
	case messages.TypeText:
		return sink.PushText(ctx, msg.Text)
	case messages.TypeAudio:
		return pushAudioPayload(ctx, msg, sink)
	case messages.TypeEndBriefing, messages.TypeEndConversation:
		return ErrSessionEnded
	default:
		return nil
	}
}
