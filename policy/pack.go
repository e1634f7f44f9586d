package policy

import (
	"context"
	"fmt"
	"strings"

	"mentor-voice/messages"
)

// Term is one vocabulary entry inside a content package.
type Term struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// ContentPackage is authored curriculum material the PackageLearn session
// teaches from.
type ContentPackage struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Concepts    []string `json:"concepts"`
	Objectives  []string `json:"objectives"`
	Terminology []Term   `json:"terminology"`
}

// ContentStore fetches authored content packages.
type ContentStore interface {
	ContentPackage(ctx context.Context, id string) (*ContentPackage, error)
}

// Prompt-size control: packages can be arbitrarily large, the instruction
// cannot be.
const (
	maxPromptConcepts   = 12
	maxPromptObjectives = 8
	maxPromptTerms      = 15
)

// PackageLearn runs an open Q&A session over one content package.
type PackageLearn struct {
	packageID string
	store     ContentStore

	pkg *ContentPackage // set by BuildSystemInstruction
}

func NewPackageLearn(packageID string, store ContentStore) (*PackageLearn, error) {
	if packageID == "" {
		return nil, fmt.Errorf("%w: package_id is required", ErrMissingPrecondition)
	}
	return &PackageLearn{packageID: packageID, store: store}, nil
}

func (p *PackageLearn) Voice() string { return "Puck" }

// BuildSystemInstruction fetches the package and renders it into the system
// instruction. The fetch is the one piece of session-start I/O this policy
// performs; failure fails the session fast.
func (p *PackageLearn) BuildSystemInstruction(ctx context.Context) (string, error) {
	pkg, err := p.store.ContentPackage(ctx, p.packageID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch content package %q: %w", p.packageID, err)
	}
	p.pkg = pkg

	var b strings.Builder
	fmt.Fprintf(&b, "You are a friendly voice teacher covering the learning package %q.\n", pkg.Title)
	b.WriteString("Answer the student's questions using this material, and keep spoken responses short.\n")

	if len(pkg.Concepts) > 0 {
		b.WriteString("\nKey concepts:\n")
		for _, c := range truncate(pkg.Concepts, maxPromptConcepts) {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	if len(pkg.Objectives) > 0 {
		b.WriteString("\nLearning objectives:\n")
		for _, o := range truncate(pkg.Objectives, maxPromptObjectives) {
			fmt.Fprintf(&b, "- %s\n", o)
		}
	}
	if len(pkg.Terminology) > 0 {
		b.WriteString("\nTerminology:\n")
		n := len(pkg.Terminology)
		if n > maxPromptTerms {
			n = maxPromptTerms
		}
		for _, t := range pkg.Terminology[:n] {
			fmt.Fprintf(&b, "- %s: %s\n", t.Term, t.Definition)
		}
	}

	b.WriteString("\nIf asked about something outside this package, say so and steer back to the material.")
	return b.String(), nil
}

func (p *PackageLearn) InitialPrompt() string {
	if p.pkg == nil {
		return ""
	}
	return fmt.Sprintf("Welcome the student to a session about %q in one short, inviting sentence, then ask what they'd like to start with.", p.pkg.Title)
}

func (p *PackageLearn) HandleClientMessage(ctx context.Context, msg *messages.ClientMessage, sink Sink) error {
	switch msg.Type {
	case messages.TypeText:
		return sink.PushText(ctx, msg.Text)
	case messages.TypeAudio:
		return pushAudioPayload(ctx, msg, sink)
	case messages.TypeEndConversation:
		return ErrSessionEnded
	default:
		return nil
	}
}

func truncate(items []string, max int) []string {
	if len(items) <= max {
		return items
	}
	return items[:max]
}
