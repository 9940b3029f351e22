package devbackend

import (
	"context"
	"fmt"
	"strings"
)

// Responder produces the text the backend answers with.
type Responder interface {
	Reply(ctx context.Context, message string) (string, error)
	Tailor(ctx context.Context, baseResume, jobDescription string) (string, error)
}

// EchoResponder answers deterministically without a model.
type EchoResponder struct{}

var _ Responder = EchoResponder{}

func (EchoResponder) Reply(ctx context.Context, message string) (string, error) {
	return fmt.Sprintf("You said: %s", strings.TrimSpace(message)), nil
}

// Tailor returns the base resume followed by the job description's lines as
// a keyword section, in Markdown.
func (EchoResponder) Tailor(ctx context.Context, baseResume, jobDescription string) (string, error) {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(baseResume))
	b.WriteString("\n\n## Relevant to this role\n")
	for _, line := range strings.Split(jobDescription, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String(), nil
}
