package service

import (
	"strings"

	"github.com/jmbento/omnicall-ai/internal/models"
)

const (
	BeginContext = "[BEGIN CONTEXT]"
	EndContext   = "[END CONTEXT]"
)

const (
	noContextNote = "No reference documents matched this conversation."

	groundingDirective = "Answer using the facts between " + BeginContext + " and " + EndContext +
		" whenever they are relevant. If the context does not cover the question, answer from general" +
		" knowledge and say clearly that you are not certain."
)

// Compose builds the instruction payload: persona, delimited context,
// conversation history, then the grounding directive.
func Compose(persona, context string, history []models.Message) string {
	var b strings.Builder

	if p := strings.TrimSpace(persona); p != "" {
		b.WriteString(p)
		b.WriteString("\n\n")
	}

	b.WriteString(BeginContext)
	b.WriteString("\n")
	if c := strings.TrimSpace(context); c != "" {
		b.WriteString(c)
	} else {
		b.WriteString(noContextNote)
	}
	b.WriteString("\n")
	b.WriteString(EndContext)
	b.WriteString("\n\n")

	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, m := range history {
			content := strings.TrimSpace(m.Content)
			if content == "" || m.Role == models.RoleSystem {
				continue
			}
			b.WriteString(string(m.Role))
			b.WriteString(": ")
			b.WriteString(content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(groundingDirective)
	return b.String()
}
