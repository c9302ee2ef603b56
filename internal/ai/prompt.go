package ai

import (
	"fmt"
	"strings"
)

// NoContextPlaceholder stands in for the context block when nothing was retrieved.
const NoContextPlaceholder = "No specific context found matching the query."

// BuildSystemPrompt renders the system message around the given passages.
func BuildSystemPrompt(name string, passages []string) string {
	contextText := NoContextPlaceholder
	if len(passages) > 0 {
		contextText = strings.Join(passages, "\n\n")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are an AI assistant answering questions about %s based *primarily* on the provided context and the ongoing conversation. ", name)
	b.WriteString("If the context doesn't contain the answer, state that you don't have that information based on the provided details. ")
	b.WriteString("Refer to previous messages if relevant. Keep responses concise and professional.\n\n")

	fmt.Fprintf(&b, "Context about %s:\n", name)
	b.WriteString("--- START CONTEXT ---\n")
	b.WriteString(contextText)
	b.WriteString("\n--- END CONTEXT ---")

	return b.String()
}

// AssembleMessages returns [system, ...history, user]. History is copied verbatim.
func AssembleMessages(systemPrompt string, history []Message, userMsg string) []Message {
	msgs := make([]Message, 0, len(history)+2)
	msgs = append(msgs, Message{Role: RoleSystem, Content: systemPrompt})
	msgs = append(msgs, history...)
	msgs = append(msgs, Message{Role: RoleUser, Content: userMsg})
	return msgs
}
