package prompt

import "github.com/grovestreet/grovebot/internal/session"

// RoleSystem tags the persona preamble. History turns keep their
// session roles.
const RoleSystem = "system"

// Message is a role-tagged prompt entry sent to the completion endpoint.
type Message struct {
	Role    string
	Content string
}

// Assemble builds the outbound prompt: persona preamble, conversation
// history oldest first, then the new user message. The result is
// ephemeral; it is never stored.
func Assemble(persona string, history []session.Turn, userText string) []Message {
	messages := make([]Message, 0, 1+len(history)+1)
	messages = append(messages, Message{Role: RoleSystem, Content: persona})
	for _, turn := range history {
		messages = append(messages, Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, Message{Role: session.RoleUser, Content: userText})
	return messages
}
