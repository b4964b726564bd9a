// Package dialogue implements the deterministic conversational policy engine
// behind the public demo chat.
//
// A request carries the whole conversation. The engine extracts slots from the
// transcript, runs an ordered override cascade and falls back to a sequential
// qualification funnel, producing exactly one reply. It holds no state between
// calls and is safe for concurrent use.
package dialogue

import (
	"fmt"
	"strings"
)

// Role identifies the author of a turn.
type Role string

const (
	// RoleUser is the prospect talking to the demo agent.
	RoleUser Role = "user"
	// RoleAssistant is the demo agent itself.
	RoleAssistant Role = "assistant"
)

// Turn is one message by either party.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Transcript is the full ordered turn history submitted with a request.
type Transcript []Turn

// Validate checks the transcript invariants: at least one turn, known roles,
// and a final turn authored by the user.
func (t Transcript) Validate() error {
	if len(t) == 0 {
		return &ValidationError{Message: "messages must contain at least one turn"}
	}
	for i, turn := range t {
		if turn.Role != RoleUser && turn.Role != RoleAssistant {
			return &ValidationError{Message: fmt.Sprintf("message %d has unknown role %q", i, turn.Role)}
		}
	}
	if t[len(t)-1].Role != RoleUser {
		return &ValidationError{Message: "last message must be authored by the user"}
	}
	return nil
}

// Last returns the final turn. Callers must have validated the transcript.
func (t Transcript) Last() Turn {
	return t[len(t)-1]
}

// ByRole returns the turns authored by role in chronological order.
func (t Transcript) ByRole(role Role) []Turn {
	var out []Turn
	for _, turn := range t {
		if turn.Role == role {
			out = append(out, turn)
		}
	}
	return out
}

// LastAssistant returns the content of the most recent assistant turn, or ""
// when the assistant has not spoken yet.
func (t Transcript) LastAssistant() string {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Role == RoleAssistant {
			return t[i].Content
		}
	}
	return ""
}

// AssistantSaid reports whether any assistant turn satisfies match.
func (t Transcript) AssistantSaid(match func(content string) bool) bool {
	for _, turn := range t {
		if turn.Role == RoleAssistant && match(turn.Content) {
			return true
		}
	}
	return false
}

// userText joins every lowercased user turn with single spaces.
func (t Transcript) userText() string {
	var parts []string
	for _, turn := range t.ByRole(RoleUser) {
		parts = append(parts, strings.ToLower(turn.Content))
	}
	return strings.Join(parts, " ")
}
