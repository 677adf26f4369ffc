package domain

import (
	"fmt"
	"time"

	"github.com/dvloznov/finance-assistant/internal/identity"
)

// Role of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// UserTurn builds a user turn stamped now.
func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Text: text, CreatedAt: time.Now().UTC()}
}

// AssistantTurn builds an assistant turn stamped now.
func AssistantTurn(text string) Turn {
	return Turn{Role: RoleAssistant, Text: text, CreatedAt: time.Now().UTC()}
}

// Conversation is a numbered chat thread owned by one tenant.
type Conversation struct {
	ID        string            `json:"id"`
	Tenant    identity.TenantID `json:"tenant"`
	Number    int               `json:"number"`
	CreatedAt time.Time         `json:"created_at"`
}

// Title is the label shown in conversation lists.
func (c Conversation) Title() string {
	return fmt.Sprintf("Conversation %d", c.Number)
}
