// Package history keeps conversation turns partitioned by tenant and
// conversation. Nothing is shared between keys.
package history

import (
	"context"
	"errors"

	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/dvloznov/finance-assistant/internal/identity"
)

// ErrInvalidKey is returned when the tenant or conversation is missing.
var ErrInvalidKey = errors.New("tenant and conversation are required")

// Store is the session ledger.
type Store interface {
	// Get returns the turns of a conversation, oldest first. Unknown
	// conversations have no turns.
	Get(ctx context.Context, tenant identity.TenantID, conversationID string) ([]domain.Turn, error)
	// Append adds turns to the end of a conversation.
	Append(ctx context.Context, tenant identity.TenantID, conversationID string, turns ...domain.Turn) error
	// NewConversation starts the tenant's next numbered conversation.
	NewConversation(ctx context.Context, tenant identity.TenantID) (domain.Conversation, error)
	// Conversations lists the tenant's conversations by number.
	Conversations(ctx context.Context, tenant identity.TenantID) ([]domain.Conversation, error)
	Close() error
}

func checkKey(tenant identity.TenantID, conversationID string) error {
	if tenant.IsZero() || conversationID == "" {
		return ErrInvalidKey
	}
	return nil
}
