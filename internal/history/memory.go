package history

import (
	"context"
	"sync"
	"time"

	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/dvloznov/finance-assistant/internal/identity"
	"github.com/google/uuid"
)

type key struct {
	tenant         identity.TenantID
	conversationID string
}

// Memory is an in-process Store.
type Memory struct {
	mu            sync.RWMutex
	turns         map[key][]domain.Turn
	conversations map[identity.TenantID][]domain.Conversation
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		turns:         make(map[key][]domain.Turn),
		conversations: make(map[identity.TenantID][]domain.Conversation),
	}
}

// Get returns a copy of the turns.
func (m *Memory) Get(_ context.Context, tenant identity.TenantID, conversationID string) ([]domain.Turn, error) {
	if err := checkKey(tenant, conversationID); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	turns := m.turns[key{tenant, conversationID}]
	out := make([]domain.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// Append implements Store.
func (m *Memory) Append(_ context.Context, tenant identity.TenantID, conversationID string, turns ...domain.Turn) error {
	if err := checkKey(tenant, conversationID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{tenant, conversationID}
	m.turns[k] = append(m.turns[k], turns...)
	return nil
}

// NewConversation implements Store.
func (m *Memory) NewConversation(_ context.Context, tenant identity.TenantID) (domain.Conversation, error) {
	if tenant.IsZero() {
		return domain.Conversation{}, ErrInvalidKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	conv := domain.Conversation{
		ID:        uuid.NewString(),
		Tenant:    tenant,
		Number:    len(m.conversations[tenant]) + 1,
		CreatedAt: time.Now().UTC(),
	}
	m.conversations[tenant] = append(m.conversations[tenant], conv)
	return conv, nil
}

// Conversations implements Store.
func (m *Memory) Conversations(_ context.Context, tenant identity.TenantID) ([]domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	convs := m.conversations[tenant]
	out := make([]domain.Conversation, len(convs))
	copy(out, convs)
	return out, nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
