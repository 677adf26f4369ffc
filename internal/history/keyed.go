package history

import (
	"sync"

	"github.com/dvloznov/finance-assistant/internal/identity"
)

// KeyedMutex serializes work per (tenant, conversation). Entries are
// removed once no goroutine holds or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[key]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty lock table.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[key]*keyedEntry)}
}

// Lock blocks until the key is free and returns its unlock function.
func (k *KeyedMutex) Lock(tenant identity.TenantID, conversationID string) (unlock func()) {
	id := key{tenant, conversationID}

	k.mu.Lock()
	e, ok := k.locks[id]
	if !ok {
		e = &keyedEntry{}
		k.locks[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			k.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(k.locks, id)
			}
			k.mu.Unlock()
		})
	}
}

// Len returns how many keys are currently locked or awaited.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
