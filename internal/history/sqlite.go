package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/dvloznov/finance-assistant/internal/identity"
	"github.com/dvloznov/finance-assistant/internal/infra/sqlite"
	"github.com/google/uuid"
)

// SQLite is a durable Store backed by conversations.db.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (creating and migrating) the history database.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sqlite.Open(ctx, path, sqlite.SetHistory)
	if err != nil {
		return nil, fmt.Errorf("OpenSQLite: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

// Get implements Store.
func (s *SQLite) Get(ctx context.Context, tenant identity.TenantID, conversationID string) ([]domain.Turn, error) {
	if err := checkKey(tenant, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, text, created_at FROM turns
		WHERE tenant = ? AND conversation_id = ?
		ORDER BY id
	`, string(tenant), conversationID)
	if err != nil {
		return nil, fmt.Errorf("SQLite.Get: %w", err)
	}
	defer rows.Close()

	turns := []domain.Turn{}
	for rows.Next() {
		var (
			t       domain.Turn
			role    string
			created string
		)
		if err := rows.Scan(&role, &t.Text, &created); err != nil {
			return nil, fmt.Errorf("SQLite.Get: scan: %w", err)
		}
		t.Role = domain.Role(role)
		t.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// Append implements Store. All turns are written in one transaction.
func (s *SQLite) Append(ctx context.Context, tenant identity.TenantID, conversationID string, turns ...domain.Turn) error {
	if err := checkKey(tenant, conversationID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("SQLite.Append: begin: %w", err)
	}
	defer tx.Rollback()

	for _, t := range turns {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO turns (tenant, conversation_id, role, text, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, string(tenant), conversationID, string(t.Role), t.Text, t.CreatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("SQLite.Append: insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("SQLite.Append: commit: %w", err)
	}
	return nil
}

// NewConversation implements Store.
func (s *SQLite) NewConversation(ctx context.Context, tenant identity.TenantID) (domain.Conversation, error) {
	if tenant.IsZero() {
		return domain.Conversation{}, ErrInvalidKey
	}

	conv := domain.Conversation{
		ID:        uuid.NewString(),
		Tenant:    tenant,
		CreatedAt: time.Now().UTC(),
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO conversations (id, tenant, number, created_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(number), 0) + 1 FROM conversations WHERE tenant = ?), ?)
		RETURNING number
	`, conv.ID, string(tenant), string(tenant), conv.CreatedAt.Format(time.RFC3339Nano)).Scan(&conv.Number)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("SQLite.NewConversation: %w", err)
	}
	return conv, nil
}

// Conversations implements Store.
func (s *SQLite) Conversations(ctx context.Context, tenant identity.TenantID) ([]domain.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, number, created_at FROM conversations
		WHERE tenant = ?
		ORDER BY number
	`, string(tenant))
	if err != nil {
		return nil, fmt.Errorf("SQLite.Conversations: %w", err)
	}
	defer rows.Close()

	convs := []domain.Conversation{}
	for rows.Next() {
		c := domain.Conversation{Tenant: tenant}
		var created string
		if err := rows.Scan(&c.ID, &c.Number, &created); err != nil {
			return nil, fmt.Errorf("SQLite.Conversations: scan: %w", err)
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		convs = append(convs, c)
	}
	return convs, rows.Err()
}
