// Package trace keeps an audit log of the tools each turn invoked.
package trace

import (
	"context"
	"time"

	"github.com/dvloznov/finance-assistant/internal/identity"
	"github.com/dvloznov/finance-assistant/internal/tools"
	"github.com/google/uuid"
)

// maxText caps the stored input and output of an invocation.
const maxText = 4096

// Record is one tool invocation.
type Record struct {
	ID             string            `json:"id"`
	Tenant         identity.TenantID `json:"tenant"`
	ConversationID string            `json:"conversation_id"`
	Tool           string            `json:"tool"`
	Kind           string            `json:"kind"`
	Input          string            `json:"input"`
	Output         string            `json:"output"`
	Failed         bool              `json:"failed"`
	Direct         bool              `json:"direct"`
	Duration       time.Duration     `json:"duration"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Recorder persists invocation records.
type Recorder interface {
	Record(ctx context.Context, records ...Record) error
	// Recent returns up to limit records of a tenant, newest first.
	Recent(ctx context.Context, tenant identity.TenantID, limit int) ([]Record, error)
}

// FromResults converts the invocations of one turn into records.
func FromResults(tenant identity.TenantID, conversationID string, results []tools.Result) []Record {
	now := time.Now().UTC()
	records := make([]Record, len(results))
	for i, r := range results {
		records[i] = Record{
			ID:             uuid.NewString(),
			Tenant:         tenant,
			ConversationID: conversationID,
			Tool:           r.ToolName,
			Kind:           r.Kind.String(),
			Input:          truncate(r.Input),
			Output:         truncate(r.Output),
			Failed:         r.Failed(),
			Direct:         r.Direct,
			Duration:       r.Duration,
			CreatedAt:      now,
		}
	}
	return records
}

func truncate(s string) string {
	if len(s) <= maxText {
		return s
	}
	return s[:maxText] + "…"
}

// Nop discards records.
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) Record(context.Context, ...Record) error { return nil }

func (Nop) Recent(context.Context, identity.TenantID, int) ([]Record, error) { return nil, nil }
