package trace

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	bq "github.com/dvloznov/finance-assistant/internal/infra/bigquery"
	"github.com/dvloznov/finance-assistant/internal/identity"
)

// Repository is the storage used by BigQuery.
type Repository interface {
	InsertToolInvocations(ctx context.Context, rows []*bq.ToolInvocationRow) error
	ListRecentToolInvocations(ctx context.Context, tenant string, limit int) ([]*bq.ToolInvocationRow, error)
}

var _ Repository = (*bq.TraceRepository)(nil)

// BigQuery writes records to the tool_invocations table.
type BigQuery struct {
	repo Repository
}

var _ Recorder = (*BigQuery)(nil)

// NewBigQuery wraps a trace repository.
func NewBigQuery(repo Repository) *BigQuery {
	return &BigQuery{repo: repo}
}

func (b *BigQuery) Record(ctx context.Context, records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]*bq.ToolInvocationRow, len(records))
	for i, r := range records {
		rows[i] = toRow(r)
	}
	if err := b.repo.InsertToolInvocations(ctx, rows); err != nil {
		return fmt.Errorf("BigQuery.Record: %w", err)
	}
	return nil
}

func (b *BigQuery) Recent(ctx context.Context, tenant identity.TenantID, limit int) ([]Record, error) {
	rows, err := b.repo.ListRecentToolInvocations(ctx, tenant.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("BigQuery.Recent: %w", err)
	}
	out := make([]Record, len(rows))
	for i, row := range rows {
		out[i] = fromRow(row)
	}
	return out, nil
}

func toRow(r Record) *bq.ToolInvocationRow {
	return &bq.ToolInvocationRow{
		InvocationID:   r.ID,
		Tenant:         r.Tenant.String(),
		ConversationID: r.ConversationID,
		ToolName:       r.Tool,
		ToolKind:       r.Kind,
		Input:          bigquery.NullString{StringVal: r.Input, Valid: r.Input != ""},
		Output:         bigquery.NullString{StringVal: r.Output, Valid: r.Output != ""},
		Failed:         r.Failed,
		Direct:         r.Direct,
		DurationMS:     r.Duration.Milliseconds(),
		CreatedTS:      bigquery.NullTimestamp{Timestamp: r.CreatedAt, Valid: !r.CreatedAt.IsZero()},
	}
}

func fromRow(row *bq.ToolInvocationRow) Record {
	return Record{
		ID:             row.InvocationID,
		Tenant:         identity.TenantID(row.Tenant),
		ConversationID: row.ConversationID,
		Tool:           row.ToolName,
		Kind:           row.ToolKind,
		Input:          row.Input.StringVal,
		Output:         row.Output.StringVal,
		Failed:         row.Failed,
		Direct:         row.Direct,
		Duration:       time.Duration(row.DurationMS) * time.Millisecond,
		CreatedAt:      row.CreatedTS.Timestamp,
	}
}
