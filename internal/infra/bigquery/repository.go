// Package bigquery stores tool-invocation traces in BigQuery.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// DefaultDataset is used when no dataset is configured.
const DefaultDataset = "finance_assistant"

// TraceRepository holds a shared BigQuery client for the trace table.
type TraceRepository struct {
	client  *bigquery.Client
	dataset string
}

// NewTraceRepository creates a repository with a shared BigQuery client.
func NewTraceRepository(ctx context.Context, project, dataset string) (*TraceRepository, error) {
	if project == "" {
		return nil, fmt.Errorf("NewTraceRepository: project is required")
	}
	if dataset == "" {
		dataset = DefaultDataset
	}

	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("NewTraceRepository: creating client: %w", err)
	}
	return &TraceRepository{client: client, dataset: dataset}, nil
}

// Close closes the BigQuery client connection.
func (r *TraceRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// InsertToolInvocations delegates to InsertToolInvocationsWithClient with the shared client.
func (r *TraceRepository) InsertToolInvocations(ctx context.Context, rows []*ToolInvocationRow) error {
	return InsertToolInvocationsWithClient(ctx, r.client, r.dataset, rows)
}

// ListRecentToolInvocations delegates to ListRecentToolInvocationsWithClient with the shared client.
func (r *TraceRepository) ListRecentToolInvocations(ctx context.Context, tenant string, limit int) ([]*ToolInvocationRow, error) {
	return ListRecentToolInvocationsWithClient(ctx, r.client, r.dataset, tenant, limit)
}
