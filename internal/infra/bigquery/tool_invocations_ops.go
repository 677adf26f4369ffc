package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

const toolInvocationsTable = "tool_invocations"

// InsertToolInvocationsWithClient writes rows into <dataset>.tool_invocations.
// Uses DML INSERT to avoid streaming buffer issues.
func InsertToolInvocationsWithClient(ctx context.Context, client *bigquery.Client, dataset string, rows []*ToolInvocationRow) error {
	for _, row := range rows {
		q := client.Query(fmt.Sprintf(`
			INSERT INTO `+"`%s.%s.%s`"+` (
				invocation_id, tenant, conversation_id,
				tool_name, tool_kind, input, output,
				failed, direct, duration_ms, created_ts
			)
			VALUES (
				@invocation_id, @tenant, @conversation_id,
				@tool_name, @tool_kind, @input, @output,
				@failed, @direct, @duration_ms, @created_ts
			)
		`, client.Project(), dataset, toolInvocationsTable))

		q.Parameters = []bigquery.QueryParameter{
			{Name: "invocation_id", Value: row.InvocationID},
			{Name: "tenant", Value: row.Tenant},
			{Name: "conversation_id", Value: row.ConversationID},
			{Name: "tool_name", Value: row.ToolName},
			{Name: "tool_kind", Value: row.ToolKind},
			{Name: "input", Value: row.Input},
			{Name: "output", Value: row.Output},
			{Name: "failed", Value: row.Failed},
			{Name: "direct", Value: row.Direct},
			{Name: "duration_ms", Value: row.DurationMS},
			{Name: "created_ts", Value: row.CreatedTS},
		}

		job, err := q.Run(ctx)
		if err != nil {
			return fmt.Errorf("InsertToolInvocations: running insert query: %w", err)
		}

		status, err := job.Wait(ctx)
		if err != nil {
			return fmt.Errorf("InsertToolInvocations: waiting for job: %w", err)
		}
		if err := status.Err(); err != nil {
			return fmt.Errorf("InsertToolInvocations: job error: %w", err)
		}
	}
	return nil
}

// ListRecentToolInvocationsWithClient returns the newest invocations of a
// tenant, newest first.
func ListRecentToolInvocationsWithClient(ctx context.Context, client *bigquery.Client, dataset, tenant string, limit int) ([]*ToolInvocationRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			invocation_id,
			tenant,
			conversation_id,
			tool_name,
			tool_kind,
			input,
			output,
			failed,
			direct,
			duration_ms,
			created_ts
		FROM `+"`%s.%s.%s`"+`
		WHERE tenant = @tenant
		ORDER BY created_ts DESC
		LIMIT @limit
	`, client.Project(), dataset, toolInvocationsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "tenant", Value: tenant},
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRecentToolInvocations: reading query: %w", err)
	}

	var rows []*ToolInvocationRow
	for {
		var row ToolInvocationRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRecentToolInvocations: iterating: %w", err)
		}
		rows = append(rows, &row)
	}

	return rows, nil
}
