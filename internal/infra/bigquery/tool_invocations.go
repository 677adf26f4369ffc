package bigquery

import "cloud.google.com/go/bigquery"

// ToolInvocationRow is one row of <dataset>.tool_invocations.
type ToolInvocationRow struct {
	InvocationID   string `bigquery:"invocation_id"`   // REQUIRED
	Tenant         string `bigquery:"tenant"`          // REQUIRED
	ConversationID string `bigquery:"conversation_id"` // REQUIRED

	ToolName string              `bigquery:"tool_name"` // REQUIRED
	ToolKind string              `bigquery:"tool_kind"` // REQUIRED
	Input    bigquery.NullString `bigquery:"input"`     // NULLABLE
	Output   bigquery.NullString `bigquery:"output"`    // NULLABLE

	Failed     bool  `bigquery:"failed"`      // REQUIRED
	Direct     bool  `bigquery:"direct"`      // REQUIRED
	DurationMS int64 `bigquery:"duration_ms"` // REQUIRED

	CreatedTS bigquery.NullTimestamp `bigquery:"created_ts"` // REQUIRED
}
