package tools

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/dvloznov/finance-assistant/internal/identity"
	"github.com/dvloznov/finance-assistant/internal/infra/sqlite"
	"github.com/dvloznov/finance-assistant/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openFinance(t *testing.T) *sqlite.FinanceStore {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.OpenFinanceStore(ctx, filepath.Join(t.TempDir(), "finance_data.db"), logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.InsertUser(ctx, domain.User{Email: "a@x.com", Name: "A", JoinDate: "2024-01-01"}))
	require.NoError(t, store.InsertUser(ctx, domain.User{Email: "b@x.com", Name: "B", JoinDate: "2024-01-01"}))
	require.NoError(t, store.InsertTransactions(ctx, []domain.Transaction{
		{Email: "a@x.com", Date: "2024-05-01", Amount: -50.00, Category: domain.CategoryFood, Description: "Lunch"},
		{Email: "b@x.com", Date: "2024-05-01", Amount: -75.25, Category: domain.CategoryFood, Description: "Restaurant"},
	}))
	return store
}

func TestSQLQueryTool_ScopesToTenant(t *testing.T) {
	tool := SQLQueryTool(openFinance(t), true)
	call := Call{Tenant: identity.MustParse("a@x.com")}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "filtered",
			input: "SELECT description, amount FROM transactions WHERE email_id = 'a@x.com'",
			want:  "description\tamount\nLunch\t-50",
		},
		{
			name:  "filter omitted",
			input: "SELECT description FROM transactions",
			want:  "description\nLunch",
		},
		{
			name:  "other tenant named",
			input: "SELECT description FROM transactions WHERE email_id = 'b@x.com'",
			want:  "description\n(no rows)",
		},
		{
			name:  "fenced",
			input: "```sql\nSELECT COUNT(*) AS n FROM users\n```",
			want:  "n\n1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call.Input = tt.input
			out, err := tool.Execute(context.Background(), call)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestSQLQueryTool_UnscopedStillReadOnly(t *testing.T) {
	tool := SQLQueryTool(openFinance(t), false)

	out, err := tool.Execute(context.Background(), Call{Input: "SELECT COUNT(*) AS n FROM transactions"})
	require.NoError(t, err)
	assert.Equal(t, "n\n2", out, "without scope enforcement only the prompt protects other tenants")

	_, err = tool.Execute(context.Background(), Call{Input: "DELETE FROM transactions"})
	assert.ErrorIs(t, err, sqlite.ErrUnsafeQuery)
}

func TestSQLSchemaAndListTables(t *testing.T) {
	out, err := SQLListTablesTool().Execute(context.Background(), Call{})
	require.NoError(t, err)
	assert.Equal(t, "portfolio, transactions, users", out)

	out, err = SQLSchemaTool().Execute(context.Background(), Call{})
	require.NoError(t, err)
	assert.Contains(t, out, "portfolio: Investment holdings (id, email_id, symbol, shares, purchase_price, purchase_date)")
}
