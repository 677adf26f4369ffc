package tools

import (
	"context"
	"strings"

	"github.com/dvloznov/finance-assistant/internal/identity"
	"github.com/dvloznov/finance-assistant/internal/infra/sqlite"
)

// Querier runs read-only SQL against the finance data.
type Querier interface {
	QueryScoped(ctx context.Context, tenant identity.TenantID, query string) (*sqlite.Table, error)
	Query(ctx context.Context, query string) (*sqlite.Table, error)
}

const sqlQueryDescription = `Execute SQL queries on the finance database to retrieve information about:
1. User details (from the 'users' table) - Access user profile information
2. Transaction history (from the 'transactions' table) - Get spending history, income, expenses by category
3. Investment portfolio (from the 'portfolio' table) - Access stock holdings, purchase history, and portfolio composition

When querying for personal data, always filter using the email_id column to ensure data privacy.
Example: SELECT * FROM transactions WHERE email_id = '<user_email>'

Use this for direct SQL database queries to analyze financial data or retrieve specific information.`

const sqlSchemaDescription = `Get schema information about the finance database tables:
- users: User account information (email_id, name, join_date)
- transactions: Financial transaction records (id, email_id, date, amount, category, description)
- portfolio: Investment holdings (id, email_id, symbol, shares, purchase_price, purchase_date)

Use this to understand database structure before querying.`

const sqlListTablesDescription = `List all tables in the finance database.
Use this when you need to check what tables are available for querying.`

// SQLQueryTool runs agent SQL. With enforceScope the statement only sees
// the calling tenant's rows.
func SQLQueryTool(q Querier, enforceScope bool) *Tool {
	return &Tool{
		Name:        "sql_db_query",
		Kind:        KindSQLQuery,
		Description: sqlQueryDescription,
		Params:      InputParam("A single read-only SQLite SELECT statement"),
		Execute: func(ctx context.Context, call Call) (string, error) {
			stmt := stripCodeFences(call.Input)
			if stmt == "" {
				return "", ErrEmptyInput
			}

			var (
				table *sqlite.Table
				err   error
			)
			if enforceScope {
				table, err = q.QueryScoped(ctx, call.Tenant, stmt)
			} else {
				table, err = q.Query(ctx, stmt)
			}
			if err != nil {
				return "", err
			}
			return table.String(), nil
		},
	}
}

// SQLSchemaTool documents the finance tables.
func SQLSchemaTool() *Tool {
	return &Tool{
		Name:        "sql_db_schema",
		Kind:        KindSQLSchema,
		Description: sqlSchemaDescription,
		Params:      []Param{{Name: "input", Description: "Comma-separated table names (optional)"}},
		Execute: func(context.Context, Call) (string, error) {
			return sqlite.SchemaDescription, nil
		},
	}
}

// SQLListTablesTool lists the finance tables.
func SQLListTablesTool() *Tool {
	return &Tool{
		Name:        "sql_db_list_tables",
		Kind:        KindSQLListTables,
		Description: sqlListTablesDescription,
		Params:      []Param{{Name: "input", Description: "Ignored; pass an empty string"}},
		Execute: func(context.Context, Call) (string, error) {
			return strings.Join(sqlite.TableNames(), ", "), nil
		},
	}
}
