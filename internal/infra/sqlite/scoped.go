package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/finance-assistant/internal/identity"
)

// MaxResultRows caps how many rows a query tool result renders.
const MaxResultRows = 200

// tenantTables are shadowed by per-tenant views during scoped queries.
var tenantTables = []string{"users", "transactions", "portfolio"}

// TableNames lists the finance tables.
func TableNames() []string {
	return []string{"portfolio", "transactions", "users"}
}

// SchemaDescription documents the finance tables for the model.
const SchemaDescription = `Finance database tables:
- users: User account information (email_id, name, join_date)
- transactions: Financial transaction records (id, email_id, date, amount, category, description)
- portfolio: Investment holdings (id, email_id, symbol, shares, purchase_price, purchase_date)

CREATE TABLE users (email_id TEXT PRIMARY KEY, name TEXT, join_date TEXT)
CREATE TABLE transactions (id INTEGER PRIMARY KEY, email_id TEXT, date TEXT, amount REAL, category TEXT, description TEXT)
CREATE TABLE portfolio (id INTEGER PRIMARY KEY, email_id TEXT, symbol TEXT, shares REAL, purchase_price REAL, purchase_date TEXT)

Dates are 'YYYY-MM-DD' text. Income amounts are positive, expenses are negative.
Categories: Income, Food, Utilities, Transportation, Housing, Entertainment, Healthcare, Shopping, Education.`

// Table is a rendered query result.
type Table struct {
	Columns   []string
	Rows      [][]string
	Truncated int
}

// String renders the table as tab-separated text with a header row.
func (t *Table) String() string {
	var b strings.Builder
	b.WriteString(strings.Join(t.Columns, "\t"))
	if len(t.Rows) == 0 {
		b.WriteString("\n(no rows)")
		return b.String()
	}
	for _, row := range t.Rows {
		b.WriteByte('\n')
		b.WriteString(strings.Join(row, "\t"))
	}
	if t.Truncated > 0 {
		fmt.Fprintf(&b, "\n... (%d more rows)", t.Truncated)
	}
	return b.String()
}

// QueryScoped runs a read-only statement on behalf of tenant. On a dedicated
// connection the finance tables are shadowed by temporary views restricted
// to the tenant's rows and the connection is switched to query_only, so the
// statement sees no other tenant's data even when it omits the email filter.
func (s *FinanceStore) QueryScoped(ctx context.Context, tenant identity.TenantID, query string) (*Table, error) {
	if tenant.IsZero() {
		return nil, fmt.Errorf("QueryScoped: tenant is required")
	}
	stmt, err := CheckReadOnly(query)
	if err != nil {
		return nil, err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryScoped: acquire connection: %w", err)
	}
	defer conn.Close()

	if err := installTenantViews(ctx, conn, tenant); err != nil {
		discard(conn)
		return nil, fmt.Errorf("QueryScoped: %w", err)
	}
	defer func() {
		if err := dropTenantViews(conn); err != nil {
			s.log.Warn().Err(err).Msg("Dropping tenant views failed; discarding connection")
			discard(conn)
		}
	}()

	rows, err := conn.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("QueryScoped: %w", err)
	}
	defer rows.Close()

	table, err := scanTable(rows)
	if err != nil {
		return nil, fmt.Errorf("QueryScoped: %w", err)
	}
	return table, nil
}

// Query runs a read-only statement without tenant views. Used when scope
// enforcement is disabled by configuration.
func (s *FinanceStore) Query(ctx context.Context, query string) (*Table, error) {
	stmt, err := CheckReadOnly(query)
	if err != nil {
		return nil, err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("Query: acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		return nil, fmt.Errorf("Query: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.Background(), "PRAGMA query_only = OFF"); err != nil {
			discard(conn)
		}
	}()

	rows, err := conn.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("Query: %w", err)
	}
	defer rows.Close()

	return scanTable(rows)
}

func installTenantViews(ctx context.Context, conn *sql.Conn, tenant identity.TenantID) error {
	lit := tenant.SQLLiteral()
	for _, t := range tenantTables {
		if _, err := conn.ExecContext(ctx, "DROP VIEW IF EXISTS temp."+t); err != nil {
			return fmt.Errorf("drop stale view %s: %w", t, err)
		}
		ddl := fmt.Sprintf("CREATE TEMP VIEW %s AS SELECT * FROM main.%s WHERE email_id = %s", t, t, lit)
		if _, err := conn.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create view %s: %w", t, err)
		}
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		return fmt.Errorf("enable query_only: %w", err)
	}
	return nil
}

func dropTenantViews(conn *sql.Conn) error {
	ctx := context.Background()
	if _, err := conn.ExecContext(ctx, "PRAGMA query_only = OFF"); err != nil {
		return err
	}
	for _, t := range tenantTables {
		if _, err := conn.ExecContext(ctx, "DROP VIEW IF EXISTS temp."+t); err != nil {
			return err
		}
	}
	return nil
}

// discard marks the connection unusable so the pool closes it.
func discard(conn *sql.Conn) {
	_ = conn.Raw(func(any) error { return driver.ErrBadConn })
}

func scanTable(rows *sql.Rows) (*Table, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	table := &Table{Columns: cols}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	for rows.Next() {
		if len(table.Rows) >= MaxResultRows {
			table.Truncated++
			continue
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make([]string, len(cols))
		for i, v := range vals {
			row[i] = formatValue(v)
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return table, nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
