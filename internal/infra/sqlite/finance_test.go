package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/dvloznov/finance-assistant/internal/identity"
	"github.com/dvloznov/finance-assistant/internal/logger"
	"github.com/dvloznov/finance-assistant/internal/seed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *FinanceStore {
	t.Helper()
	store, err := OpenFinanceStore(context.Background(), filepath.Join(t.TempDir(), "finance_data.db"), logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestFinanceStore_SeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	gen := seed.New(42, time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC))

	first, err := store.Seed(ctx, gen)
	require.NoError(t, err)
	assert.Equal(t, len(seed.Roster), first.Users)
	assert.Positive(t, first.Transactions)
	assert.Positive(t, first.Holdings)

	before, err := store.Counts(ctx)
	require.NoError(t, err)

	second, err := store.Seed(ctx, gen)
	require.NoError(t, err)
	assert.Equal(t, SeedReport{}, second)

	after, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestFinanceStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "finance_data.db")

	store, err := OpenFinanceStore(ctx, path, logger.Nop())
	require.NoError(t, err)
	_, err = store.Seed(ctx, seed.New(1, time.Now()))
	require.NoError(t, err)
	want, err := store.Counts(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := OpenFinanceStore(ctx, path, logger.Nop())
	require.NoError(t, err)
	defer reopened.Close()

	report, err := reopened.Seed(ctx, seed.New(2, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, SeedReport{}, report)

	got, err := reopened.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFinanceStore_SeedsOnlyEmptyTables(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.InsertUser(ctx, domain.User{Email: "a@x.com", Name: "A", JoinDate: "2024-01-01"}))

	report, err := store.Seed(ctx, seed.New(42, time.Now()))
	require.NoError(t, err)
	assert.Zero(t, report.Users, "users table was not empty")
	assert.Positive(t, report.Transactions)

	table, err := store.QueryScoped(ctx, "a@x.com", "SELECT COUNT(*) FROM transactions")
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.NotEqual(t, "0", table.Rows[0][0], "transactions are generated for existing users")
}

func TestQueryScoped_IsolatesEveryUserPair(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	_, err := store.Seed(ctx, seed.New(42, time.Now()))
	require.NoError(t, err)

	queries := []string{
		"SELECT DISTINCT email_id FROM transactions",
		"SELECT email_id FROM portfolio",
		"SELECT email_id FROM users",
		"SELECT t.email_id FROM transactions t JOIN users u ON u.email_id = t.email_id",
		"WITH x AS (SELECT * FROM transactions) SELECT email_id FROM x",
		// filter naming another tenant still returns nothing foreign
		"SELECT email_id FROM transactions WHERE email_id = 'rishik@gmail.com'",
	}

	for _, a := range seed.Roster {
		for _, b := range seed.Roster {
			if a.Email == b.Email {
				continue
			}
			for _, q := range queries {
				table, err := store.QueryScoped(ctx, a.Email, q)
				require.NoError(t, err, q)
				for _, row := range table.Rows {
					assert.NotEqual(t, string(b.Email), row[0], "tenant %s saw %s via %q", a.Email, b.Email, q)
					assert.Equal(t, string(a.Email), row[0])
				}
			}
		}
	}
}

func TestQueryScoped_FoodSpending(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.InsertUser(ctx, domain.User{Email: "a@x.com", Name: "A", JoinDate: "2024-01-01"}))
	require.NoError(t, store.InsertUser(ctx, domain.User{Email: "b@x.com", Name: "B", JoinDate: "2024-01-01"}))
	require.NoError(t, store.InsertTransactions(ctx, []domain.Transaction{
		{Email: "a@x.com", Date: "2024-05-01", Amount: -50.00, Category: domain.CategoryFood, Description: "Lunch"},
		{Email: "b@x.com", Date: "2024-05-01", Amount: -75.25, Category: domain.CategoryFood, Description: "Restaurant"},
	}))

	table, err := store.QueryScoped(ctx, "a@x.com",
		"SELECT printf('%.2f', SUM(amount)) AS total FROM transactions WHERE category = 'Food'")
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "-50.00", table.Rows[0][0])
	assert.Equal(t, "total\n-50.00", table.String())
}

func TestQueryScoped_ConnectionIsCleanedUp(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	_, err := store.Seed(ctx, seed.New(3, time.Now()))
	require.NoError(t, err)

	_, err = store.QueryScoped(ctx, "siva@gmail.com", "SELECT COUNT(*) FROM transactions")
	require.NoError(t, err)

	// Plain reads and writes on the pool see the full tables again.
	var distinct int
	require.NoError(t, store.DB().QueryRowContext(ctx, "SELECT COUNT(DISTINCT email_id) FROM transactions").Scan(&distinct))
	assert.Equal(t, len(seed.Roster), distinct)

	require.NoError(t, store.InsertTransactions(ctx, []domain.Transaction{
		{Email: "siva@gmail.com", Date: "2024-01-01", Amount: 1000, Category: domain.CategoryIncome, Description: "Bonus"},
	}))
}

func TestQueryScoped_RejectsUnsafe(t *testing.T) {
	store := openTestStore(t)
	tenant := identity.MustParse("siva@gmail.com")

	for _, q := range []string{
		"DELETE FROM transactions",
		"SELECT * FROM main.transactions",
		"SELECT 1; DROP TABLE users",
		"ATTACH DATABASE 'x.db' AS x",
	} {
		_, err := store.QueryScoped(context.Background(), tenant, q)
		assert.ErrorIs(t, err, ErrUnsafeQuery, q)
	}
}

func TestCheckReadOnly(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    string
		wantErr bool
	}{
		{name: "simple select", query: "SELECT * FROM users;", want: "SELECT * FROM users"},
		{name: "cte", query: "with t as (select 1) select * from t", want: "with t as (select 1) select * from t"},
		{name: "semicolon in literal", query: "SELECT ';' AS s", want: "SELECT ';' AS s"},
		{name: "keyword in literal", query: "SELECT * FROM transactions WHERE description = 'pragma main.x'", want: "SELECT * FROM transactions WHERE description = 'pragma main.x'"},
		{name: "update", query: "UPDATE users SET name = 'x'", wantErr: true},
		{name: "stacked", query: "SELECT 1; SELECT 2", wantErr: true},
		{name: "main qualifier", query: "SELECT * FROM main . users", wantErr: true},
		{name: "quoted main qualifier", query: `SELECT * FROM "main".users`, wantErr: true},
		{name: "temp qualifier", query: "SELECT * FROM temp.users", wantErr: true},
		{name: "load_extension", query: "SELECT load_extension('evil')", wantErr: true},
		{name: "pragma", query: "PRAGMA table_info(users)", wantErr: true},
		{name: "comment hides nothing", query: "SELECT 1 -- ; DROP TABLE users", want: "SELECT 1 -- ; DROP TABLE users"},
		{name: "empty", query: " ; ", wantErr: true},
		{name: "unterminated", query: "SELECT 'oops", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CheckReadOnly(tt.query)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsafeQuery)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTable_String(t *testing.T) {
	empty := &Table{Columns: []string{"symbol", "shares"}}
	assert.Equal(t, "symbol\tshares\n(no rows)", empty.String())

	truncated := &Table{Columns: []string{"n"}, Rows: [][]string{{"1"}}, Truncated: 4}
	assert.True(t, strings.HasSuffix(truncated.String(), "... (4 more rows)"))
}

func TestMigrate_RecordsChecksums(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	applied, err := AppliedMigrations(ctx, store.DB(), SetFinance)
	require.NoError(t, err)

	files, err := ReadMigrations(SetFinance)
	require.NoError(t, err)
	require.Len(t, applied, len(files))
	for i, m := range files {
		assert.Equal(t, m.Version, applied[i].Version)
		assert.Equal(t, m.Checksum, applied[i].Checksum)
	}

	ran, err := Migrate(ctx, store.DB(), SetFinance, "test")
	require.NoError(t, err)
	assert.Empty(t, ran)
}

func TestMigrationFilenamePattern(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
	}{
		{"0001_finance_schema.sql", true},
		{"001_invalid.sql", false},
		{"0001_test", false},
		{"0001.sql", false},
		{"invalid_0001_test.sql", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.valid, migrationPattern.MatchString(tt.filename))
		})
	}
}
