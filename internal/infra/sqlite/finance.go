package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/dvloznov/finance-assistant/internal/identity"
	"github.com/rs/zerolog"
)

// Seeder produces the rows used to populate an empty store.
type Seeder interface {
	Users() []domain.User
	Transactions(users []domain.User) []domain.Transaction
	Holdings(users []domain.User) []domain.Holding
}

// TableCounts reports row counts of the finance tables.
type TableCounts struct {
	Users        int `json:"users"`
	Transactions int `json:"transactions"`
	Portfolio    int `json:"portfolio"`
}

// SeedReport lists how many rows each table received; zero means the table
// already held data and was left alone.
type SeedReport struct {
	Users        int `json:"users"`
	Transactions int `json:"transactions"`
	Holdings     int `json:"holdings"`
}

// FinanceStore owns users, transactions and portfolio.
type FinanceStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// OpenFinanceStore opens the structured store file and migrates it.
func OpenFinanceStore(ctx context.Context, path string, log zerolog.Logger) (*FinanceStore, error) {
	db, err := Open(ctx, path, SetFinance)
	if err != nil {
		return nil, err
	}
	return NewFinanceStore(db, log), nil
}

// NewFinanceStore wraps an already migrated database.
func NewFinanceStore(db *sql.DB, log zerolog.Logger) *FinanceStore {
	return &FinanceStore{db: db, log: log}
}

// DB exposes the handle for tooling such as cmd/migrate.
func (s *FinanceStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *FinanceStore) Close() error {
	return s.db.Close()
}

// Counts returns the number of rows in each finance table.
func (s *FinanceStore) Counts(ctx context.Context) (TableCounts, error) {
	var c TableCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM transactions),
			(SELECT COUNT(*) FROM portfolio)
	`).Scan(&c.Users, &c.Transactions, &c.Portfolio)
	if err != nil {
		return c, fmt.Errorf("Counts: %w", err)
	}
	return c, nil
}

// Seed fills each empty table from src inside one transaction. Tables that
// already hold rows are skipped, so running Seed again changes nothing.
func (s *FinanceStore) Seed(ctx context.Context, src Seeder) (SeedReport, error) {
	var report SeedReport

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return report, fmt.Errorf("Seed: begin: %w", err)
	}
	defer tx.Rollback()

	empty, err := tableEmpty(ctx, tx, "users")
	if err != nil {
		return report, fmt.Errorf("Seed: %w", err)
	}
	if empty {
		users := src.Users()
		if err := insertUsers(ctx, tx, users); err != nil {
			return report, fmt.Errorf("Seed: %w", err)
		}
		report.Users = len(users)
	}

	users, err := listUsers(ctx, tx)
	if err != nil {
		return report, fmt.Errorf("Seed: %w", err)
	}

	if empty, err = tableEmpty(ctx, tx, "transactions"); err != nil {
		return report, fmt.Errorf("Seed: %w", err)
	}
	if empty {
		txs := src.Transactions(users)
		if err := insertTransactions(ctx, tx, txs); err != nil {
			return report, fmt.Errorf("Seed: %w", err)
		}
		report.Transactions = len(txs)
	}

	if empty, err = tableEmpty(ctx, tx, "portfolio"); err != nil {
		return report, fmt.Errorf("Seed: %w", err)
	}
	if empty {
		holdings := src.Holdings(users)
		if err := insertHoldings(ctx, tx, holdings); err != nil {
			return report, fmt.Errorf("Seed: %w", err)
		}
		report.Holdings = len(holdings)
	}

	if err := tx.Commit(); err != nil {
		return report, fmt.Errorf("Seed: commit: %w", err)
	}

	s.log.Info().
		Int("users", report.Users).
		Int("transactions", report.Transactions).
		Int("holdings", report.Holdings).
		Msg("Seed completed")

	return report, nil
}

// InsertUser adds one user.
func (s *FinanceStore) InsertUser(ctx context.Context, u domain.User) error {
	return s.inTx(ctx, "InsertUser", func(tx *sql.Tx) error {
		return insertUsers(ctx, tx, []domain.User{u})
	})
}

// InsertTransactions adds transactions in one transaction.
func (s *FinanceStore) InsertTransactions(ctx context.Context, txs []domain.Transaction) error {
	return s.inTx(ctx, "InsertTransactions", func(tx *sql.Tx) error {
		return insertTransactions(ctx, tx, txs)
	})
}

// InsertHoldings adds portfolio rows in one transaction.
func (s *FinanceStore) InsertHoldings(ctx context.Context, holdings []domain.Holding) error {
	return s.inTx(ctx, "InsertHoldings", func(tx *sql.Tx) error {
		return insertHoldings(ctx, tx, holdings)
	})
}

func (s *FinanceStore) inTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func tableEmpty(ctx context.Context, q querier, table string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return false, fmt.Errorf("count %s: %w", table, err)
	}
	return n == 0, nil
}

func listUsers(ctx context.Context, q querier) ([]domain.User, error) {
	rows, err := q.QueryContext(ctx, `SELECT email_id, name, join_date FROM users ORDER BY email_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		var email string
		if err := rows.Scan(&email, &u.Name, &u.JoinDate); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Email = identity.TenantID(email)
		users = append(users, u)
	}
	return users, rows.Err()
}

func insertUsers(ctx context.Context, tx *sql.Tx, users []domain.User) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO users (email_id, name, join_date) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare users: %w", err)
	}
	defer stmt.Close()

	for _, u := range users {
		if _, err := stmt.ExecContext(ctx, string(u.Email), u.Name, u.JoinDate); err != nil {
			return fmt.Errorf("insert user %s: %w", u.Email, err)
		}
	}
	return nil
}

func insertTransactions(ctx context.Context, tx *sql.Tx, txs []domain.Transaction) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (email_id, date, amount, category, description)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare transactions: %w", err)
	}
	defer stmt.Close()

	for _, t := range txs {
		if _, err := stmt.ExecContext(ctx, string(t.Email), t.Date, t.Amount, t.Category, t.Description); err != nil {
			return fmt.Errorf("insert transaction for %s: %w", t.Email, err)
		}
	}
	return nil
}

func insertHoldings(ctx context.Context, tx *sql.Tx, holdings []domain.Holding) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO portfolio (email_id, symbol, shares, purchase_price, purchase_date)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare portfolio: %w", err)
	}
	defer stmt.Close()

	for _, h := range holdings {
		if _, err := stmt.ExecContext(ctx, string(h.Email), h.Symbol, h.Shares, h.PurchasePrice, h.PurchaseDate); err != nil {
			return fmt.Errorf("insert holding %s for %s: %w", h.Symbol, h.Email, err)
		}
	}
	return nil
}
