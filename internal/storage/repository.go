// Package storage persists users and expenses in SQLite. It is the sole
// owner of persisted state; every read goes back to the database so callers
// always observe the latest committed rows.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"spendtrack/internal/core"
	applog "spendtrack/internal/log"

	sqlite3 "modernc.org/sqlite"
)

// timeLayout is the canonical column format for date and created_at. Values
// are normalized to UTC with second precision so lexicographic comparison in
// SQL matches chronological order.
const timeLayout = time.RFC3339

// sqliteConstraintUnique is SQLITE_CONSTRAINT_UNIQUE (2067).
const sqliteConstraintUnique = 2067

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// SQLite serializes writers anyway; one pooled connection avoids
	// SQLITE_BUSY under concurrent requests and keeps :memory: databases
	// on a single handle.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Ping reports whether the database still answers. The readiness probe
// calls it on every check.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var serr *sqlite3.Error
	return errors.As(err, &serr) && serr.Code() == sqliteConstraintUnique
}

func encodeTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(timeLayout)
}

func decodeTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// CreateUser stores a new account. A duplicate email, raced or not, surfaces
// as core.ErrEmailExists via the unique index on lower(email).
func (r *SQLiteRepository) CreateUser(ctx context.Context, name, email, passwordHash string) (*core.User, error) {
	createdAt := time.Now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (name, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		name, email, passwordHash, encodeTime(createdAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, core.ErrEmailExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("user insert id: %w", err)
	}

	slog.InfoContext(ctx, "User created", applog.FieldUserID, id, applog.FieldEmail, email)

	return &core.User{
		ID:           id,
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    createdAt.UTC().Truncate(time.Second),
	}, nil
}

// GetUserByEmail looks an account up case-insensitively. A missing account
// is (nil, nil), not an error; the identity service folds it into the
// generic credentials failure.
func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, created_at FROM users WHERE lower(email) = lower(?)`,
		email,
	)

	var (
		u         core.User
		createdAt string
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select user by email: %w", err)
	}

	t, err := decodeTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("decode user created_at: %w", err)
	}
	u.CreatedAt = t
	return &u, nil
}

const expenseColumns = `id, user_id, title, amount_cents, category, date`

func scanExpense(row interface{ Scan(...any) error }) (*core.Expense, error) {
	var (
		e        core.Expense
		category sql.NullString
		date     string
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.Title, &e.Amount.Cents, &category, &date); err != nil {
		return nil, err
	}
	if category.Valid {
		e.Category = &category.String
	}
	t, err := decodeTime(date)
	if err != nil {
		return nil, fmt.Errorf("decode expense date: %w", err)
	}
	e.Date = t
	return &e, nil
}

// CreateExpense inserts a new record and fills in the generated id.
func (r *SQLiteRepository) CreateExpense(ctx context.Context, e *core.Expense) error {
	var category any
	if e.Category != nil {
		category = *e.Category
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (user_id, title, amount_cents, category, date) VALUES (?, ?, ?, ?, ?)`,
		e.UserID, e.Title, e.Amount.Cents, category, encodeTime(e.Date),
	)
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("expense insert id: %w", err)
	}
	e.ID = id
	e.Date = e.Date.UTC().Truncate(time.Second)

	slog.InfoContext(ctx, "Expense saved",
		applog.FieldExpenseID, e.ID,
		applog.FieldUserID, e.UserID,
		applog.FieldAmountCents, e.Amount.Cents)

	return nil
}

// GetExpense is the ownership-scoped lookup every read and mutation goes
// through: the row must exist AND belong to userID, otherwise (nil, nil).
func (r *SQLiteRepository) GetExpense(ctx context.Context, id, userID int64) (*core.Expense, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	e, err := scanExpense(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select expense: %w", err)
	}
	return e, nil
}

// UpdateExpense replaces the mutable columns of an owned row. The WHERE
// clause repeats the ownership filter so a stale in-memory copy can never
// cross user boundaries.
func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e *core.Expense) error {
	var category any
	if e.Category != nil {
		category = *e.Category
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET title = ?, amount_cents = ?, category = ?, date = ? WHERE id = ? AND user_id = ?`,
		e.Title, e.Amount.Cents, category, encodeTime(e.Date), e.ID, e.UserID,
	)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	return nil
}

// DeleteExpense removes an owned row, reporting whether anything matched.
func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id, userID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM expenses WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("delete expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete expense rows affected: %w", err)
	}
	return n > 0, nil
}

// ListExpenses returns all of a user's expenses, newest date first, earlier
// insertions first among equal dates.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID int64) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE user_id = ? ORDER BY date DESC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	return collectExpenses(rows)
}

// FilterExpenses narrows a user's expenses by optional category (exact,
// case-insensitive) and an inclusive date range. Every constraint is ANDed;
// an absent constraint leaves that dimension unbounded.
func (r *SQLiteRepository) FilterExpenses(ctx context.Context, userID int64, category string, start, end *time.Time) ([]core.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE user_id = ?`
	args := []any{userID}

	if category != "" {
		query += ` AND category IS NOT NULL AND lower(category) = lower(?)`
		args = append(args, category)
	}
	if start != nil {
		query += ` AND date >= ?`
		args = append(args, encodeTime(*start))
	}
	if end != nil {
		query += ` AND date <= ?`
		args = append(args, encodeTime(*end))
	}
	query += ` ORDER BY date DESC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("filter expenses: %w", err)
	}
	defer rows.Close()

	return collectExpenses(rows)
}

func collectExpenses(rows *sql.Rows) ([]core.Expense, error) {
	expenses := make([]core.Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return expenses, nil
}

// CategoryTotals sums a user's spending per category. Uncategorized rows
// group under the empty string.
func (r *SQLiteRepository) CategoryTotals(ctx context.Context, userID int64) ([]core.CategoryTotal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT COALESCE(category, ''), SUM(amount_cents)
		 FROM expenses WHERE user_id = ?
		 GROUP BY COALESCE(category, '')
		 ORDER BY SUM(amount_cents) DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("category totals: %w", err)
	}
	defer rows.Close()

	totals := make([]core.CategoryTotal, 0)
	for rows.Next() {
		var ct core.CategoryTotal
		if err := rows.Scan(&ct.Category, &ct.Total.Cents); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		totals = append(totals, ct)
	}
	return totals, rows.Err()
}

// MonthlyTotals sums a user's spending per calendar month (YYYY-MM).
func (r *SQLiteRepository) MonthlyTotals(ctx context.Context, userID int64) ([]core.MonthTotal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT strftime('%Y-%m', date), SUM(amount_cents)
		 FROM expenses WHERE user_id = ?
		 GROUP BY strftime('%Y-%m', date)
		 ORDER BY strftime('%Y-%m', date)`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("monthly totals: %w", err)
	}
	defer rows.Close()

	totals := make([]core.MonthTotal, 0)
	for rows.Next() {
		var mt core.MonthTotal
		if err := rows.Scan(&mt.Month, &mt.Total.Cents); err != nil {
			return nil, fmt.Errorf("scan month total: %w", err)
		}
		totals = append(totals, mt)
	}
	return totals, rows.Err()
}
