// Package services implements the application operations on top of the
// SQLite store. ExpenseService is the ownership boundary: every operation
// takes the authenticated user id explicitly and scopes all reads and writes
// to it, so a caller can never observe or touch another user's records.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"spendtrack/internal/core"
	applog "spendtrack/internal/log"
	"spendtrack/internal/storage"
)

type ExpenseService struct {
	storage *storage.SQLiteRepository
}

func NewExpenseService(storage *storage.SQLiteRepository) *ExpenseService {
	return &ExpenseService{storage: storage}
}

// findOwned is the single scoped-lookup primitive behind every read and
// mutation. Absent and not-owned collapse into the same core.ErrNotFound,
// so responses never reveal whether another user's record exists.
func (s *ExpenseService) findOwned(ctx context.Context, id, userID int64) (*core.Expense, error) {
	e, err := s.storage.GetExpense(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("scoped lookup: %w", err)
	}
	if e == nil {
		return nil, core.ErrNotFound
	}
	return e, nil
}

// Create validates and persists a new expense for userID. A zero date means
// "now". The stored record, including its generated id, is returned.
func (s *ExpenseService) Create(ctx context.Context, userID int64, title string, amount core.Money, category *string, date time.Time) (*core.Expense, error) {
	if date.IsZero() {
		date = time.Now()
	}

	e := &core.Expense{
		UserID:   userID,
		Title:    title,
		Amount:   amount,
		Category: category,
		Date:     date,
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}

	if err := s.storage.CreateExpense(ctx, e); err != nil {
		return nil, fmt.Errorf("create expense: %w", err)
	}
	return e, nil
}

// List returns all of userID's expenses, most recent date first.
func (s *ExpenseService) List(ctx context.Context, userID int64) ([]core.Expense, error) {
	expenses, err := s.storage.ListExpenses(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return expenses, nil
}

// GetByID returns an owned expense or core.ErrNotFound.
func (s *ExpenseService) GetByID(ctx context.Context, id, userID int64) (*core.Expense, error) {
	return s.findOwned(ctx, id, userID)
}

// Update is a full replace of the mutable fields of an owned expense.
func (s *ExpenseService) Update(ctx context.Context, id, userID int64, title string, amount core.Money, category *string, date time.Time) (*core.Expense, error) {
	e, err := s.findOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	e.Title = title
	e.Amount = amount
	e.Category = category
	e.Date = date
	if err := e.Validate(); err != nil {
		return nil, err
	}

	if err := s.storage.UpdateExpense(ctx, e); err != nil {
		return nil, fmt.Errorf("update expense: %w", err)
	}
	return e, nil
}

// Patch applies a best-effort partial update (see core.ApplyPatch for the
// field semantics). The merge happens on an in-memory copy and is persisted
// in one write at the end, so an aborted patch leaves the stored record
// untouched.
func (s *ExpenseService) Patch(ctx context.Context, id, userID int64, updates map[string]any) (*core.Expense, error) {
	e, err := s.findOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	merged := *e
	if err := core.ApplyPatch(&merged, updates); err != nil {
		return nil, err
	}

	if err := s.storage.UpdateExpense(ctx, &merged); err != nil {
		return nil, fmt.Errorf("persist patch: %w", err)
	}

	slog.InfoContext(ctx, "Expense patched", applog.FieldExpenseID, id, applog.FieldUserID, userID, "fields", len(updates))
	return &merged, nil
}

// Delete permanently removes an owned expense.
func (s *ExpenseService) Delete(ctx context.Context, id, userID int64) error {
	deleted, err := s.storage.DeleteExpense(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if !deleted {
		return core.ErrNotFound
	}
	return nil
}

// Filter narrows userID's expenses by optional category and inclusive date
// bounds; missing parameters leave that dimension unconstrained.
func (s *ExpenseService) Filter(ctx context.Context, userID int64, category string, start, end *time.Time) ([]core.Expense, error) {
	expenses, err := s.storage.FilterExpenses(ctx, userID, category, start, end)
	if err != nil {
		return nil, fmt.Errorf("filter expenses: %w", err)
	}
	return expenses, nil
}

// Summary aggregates userID's spending per category and per month.
func (s *ExpenseService) Summary(ctx context.Context, userID int64) (*core.Summary, error) {
	byCategory, err := s.storage.CategoryTotals(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("summary categories: %w", err)
	}
	byMonth, err := s.storage.MonthlyTotals(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("summary months: %w", err)
	}
	return &core.Summary{ByCategory: byCategory, ByMonth: byMonth}, nil
}
