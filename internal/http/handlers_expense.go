package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"spendtrack/internal/core"
	applog "spendtrack/internal/log"
)

// expenseID parses the {id} path segment. A non-numeric id cannot match
// any record, so it reports the same not-found as a missing row.
func expenseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())

	list, err := s.expenses.List(r.Context(), userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "List expenses failed", applog.FieldError, err, applog.FieldUserID, userID)
		FromError(err).Write(w)
		return
	}

	NewResponse().JSON(list).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())

	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequestError("malformed request body").Write(w)
		return
	}
	date, err := req.date()
	if err != nil {
		BadRequestError("invalid date").Write(w)
		return
	}

	created, err := s.expenses.Create(r.Context(), userID, req.title(), req.amount(), req.category(), date)
	if err != nil {
		FromError(err).Write(w)
		return
	}

	NewResponse().JSON(created).Write(w)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())

	id, ok := expenseID(r)
	if !ok {
		NotFoundError(core.ErrNotFound.Error()).Write(w)
		return
	}

	e, err := s.expenses.GetByID(r.Context(), id, userID)
	if err != nil {
		FromError(err).Write(w)
		return
	}

	NewResponse().JSON(e).Write(w)
}

func (s *Server) handleReplaceExpense(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())

	id, ok := expenseID(r)
	if !ok {
		NotFoundError(core.ErrNotFound.Error()).Write(w)
		return
	}

	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequestError("malformed request body").Write(w)
		return
	}
	date, err := req.date()
	if err != nil {
		BadRequestError("invalid date").Write(w)
		return
	}

	updated, err := s.expenses.Update(r.Context(), id, userID, req.title(), req.amount(), req.category(), date)
	if err != nil {
		FromError(err).Write(w)
		return
	}

	NewResponse().JSON(updated).Write(w)
}

// handlePatchExpense applies a partial update. The body is a free-form
// object; field matching and coercion live in the core package.
func (s *Server) handlePatchExpense(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())

	id, ok := expenseID(r)
	if !ok {
		NotFoundError(core.ErrNotFound.Error()).Write(w)
		return
	}

	updates := make(map[string]any)
	if err := decodeJSON(r, &updates); err != nil {
		BadRequestError("malformed request body").Write(w)
		return
	}

	patched, err := s.expenses.Patch(r.Context(), id, userID, updates)
	if err != nil {
		FromError(err).Write(w)
		return
	}

	NewResponse().JSON(patched).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())

	id, ok := expenseID(r)
	if !ok {
		NotFoundError(core.ErrNotFound.Error()).Write(w)
		return
	}

	if err := s.expenses.Delete(r.Context(), id, userID); err != nil {
		FromError(err).Write(w)
		return
	}

	NewResponse().JSON(map[string]string{"message": "expense deleted"}).Write(w)
}

func (s *Server) handleFilterExpenses(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())

	params, err := parseFilterParams(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	list, err := s.expenses.Filter(r.Context(), userID, params.Category, params.Start, params.End)
	if err != nil {
		slog.ErrorContext(r.Context(), "Filter expenses failed", applog.FieldError, err, applog.FieldUserID, userID)
		FromError(err).Write(w)
		return
	}

	NewResponse().JSON(list).Write(w)
}

func (s *Server) handleExpenseSummary(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())

	summary, err := s.expenses.Summary(r.Context(), userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Expense summary failed", applog.FieldError, err, applog.FieldUserID, userID)
		FromError(err).Write(w)
		return
	}

	NewResponse().JSON(summary).Write(w)
}
