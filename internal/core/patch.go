package core

import (
	"strconv"
	"strings"
)

// patchField enumerates the recognized patchable fields. Keeping the set
// closed means every new field must be handled in ApplyPatch explicitly.
type patchField int

const (
	fieldUnknown patchField = iota
	fieldTitle
	fieldAmount
	fieldCategory
	fieldDate
)

// matchField resolves a caller-supplied field name case-insensitively.
func matchField(name string) patchField {
	switch strings.ToLower(name) {
	case "title":
		return fieldTitle
	case "amount":
		return fieldAmount
	case "category":
		return fieldCategory
	case "date":
		return fieldDate
	default:
		return fieldUnknown
	}
}

// ApplyPatch merges a best-effort partial update into e, which callers pass
// as an in-memory copy of the stored record so nothing persists on failure.
//
// The contract is deliberately permissive: unknown field names are ignored,
// and an unparseable amount or date is a no-op for that field rather than an
// error. The one hard failure is a parseable amount <= 0, which aborts the
// whole patch with ErrInvalidAmount. Title and category are assigned
// verbatim, so a patch may set an empty title even though create and update
// reject one; that asymmetry is intentional, callers wanting the stricter
// contract should use a full update.
func ApplyPatch(e *Expense, updates map[string]any) error {
	for name, value := range updates {
		switch matchField(name) {
		case fieldTitle:
			e.Title = coerceString(value)
		case fieldAmount:
			cents, err := ParseDecimalToCents(coerceString(value))
			if err != nil {
				continue
			}
			amount := Money{Cents: cents}
			if err := amount.Validate(); err != nil {
				return err
			}
			e.Amount = amount
		case fieldCategory:
			category := coerceString(value)
			e.Category = &category
		case fieldDate:
			date, err := ParseDate(coerceString(value))
			if err != nil {
				continue
			}
			e.Date = date
		}
	}
	return nil
}

// coerceString renders a decoded JSON value as text the way the original
// field values arrive: strings pass through, numbers and booleans are
// formatted, anything structured becomes empty.
func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
