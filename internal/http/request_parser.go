// Package http provides the HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request
// data: JSON body decoding with a size cap, expense payload normalization
// and filter query extraction.

package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"spendtrack/internal/core"
)

// maxBodyBytes caps request bodies well above any legitimate payload.
const maxBodyBytes = 1 << 20

var errMalformedBody = errors.New("malformed request body")

// decodeJSON reads the request body into dst, rejecting oversized and
// malformed payloads with a uniform error.
func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errMalformedBody
	}
	if len(body) == 0 {
		return errMalformedBody
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errMalformedBody
	}
	return nil
}

// expenseRequest is the create/replace payload. Amount accepts a JSON
// number or a decimal string; Date accepts RFC3339, a bare datetime or a
// plain YYYY-MM-DD and defaults to now when omitted.
type expenseRequest struct {
	Title    string  `json:"title"`
	Amount   *amount `json:"amount"`
	Category *string `json:"category"`
	Date     string  `json:"date"`
}

// amount wraps core.Money so an absent field is distinguishable from zero.
type amount struct {
	core.Money
}

func (r *expenseRequest) title() string {
	return sanitizeInput(r.Title)
}

func (r *expenseRequest) amount() core.Money {
	if r.Amount == nil {
		return core.Money{}
	}
	return r.Amount.Money
}

func (r *expenseRequest) category() *string {
	if r.Category == nil {
		return nil
	}
	c := sanitizeInput(*r.Category)
	if c == "" {
		return nil
	}
	return &c
}

func (r *expenseRequest) date() (time.Time, error) {
	if strings.TrimSpace(r.Date) == "" {
		return time.Time{}, nil
	}
	return core.ParseDate(strings.TrimSpace(r.Date))
}

// registerRequest is the account creation payload.
type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginRequest is the credential exchange payload.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// filterParams holds decoded /expenses/filter query constraints. A nil
// bound leaves that side of the date range open.
type filterParams struct {
	Category string
	Start    *time.Time
	End      *time.Time
}

var errBadFilterDate = errors.New("invalid date in filter")

// parseFilterParams extracts category/startDate/endDate constraints from
// the query string. Unparseable dates are a caller error, not a silent
// no-op: a filter that quietly ignores a bound would return the wrong rows.
func parseFilterParams(query url.Values) (filterParams, error) {
	p := filterParams{
		Category: strings.TrimSpace(query.Get("category")),
	}

	if v := strings.TrimSpace(query.Get("startDate")); v != "" {
		t, err := core.ParseDate(v)
		if err != nil {
			return filterParams{}, errBadFilterDate
		}
		p.Start = &t
	}
	if v := strings.TrimSpace(query.Get("endDate")); v != "" {
		t, err := core.ParseDate(v)
		if err != nil {
			return filterParams{}, errBadFilterDate
		}
		p.End = &t
	}

	return p, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
