package core

import (
	"errors"
	"net/mail"
	"strings"
	"time"
)

const (
	MaxTitleLength    = 200
	MaxCategoryLength = 100
	MaxNameLength     = 100
	MaxEmailLength    = 150
	MinPasswordLength = 6
)

type (
	// Expense is a single spending record owned by exactly one user.
	// ID and UserID are immutable once assigned.
	Expense struct {
		ID       int64     `json:"id"`
		UserID   int64     `json:"userId"`
		Title    string    `json:"title"`
		Amount   Money     `json:"amount"`
		Category *string   `json:"category"`
		Date     time.Time `json:"date"`
	}

	// User is an account identity. PasswordHash never leaves the server.
	User struct {
		ID           int64     `json:"id"`
		Name         string    `json:"name"`
		Email        string    `json:"email"`
		PasswordHash string    `json:"-"`
		CreatedAt    time.Time `json:"createdAt"`
	}
)

var (
	// ErrNotFound covers both "no such expense" and "owned by someone
	// else"; callers must never be able to tell the two apart.
	ErrNotFound = errors.New("expense not found")

	ErrInvalidAmount      = errors.New("amount must be greater than 0")
	ErrEmptyTitle         = errors.New("empty title")
	ErrTitleTooLong       = errors.New("title too long")
	ErrCategoryTooLong    = errors.New("category too long")
	ErrEmailExists        = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmptyName          = errors.New("empty name")
	ErrNameTooLong        = errors.New("name too long")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrPasswordTooShort   = errors.New("password too short")
)

// Validate checks the full-record invariants enforced on create and update.
// Patch deliberately bypasses the title/category checks, see ApplyPatch.
func (e Expense) Validate() error {
	if len(strings.TrimSpace(e.Title)) == 0 {
		return ErrEmptyTitle
	}
	if len(e.Title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if e.Category != nil && len(*e.Category) > MaxCategoryLength {
		return ErrCategoryTooLong
	}
	return nil
}

// ValidateRegistration checks the registration input bounds before any
// account is created. The plaintext password is only ever length-checked.
func ValidateRegistration(name, email, password string) error {
	if len(strings.TrimSpace(name)) == 0 {
		return ErrEmptyName
	}
	if len(name) > MaxNameLength {
		return ErrNameTooLong
	}
	if email == "" || len(email) > MaxEmailLength {
		return ErrInvalidEmail
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// dateLayouts are accepted on input, most specific first.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDate parses a calendar date or timestamp from its string form.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("unrecognized date format: " + s)
}
