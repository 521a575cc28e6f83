// Package core holds the expense domain model.
//
// Money is stored as integer cents to keep two-decimal currency arithmetic
// exact; parsing and JSON round-tripping live here so no other layer touches
// floating point for persistence.
package core

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
)

// Money is a currency amount in cents.
type Money struct {
	Cents int64
}

var errMalformedAmount = errors.New("malformed amount")

// ParseDecimalToCents converts a decimal string to cents with half-up
// rounding on the third fractional digit. Both dot and comma separators are
// accepted, and the value may be signed: sign and range checks are the
// caller's concern (see Money.Validate), parse errors here mean the input is
// not a number at all.
//
// Examples:
//
//	ParseDecimalToCents("12.34")  -> 1234, nil
//	ParseDecimalToCents("12,345") -> 1235, nil (rounds up)
//	ParseDecimalToCents("-5")     -> -500, nil
//	ParseDecimalToCents("abc")    -> 0, error
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errMalformedAmount
	}
	s = strings.ReplaceAll(s, ",", ".")

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" {
		return 0, errMalformedAmount
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, errMalformedAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" && fracPart == "" {
		return 0, errMalformedAmount
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, errMalformedAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return 0, errMalformedAmount
		}
	}

	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, errMalformedAmount
	}
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, errMalformedAmount
	}

	// First two fractional digits, half-up rounding on the third.
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}

	cents := iv*100 + fracCents
	if neg {
		cents = -cents
	}
	return cents, nil
}

// Validate enforces the amount > 0 invariant.
func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// String renders the amount with exactly two fractional digits.
func (m Money) String() string {
	cents := m.Cents
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return sign + strconv.FormatInt(cents/100, 10) + "." +
		strconv.FormatInt(cents%100/10, 10) + strconv.FormatInt(cents%10, 10)
}

// MarshalJSON emits the amount as a plain JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts either a JSON number or a numeric string.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	cents, err := ParseDecimalToCents(s)
	if err != nil {
		return err
	}
	m.Cents = cents
	return nil
}
