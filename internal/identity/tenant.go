// Package identity holds the tenant identifier that scopes every data access.
//
// A TenantID is an email address supplied by the user. It is not
// authenticated: anyone who types an address acts as that tenant.
package identity

import (
	"errors"
	"strings"
)

// ErrInvalidEmail is returned when an address fails the basic shape check.
var ErrInvalidEmail = errors.New("please enter a valid email address")

// Anonymous keys knowledge retrieval when no tenant is known.
const Anonymous TenantID = "anonymous"

// TenantID identifies the user whose rows a turn may read.
type TenantID string

// Parse normalizes an email and accepts it when it contains both "@" and ".".
func Parse(email string) (TenantID, error) {
	e := strings.ToLower(strings.TrimSpace(email))
	if e == "" || !strings.Contains(e, "@") || !strings.Contains(e, ".") {
		return "", ErrInvalidEmail
	}
	if strings.ContainsAny(e, " \t\r\n") {
		return "", ErrInvalidEmail
	}
	return TenantID(e), nil
}

// MustParse is Parse for literals in tests and seed data.
func MustParse(email string) TenantID {
	t, err := Parse(email)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TenantID) String() string { return string(t) }

// IsZero reports whether the tenant is unset.
func (t TenantID) IsZero() bool { return t == "" }

// SQLLiteral renders the tenant as a single-quoted SQL string literal.
func (t TenantID) SQLLiteral() string {
	return "'" + strings.ReplaceAll(string(t), "'", "''") + "'"
}
