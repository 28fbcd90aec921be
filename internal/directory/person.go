// Package directory provides the people directory backends the org chart reads from.
package directory

import (
	"context"
	"errors"
	"strings"
)

// SearchLimit caps the number of people a search returns.
const SearchLimit = 8

var (
	ErrNotFound = errors.New("person not found")
	ErrNoCaller = errors.New("current user unknown")
)

// Person is a directory user record. Optional fields are empty when the
// directory has no value for them.
type Person struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	JobTitle          string `json:"jobTitle,omitempty"`
	Department        string `json:"department,omitempty"`
	Mail              string `json:"mail,omitempty"`
	UserPrincipalName string `json:"userPrincipalName,omitempty"`
}

// Valid reports whether the record carries the two fields every chart node needs.
func (p Person) Valid() bool {
	return strings.TrimSpace(p.ID) != "" && p.DisplayName != ""
}

type callerKey struct{}

// WithCaller attaches the id (or principal name) of the person the request acts for.
func WithCaller(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, callerKey{}, id)
}

// CallerFrom returns the caller attached by WithCaller.
func CallerFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(callerKey{}).(string)
	return id, ok && id != ""
}

// EscapeQuotes doubles single quotes so a value can sit inside a quoted OData literal.
func EscapeQuotes(value string) string {
	return strings.ReplaceAll(value, "'", "''")
}

func blank(query string) bool {
	return strings.TrimSpace(query) == ""
}
