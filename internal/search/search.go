// Package search finds people by name for the org chart search box.
package search

import (
	"context"

	"orgchart/api/internal/directory"
)

// Searcher runs fuzzy people searches against an index.
type Searcher interface {
	SearchPeople(ctx context.Context, query string, limit int) ([]directory.Person, error)
	Healthy() bool
}

// Indexer keeps a people index in sync with the directory.
type Indexer interface {
	IndexPeople(people []directory.Person) error
	DeletePerson(id string) error
}

// PrefixFinder is the exact-prefix lookup used when the index cannot answer.
type PrefixFinder interface {
	SearchPeopleByPrefix(ctx context.Context, query string, limit int) ([]directory.Person, error)
}

// PeopleSource lists every person for a full reindex.
type PeopleSource interface {
	LoadAllPeople(ctx context.Context) ([]directory.Person, error)
}

// PeopleSourceFunc adapts a function to PeopleSource.
type PeopleSourceFunc func(ctx context.Context) ([]directory.Person, error)

func (f PeopleSourceFunc) LoadAllPeople(ctx context.Context) ([]directory.Person, error) {
	return f(ctx)
}

// PersonDocument is the shape stored in the people index.
type PersonDocument struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	JobTitle          string `json:"jobTitle"`
	Department        string `json:"department"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

func documentFor(p directory.Person) PersonDocument {
	return PersonDocument{
		ID:                p.ID,
		DisplayName:       p.DisplayName,
		JobTitle:          p.JobTitle,
		Department:        p.Department,
		Mail:              p.Mail,
		UserPrincipalName: p.UserPrincipalName,
	}
}
