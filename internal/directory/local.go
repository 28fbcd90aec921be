package directory

import (
	"context"
	"fmt"
)

// PeopleStore is the read side of a locally hosted people table.
type PeopleStore interface {
	GetPerson(ctx context.Context, id string) (Person, error)
	// ListDirectReports returns one page of reports and the cursor of the
	// next page, or "" when the list is exhausted.
	ListDirectReports(ctx context.Context, managerID, cursor string, limit int) ([]Person, string, error)
}

// PeopleSearcher finds people by display name.
type PeopleSearcher interface {
	SearchPeople(ctx context.Context, query string, limit int) ([]Person, error)
}

// LocalDirectory serves the directory contract from a PostgreSQL people table.
type LocalDirectory struct {
	people      PeopleStore
	search      PeopleSearcher
	defaultUser string
	pageSize    int
}

func NewLocalDirectory(people PeopleStore, search PeopleSearcher, defaultUser string, pageSize int) *LocalDirectory {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &LocalDirectory{
		people:      people,
		search:      search,
		defaultUser: defaultUser,
		pageSize:    pageSize,
	}
}

func (d *LocalDirectory) GetCurrentUser(ctx context.Context) (Person, error) {
	id, ok := CallerFrom(ctx)
	if !ok {
		id = d.defaultUser
	}
	if id == "" {
		return Person{}, ErrNoCaller
	}
	return d.GetUserByID(ctx, id)
}

func (d *LocalDirectory) GetUserByID(ctx context.Context, id string) (Person, error) {
	person, err := d.people.GetPerson(ctx, id)
	if err != nil {
		return Person{}, fmt.Errorf("get person %s: %w", id, err)
	}
	return person, nil
}

func (d *LocalDirectory) SearchUsers(ctx context.Context, query string) ([]Person, error) {
	if blank(query) {
		return []Person{}, nil
	}
	found, err := d.search.SearchPeople(ctx, query, SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return capPeople(found), nil
}

// GetDirectReports walks the page cursors until exhausted.
func (d *LocalDirectory) GetDirectReports(ctx context.Context, id string) ([]Person, error) {
	people := make([]Person, 0)
	cursor := ""
	for {
		page, next, err := d.people.ListDirectReports(ctx, id, cursor, d.pageSize)
		if err != nil {
			return nil, fmt.Errorf("direct reports of %s: %w", id, err)
		}
		for _, person := range page {
			if person.Valid() {
				people = append(people, person)
			}
		}
		if next == "" || next == cursor {
			return people, nil
		}
		cursor = next
	}
}
