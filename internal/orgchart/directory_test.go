package orgchart

import (
	"context"
	"sync"

	"orgchart/api/internal/directory"
)

// fakeDirectory serves a fixed people graph and counts report fetches.
type fakeDirectory struct {
	mu        sync.Mutex
	me        string
	people    map[string]directory.Person
	reports   map[string][]string
	fetches   map[string]int
	reportErr error
	userErr   error
	gate      chan struct{}
	started   chan struct{}
}

func newFakeDirectory(me string) *fakeDirectory {
	return &fakeDirectory{
		me:      me,
		people:  map[string]directory.Person{},
		reports: map[string][]string{},
		fetches: map[string]int{},
	}
}

func (f *fakeDirectory) add(id, name, manager string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.people[id] = directory.Person{ID: id, DisplayName: name}
	if manager != "" {
		f.reports[manager] = append(f.reports[manager], id)
	}
}

func (f *fakeDirectory) fetchCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[id]
}

func (f *fakeDirectory) GetCurrentUser(ctx context.Context) (directory.Person, error) {
	id := f.me
	if caller, ok := directory.CallerFrom(ctx); ok {
		id = caller
	}
	return f.GetUserByID(ctx, id)
}

func (f *fakeDirectory) GetUserByID(_ context.Context, id string) (directory.Person, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.userErr != nil {
		return directory.Person{}, f.userErr
	}
	p, ok := f.people[id]
	if !ok {
		return directory.Person{}, directory.ErrNotFound
	}
	return p, nil
}

func (f *fakeDirectory) SearchUsers(_ context.Context, query string) ([]directory.Person, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []directory.Person
	for _, p := range f.people {
		if p.DisplayName == query {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeDirectory) GetDirectReports(ctx context.Context, id string) ([]directory.Person, error) {
	f.mu.Lock()
	f.fetches[id]++
	gate, started := f.gate, f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reportErr != nil {
		return nil, f.reportErr
	}
	out := make([]directory.Person, 0, len(f.reports[id]))
	for _, child := range f.reports[id] {
		out = append(out, f.people[child])
	}
	return out, nil
}
