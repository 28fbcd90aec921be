package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"orgchart/api/internal/directory"
)

type fakeDirectory struct {
	mu        sync.Mutex
	me        string
	people    map[string]directory.Person
	reports   map[string][]string
	fetches   map[string]int
	reportErr error
}

func newFakeDirectory() *fakeDirectory {
	dir := &fakeDirectory{
		me:      "ceo",
		people:  map[string]directory.Person{},
		reports: map[string][]string{},
		fetches: map[string]int{},
	}
	dir.add("ceo", "Chief", "")
	dir.add("cto", "Tech", "ceo")
	dir.add("cfo", "Money", "ceo")
	dir.add("dev", "Developer", "cto")
	return dir
}

func (f *fakeDirectory) add(id, name, manager string) {
	f.people[id] = directory.Person{ID: id, DisplayName: name}
	if manager != "" {
		f.reports[manager] = append(f.reports[manager], id)
	}
}

func (f *fakeDirectory) GetCurrentUser(ctx context.Context) (directory.Person, error) {
	if caller, ok := directory.CallerFrom(ctx); ok {
		return f.GetUserByID(ctx, caller)
	}
	return f.GetUserByID(ctx, f.me)
}

func (f *fakeDirectory) GetUserByID(_ context.Context, id string) (directory.Person, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
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
	for _, id := range []string{"ceo", "cto", "cfo", "dev"} {
		if p, ok := f.people[id]; ok && strings.HasPrefix(strings.ToLower(p.DisplayName), strings.ToLower(query)) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeDirectory) GetDirectReports(_ context.Context, id string) ([]directory.Person, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches[id]++
	if f.reportErr != nil {
		return nil, f.reportErr
	}
	out := []directory.Person{}
	for _, child := range f.reports[id] {
		out = append(out, f.people[child])
	}
	return out, nil
}

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error { return f.err }

var errDirectoryDown = errors.New("directory down")

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
