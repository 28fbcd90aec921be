package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"orgchart/api/internal/directory"
)

// Service is the facade that tries the fuzzy index first and falls back to
// the prefix finder.
type Service struct {
	index    Searcher
	indexer  Indexer
	fallback PrefixFinder
	log      logrus.FieldLogger
}

// NewService creates a search service. index may be nil if Meilisearch is
// not configured; a *Meili passed as index is also used for indexing.
func NewService(index Searcher, fallback PrefixFinder, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Service{index: index, fallback: fallback, log: log}
	if indexer, ok := index.(Indexer); ok {
		s.indexer = indexer
	}
	return s
}

// SearchPeople returns at most limit people. It fails only when neither the
// index nor the fallback could answer.
func (s *Service) SearchPeople(ctx context.Context, query string, limit int) ([]directory.Person, error) {
	var indexErr error
	if s.index != nil && s.index.Healthy() {
		people, err := s.index.SearchPeople(ctx, query, limit)
		if err == nil {
			return capPeople(people, limit), nil
		}
		indexErr = err
		s.log.WithError(err).Warn("search: meilisearch error, falling back to prefix search")
	}

	if s.fallback == nil {
		if indexErr == nil {
			indexErr = errors.New("no search backend configured")
		}
		return nil, fmt.Errorf("search people: %w", indexErr)
	}

	people, err := s.fallback.SearchPeopleByPrefix(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search people: %w", errors.Join(indexErr, err))
	}
	return capPeople(people, limit), nil
}

// IndexPeople pushes people to the index in the background.
func (s *Service) IndexPeople(people []directory.Person) {
	if s.indexer == nil || s.index == nil || !s.index.Healthy() {
		return
	}
	go func() {
		if err := s.indexer.IndexPeople(people); err != nil {
			s.log.WithError(err).WithField("count", len(people)).Warn("search: index people")
		}
	}()
}

// ReindexAll reads every person from source and pushes them to the index.
// It returns the number of people sent.
func (s *Service) ReindexAll(ctx context.Context, source PeopleSource) (int, error) {
	if s.indexer == nil || s.index == nil || !s.index.Healthy() {
		return 0, errors.New("search index unavailable")
	}
	people, err := source.LoadAllPeople(ctx)
	if err != nil {
		return 0, fmt.Errorf("reindex load: %w", err)
	}
	if err := s.indexer.IndexPeople(people); err != nil {
		return 0, fmt.Errorf("reindex people: %w", err)
	}
	return len(people), nil
}

// RemovePeople deletes people from the index. It keeps going after a failed
// delete and returns every failure.
func (s *Service) RemovePeople(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if s.indexer == nil || s.index == nil || !s.index.Healthy() {
		return errors.New("search index unavailable")
	}
	var errs []error
	for _, id := range ids {
		if err := s.indexer.DeletePerson(id); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func capPeople(people []directory.Person, limit int) []directory.Person {
	if people == nil {
		return []directory.Person{}
	}
	if limit > 0 && len(people) > limit {
		return people[:limit]
	}
	return people
}
