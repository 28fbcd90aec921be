package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/sirupsen/logrus"

	"orgchart/api/internal/directory"
)

const idxPeople = "orgchart_people"

var errUnhealthy = errors.New("meilisearch unhealthy")

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	log     logrus.FieldLogger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the people index.
// An unreachable server is not an error: the index is marked unhealthy and a
// background loop keeps checking.
func NewMeili(url, apiKey string, log logrus.FieldLogger) *Meili {
	if log == nil {
		log = logrus.StandardLogger()
	}
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		log:    log.WithField("component", "meilisearch"),
		done:   make(chan struct{}),
	}

	if _, err := m.client.Health(); err != nil {
		m.log.WithError(err).WithField("url", url).Warn("search: meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxPeople,
		PrimaryKey: "id",
	}); err != nil {
		m.log.WithError(err).Debug("search: create index (may already exist)")
	}

	index := m.client.Index(idxPeople)
	filterable := []interface{}{"department"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.log.WithError(err).Warn("search: update filterable attributes")
	}
	searchable := []string{"displayName", "mail", "userPrincipalName", "jobTitle"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.log.WithError(err).Warn("search: update searchable attributes")
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.log.Info("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) SearchPeople(_ context.Context, query string, limit int) ([]directory.Person, error) {
	if !m.healthy.Load() {
		return nil, errUnhealthy
	}
	if limit <= 0 {
		limit = directory.SearchLimit
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID: idxPeople,
			Query:    query,
			Limit:    int64(limit),
		}},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	people := []directory.Person{}
	for _, result := range resp.Results {
		for _, hit := range result.Hits {
			if p := hitToPerson(hit); p.Valid() {
				people = append(people, p)
			}
		}
	}
	return people, nil
}

func hitToPerson(hit meili.Hit) directory.Person {
	return directory.Person{
		ID:                decodeString(hit, "id"),
		DisplayName:       decodeString(hit, "displayName"),
		JobTitle:          decodeString(hit, "jobTitle"),
		Department:        decodeString(hit, "department"),
		Mail:              decodeString(hit, "mail"),
		UserPrincipalName: decodeString(hit, "userPrincipalName"),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return ""
}

// IndexPeople adds or updates people in the index.
func (m *Meili) IndexPeople(people []directory.Person) error {
	if len(people) == 0 {
		return nil
	}
	docs := make([]PersonDocument, 0, len(people))
	for _, p := range people {
		docs = append(docs, documentFor(p))
	}
	_, err := m.client.Index(idxPeople).AddDocuments(docs, nil)
	return err
}

func (m *Meili) DeletePerson(id string) error {
	_, err := m.client.Index(idxPeople).DeleteDocument(id, nil)
	return err
}
