package orgchart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"orgchart/api/internal/directory"
	"orgchart/api/internal/metrics"
)

var (
	ErrUnknownNode = errors.New("node not in chart")
	// ErrDirectory marks failures of the directory collaborator.
	ErrDirectory = errors.New("directory request failed")
)

// childLoadTimeout bounds a shared direct-report fetch, which no longer follows
// the cancellation of the request that started it.
const childLoadTimeout = 30 * time.Second

// Directory is the people source the chart is populated from.
type Directory interface {
	GetCurrentUser(ctx context.Context) (directory.Person, error)
	GetUserByID(ctx context.Context, id string) (directory.Person, error)
	SearchUsers(ctx context.Context, query string) ([]directory.Person, error)
	GetDirectReports(ctx context.Context, id string) ([]directory.Person, error)
}

// Orchestrator pulls missing people from the directory into a NodeStore.
// Concurrent loads of the same node share a single directory request.
type Orchestrator struct {
	dir    Directory
	store  *NodeStore
	policy BatchPolicy
	flight singleflight.Group
	log    logrus.FieldLogger
}

func NewOrchestrator(dir Directory, store *NodeStore, policy BatchPolicy, log logrus.FieldLogger) *Orchestrator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Orchestrator{dir: dir, store: store, policy: policy, log: log}
}

// EnsureChildrenLoaded fetches the direct reports of id unless they are
// already loaded. A second call while a fetch for id is in flight waits for
// that fetch instead of issuing another. Each caller stops waiting when its
// own ctx is done; the fetch itself runs to completion and still lands.
func (o *Orchestrator) EnsureChildrenLoaded(ctx context.Context, id string) error {
	if node, ok := o.store.Get(id); ok && node.LoadedChildren {
		return nil
	}

	ch := o.flight.DoChan(id, func() (any, error) {
		if node, ok := o.store.Get(id); ok && node.LoadedChildren {
			return nil, nil
		}

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), childLoadTimeout)
		defer cancel()
		reports, err := o.dir.GetDirectReports(fetchCtx, id)
		metrics.ObserveDirectoryCall("getDirectReports", err)
		if err != nil {
			return nil, fmt.Errorf("%w: load direct reports of %s: %w", ErrDirectory, id, err)
		}

		childIDs := make([]string, 0, len(reports))
		for _, person := range reports {
			o.store.Upsert(person)
			childIDs = append(childIDs, person.ID)
		}
		// Advisory only: the directory call already returned every page.
		hasMore := len(reports) >= o.policy.Default
		if !o.store.SetChildrenLoaded(id, childIDs, hasMore) {
			o.log.WithField("node_id", id).Warn("orgchart: direct reports loaded for a node missing from the store")
		}
		return nil, nil
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Shared {
			metrics.SharedChildLoads.Inc()
		}
		return res.Err
	}
}

// EnsureCurrentUserAndChildren makes the caller the single expanded root of a
// fresh store and loads its direct reports. The returned id is set whenever
// the store was reset, even if loading the reports failed.
func (o *Orchestrator) EnsureCurrentUserAndChildren(ctx context.Context) (string, error) {
	me, err := o.dir.GetCurrentUser(ctx)
	metrics.ObserveDirectoryCall("getCurrentUser", err)
	if err != nil {
		return "", fmt.Errorf("%w: load current user: %w", ErrDirectory, err)
	}

	o.store.Reset(me)
	if err := o.EnsureChildrenLoaded(ctx, me.ID); err != nil {
		return me.ID, err
	}
	return me.ID, nil
}

// ResolveAndUpsert fetches one person unknown to the store and adds it.
func (o *Orchestrator) ResolveAndUpsert(ctx context.Context, id string) (TrackedNode, error) {
	person, err := o.dir.GetUserByID(ctx, id)
	metrics.ObserveDirectoryCall("getUserById", err)
	if err != nil {
		return TrackedNode{}, fmt.Errorf("%w: resolve %s: %w", ErrDirectory, id, err)
	}
	return o.store.Upsert(person), nil
}

func (o *Orchestrator) Search(ctx context.Context, query string) ([]directory.Person, error) {
	found, err := o.dir.SearchUsers(ctx, query)
	metrics.ObserveDirectoryCall("searchUsers", err)
	if err != nil {
		return nil, fmt.Errorf("%w: search %q: %w", ErrDirectory, query, err)
	}
	return found, nil
}
