package orgchart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"orgchart/api/internal/directory"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestEnsureChildrenLoadedIsIdempotent(t *testing.T) {
	dir := newFakeDirectory("boss")
	dir.add("boss", "Boss", "")
	dir.add("a", "Ann", "boss")
	dir.add("b", "Ben", "boss")

	store := NewNodeStore(DefaultBatchPolicy())
	store.Upsert(dir.people["boss"])
	orch := NewOrchestrator(dir, store, DefaultBatchPolicy(), quietLogger())

	require.NoError(t, orch.EnsureChildrenLoaded(context.Background(), "boss"))
	require.NoError(t, orch.EnsureChildrenLoaded(context.Background(), "boss"))
	require.Equal(t, 1, dir.fetchCount("boss"))

	boss, _ := store.Get("boss")
	require.True(t, boss.LoadedChildren)
	require.False(t, boss.HasMoreOnServer)
	require.Equal(t, []string{"a", "b"}, boss.ChildIDs)
	require.Equal(t, 3, store.Len())
}

func TestEnsureChildrenLoadedSharesConcurrentFetch(t *testing.T) {
	dir := newFakeDirectory("boss")
	dir.add("boss", "Boss", "")
	dir.add("a", "Ann", "boss")
	dir.gate = make(chan struct{})
	dir.started = make(chan struct{}, 8)

	store := NewNodeStore(DefaultBatchPolicy())
	store.Upsert(dir.people["boss"])
	orch := NewOrchestrator(dir, store, DefaultBatchPolicy(), quietLogger())

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- orch.EnsureChildrenLoaded(context.Background(), "boss")
	}()
	<-dir.started

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- orch.EnsureChildrenLoaded(context.Background(), "boss")
	}()

	close(dir.gate)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, dir.fetchCount("boss"))
}

func TestEnsureChildrenLoadedSurvivesCancelledLeader(t *testing.T) {
	dir := newFakeDirectory("boss")
	dir.add("boss", "Boss", "")
	dir.add("a", "Ann", "boss")
	dir.gate = make(chan struct{})
	dir.started = make(chan struct{}, 8)

	store := NewNodeStore(DefaultBatchPolicy())
	store.Upsert(dir.people["boss"])
	orch := NewOrchestrator(dir, store, DefaultBatchPolicy(), quietLogger())

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() { leaderErr <- orch.EnsureChildrenLoaded(leaderCtx, "boss") }()
	<-dir.started

	followerErr := make(chan error, 1)
	go func() { followerErr <- orch.EnsureChildrenLoaded(context.Background(), "boss") }()

	cancelLeader()
	require.ErrorIs(t, <-leaderErr, context.Canceled)

	close(dir.gate)
	require.NoError(t, <-followerErr)
	require.Equal(t, 1, dir.fetchCount("boss"))

	boss, _ := store.Get("boss")
	require.True(t, boss.LoadedChildren)
	require.Equal(t, []string{"a"}, boss.ChildIDs)
}

func TestEnsureChildrenLoadedHasMoreHeuristic(t *testing.T) {
	dir := newFakeDirectory("boss")
	dir.add("boss", "Boss", "")
	for i := range DefaultBatchSize {
		dir.add(fmt.Sprintf("r%02d", i), "Report", "boss")
	}

	store := NewNodeStore(DefaultBatchPolicy())
	store.Upsert(dir.people["boss"])
	orch := NewOrchestrator(dir, store, DefaultBatchPolicy(), quietLogger())

	require.NoError(t, orch.EnsureChildrenLoaded(context.Background(), "boss"))
	boss, _ := store.Get("boss")
	require.True(t, boss.HasMoreOnServer)
	require.Len(t, boss.ChildIDs, DefaultBatchSize)
}

func TestEnsureChildrenLoadedFailureLeavesNodeUnloaded(t *testing.T) {
	dir := newFakeDirectory("boss")
	dir.add("boss", "Boss", "")
	dir.reportErr = errors.New("boom")

	store := NewNodeStore(DefaultBatchPolicy())
	store.Upsert(dir.people["boss"])
	orch := NewOrchestrator(dir, store, DefaultBatchPolicy(), quietLogger())

	err := orch.EnsureChildrenLoaded(context.Background(), "boss")
	require.ErrorIs(t, err, ErrDirectory)

	boss, _ := store.Get("boss")
	require.False(t, boss.LoadedChildren)

	dir.reportErr = nil
	require.NoError(t, orch.EnsureChildrenLoaded(context.Background(), "boss"))
	require.Equal(t, 2, dir.fetchCount("boss"))
}

func TestEnsureCurrentUserAndChildrenResetsStore(t *testing.T) {
	dir := newFakeDirectory("boss")
	dir.add("boss", "Boss", "")
	dir.add("a", "Ann", "boss")

	store := NewNodeStore(DefaultBatchPolicy())
	store.Upsert(directory.Person{ID: "stale", DisplayName: "Stale"})
	orch := NewOrchestrator(dir, store, DefaultBatchPolicy(), quietLogger())

	rootID, err := orch.EnsureCurrentUserAndChildren(context.Background())
	require.NoError(t, err)
	require.Equal(t, "boss", rootID)

	_, ok := store.Get("stale")
	require.False(t, ok)
	boss, _ := store.Get("boss")
	require.True(t, boss.Expanded)
	require.True(t, boss.LoadedChildren)
}

func TestEnsureCurrentUserAndChildrenUnknownCaller(t *testing.T) {
	dir := newFakeDirectory("nobody")
	orch := NewOrchestrator(dir, NewNodeStore(DefaultBatchPolicy()), DefaultBatchPolicy(), quietLogger())

	rootID, err := orch.EnsureCurrentUserAndChildren(context.Background())
	require.Empty(t, rootID)
	require.ErrorIs(t, err, ErrDirectory)
	require.ErrorIs(t, err, directory.ErrNotFound)
}

func TestResolveAndUpsert(t *testing.T) {
	dir := newFakeDirectory("boss")
	dir.add("far", "Far Away", "")
	store := NewNodeStore(DefaultBatchPolicy())
	orch := NewOrchestrator(dir, store, DefaultBatchPolicy(), quietLogger())

	node, err := orch.ResolveAndUpsert(context.Background(), "far")
	require.NoError(t, err)
	require.Equal(t, "Far Away", node.DisplayName)
	require.Equal(t, 1, store.Len())

	_, err = orch.ResolveAndUpsert(context.Background(), "ghost")
	require.ErrorIs(t, err, directory.ErrNotFound)
}
