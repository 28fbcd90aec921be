package orgchart

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"orgchart/api/internal/directory"
	"orgchart/api/internal/metrics"
)

type LoadState string

const (
	StateIdle    LoadState = "idle"
	StateLoading LoadState = "loading"
	StateReady   LoadState = "ready"
	StateFailed  LoadState = "failed"
)

// View is what a renderer draws: the visible tree plus load status.
type View struct {
	RootID         string       `json:"rootId"`
	Status         LoadState    `json:"status"`
	Error          string       `json:"error,omitempty"`
	ZoomResetToken int          `json:"zoomResetToken"`
	Tree           *VisibleNode `json:"tree"`
}

// State is the persistable part of a chart session.
type State struct {
	RootID         string        `json:"rootId"`
	ZoomResetToken int           `json:"zoomResetToken"`
	Nodes          []TrackedNode `json:"nodes"`
}

// Controller is one viewer's chart: it owns the NodeStore and the current
// root, and turns renderer events into store mutations and fetches.
type Controller struct {
	store  *NodeStore
	orch   *Orchestrator
	policy BatchPolicy
	log    logrus.FieldLogger

	mu             sync.Mutex
	rootID         string
	status         LoadState
	lastErr        string
	zoomResetToken int
}

func NewController(dir Directory, policy BatchPolicy, log logrus.FieldLogger) *Controller {
	if log == nil {
		log = logrus.StandardLogger()
	}
	store := NewNodeStore(policy)
	return &Controller{
		store:  store,
		orch:   NewOrchestrator(dir, store, policy, log),
		policy: policy,
		log:    log,
		status: StateIdle,
	}
}

// RestoreController rebuilds a controller from persisted state.
func RestoreController(dir Directory, policy BatchPolicy, log logrus.FieldLogger, state State) *Controller {
	c := NewController(dir, policy, log)
	c.store.Restore(state.Nodes)
	c.rootID = state.RootID
	c.zoomResetToken = state.ZoomResetToken
	if _, ok := c.store.Get(state.RootID); ok {
		c.status = StateReady
	}
	return c
}

// Initialize roots the chart at the current user ("reset to me"). A failure
// leaves the chart in StateFailed with the error message.
func (c *Controller) Initialize(ctx context.Context) error {
	c.setStatus(StateLoading, nil)

	rootID, err := c.orch.EnsureCurrentUserAndChildren(ctx)
	if rootID != "" {
		c.mu.Lock()
		c.rootID = rootID
		c.zoomResetToken++
		c.mu.Unlock()
	}
	if err != nil {
		c.fail("initialize", err)
		return err
	}
	c.setStatus(StateReady, nil)
	return nil
}

// NodeClick loads the node's direct reports if needed, then toggles it.
func (c *Controller) NodeClick(ctx context.Context, id string) error {
	if _, ok := c.store.Get(id); !ok {
		return ErrUnknownNode
	}
	if err := c.orch.EnsureChildrenLoaded(ctx, id); err != nil {
		c.log.WithError(err).WithField("node_id", id).Warn("orgchart: expand failed")
		return err
	}
	c.store.ToggleExpanded(id)
	return nil
}

// Open re-roots the chart at id, resolving the person first when the store
// has never seen it. Failures are reported through the view's status.
func (c *Controller) Open(ctx context.Context, id string) error {
	if _, ok := c.store.Get(id); !ok {
		node, err := c.orch.ResolveAndUpsert(ctx, id)
		if err != nil {
			c.fail("open", err)
			return err
		}
		id = node.ID
	}

	c.mu.Lock()
	c.rootID = id
	c.zoomResetToken++
	c.status = StateLoading
	c.lastErr = ""
	c.mu.Unlock()

	if err := c.orch.EnsureChildrenLoaded(ctx, id); err != nil {
		c.fail("open", err)
		return err
	}
	c.setStatus(StateReady, nil)
	return nil
}

// ShowMore widens the batch window of parentID.
func (c *Controller) ShowMore(parentID string) error {
	if _, ok := c.store.GrowBatch(parentID); !ok {
		return ErrUnknownNode
	}
	return nil
}

func (c *Controller) ResetZoom() {
	c.mu.Lock()
	c.zoomResetToken++
	c.mu.Unlock()
}

// Search looks people up in the directory without adding them to the chart.
func (c *Controller) Search(ctx context.Context, query string) ([]directory.Person, error) {
	return c.orch.Search(ctx, query)
}

func (c *Controller) View() View {
	c.mu.Lock()
	view := View{
		RootID:         c.rootID,
		Status:         c.status,
		Error:          c.lastErr,
		ZoomResetToken: c.zoomResetToken,
	}
	c.mu.Unlock()

	started := time.Now()
	view.Tree = BuildVisibleTree(view.RootID, c.store.Snapshot(), c.policy)
	metrics.TreeBuildSeconds.Observe(time.Since(started).Seconds())
	return view
}

func (c *Controller) State() State {
	c.mu.Lock()
	state := State{RootID: c.rootID, ZoomResetToken: c.zoomResetToken}
	c.mu.Unlock()
	state.Nodes = c.store.Nodes()
	return state
}

// Node returns one tracked node of the chart.
func (c *Controller) Node(id string) (TrackedNode, bool) {
	return c.store.Get(id)
}

func (c *Controller) setStatus(status LoadState, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
	c.lastErr = ""
	if err != nil {
		c.lastErr = err.Error()
	}
}

func (c *Controller) fail(op string, err error) {
	c.log.WithError(err).WithField("op", op).Error("orgchart: failed to load")
	c.setStatus(StateFailed, err)
}
