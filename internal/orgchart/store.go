package orgchart

import (
	"slices"
	"strings"
	"sync"

	"orgchart/api/internal/directory"
)

// Snapshot is a point-in-time copy of the store. ChildIDs slices are shared
// with the store and must not be modified.
type Snapshot map[string]TrackedNode

// UpsertOption sets session fields explicitly during an upsert.
type UpsertOption func(*TrackedNode)

func WithExpanded(expanded bool) UpsertOption {
	return func(n *TrackedNode) { n.Expanded = expanded }
}

// NodeStore owns everything the session knows about the people graph. Entries
// are created on first sight and merged afterwards; nothing is removed except
// by Reset.
type NodeStore struct {
	mu     sync.RWMutex
	nodes  map[string]*TrackedNode
	policy BatchPolicy
}

func NewNodeStore(policy BatchPolicy) *NodeStore {
	return &NodeStore{nodes: make(map[string]*TrackedNode), policy: policy}
}

// Upsert creates the node with default state or merges the person fields into
// the existing one. Session fields change only through opts.
func (s *NodeStore) Upsert(person directory.Person, opts ...UpsertOption) TrackedNode {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[person.ID]
	if !ok {
		node = newTrackedNode(person, s.policy)
		s.nodes[person.ID] = node
	} else {
		node.mergePerson(person)
	}
	for _, opt := range opts {
		opt(node)
	}
	return node.clone()
}

func (s *NodeStore) Get(id string) (TrackedNode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[id]
	if !ok {
		return TrackedNode{}, false
	}
	return node.clone(), true
}

// SetExpanded reports false when id is unknown.
func (s *NodeStore) SetExpanded(id string, expanded bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.nodes[id]
	if !ok {
		return false
	}
	node.Expanded = expanded
	return true
}

// ToggleExpanded flips the flag and returns its new value.
func (s *NodeStore) ToggleExpanded(id string) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.nodes[id]
	if !ok {
		return false, false
	}
	node.Expanded = !node.Expanded
	return node.Expanded, true
}

// SetChildrenLoaded records a completed direct-report fetch.
func (s *NodeStore) SetChildrenLoaded(id string, childIDs []string, hasMore bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.nodes[id]
	if !ok {
		return false
	}
	node.ChildIDs = slices.Clone(childIDs)
	if node.ChildIDs == nil {
		node.ChildIDs = []string{}
	}
	node.LoadedChildren = true
	node.HasMoreOnServer = hasMore
	return true
}

// GrowBatch widens the node's paging window and returns the new size.
func (s *NodeStore) GrowBatch(id string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.nodes[id]
	if !ok {
		return 0, false
	}
	s.policy.Increase(node)
	return node.BatchSize, true
}

// Reset replaces the whole store with a single expanded root.
func (s *NodeStore) Reset(root directory.Person) TrackedNode {
	node := newTrackedNode(root, s.policy)
	node.Expanded = true

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = map[string]*TrackedNode{root.ID: node}
	return node.clone()
}

// Restore replaces the store with previously persisted nodes. Batch sizes
// outside the policy bounds are clamped.
func (s *NodeStore) Restore(nodes []TrackedNode) {
	restored := make(map[string]*TrackedNode, len(nodes))
	for i := range nodes {
		node := nodes[i].clone()
		node.BatchSize = s.policy.clamp(node.BatchSize)
		restored[node.ID] = &node
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = restored
}

func (s *NodeStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(Snapshot, len(s.nodes))
	for id, node := range s.nodes {
		snap[id] = *node
	}
	return snap
}

// Nodes returns every node ordered by id.
func (s *NodeStore) Nodes() []TrackedNode {
	s.mu.RLock()
	out := make([]TrackedNode, 0, len(s.nodes))
	for _, node := range s.nodes {
		out = append(out, node.clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b TrackedNode) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func (s *NodeStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}
