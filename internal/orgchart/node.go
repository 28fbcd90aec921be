// Package orgchart keeps the lazily populated org chart of one viewer: the
// known people graph, each node's expansion and paging state, and the bounded
// tree derived from them.
package orgchart

import (
	"slices"

	"orgchart/api/internal/directory"
)

// TrackedNode is a person plus this session's expansion and paging state.
type TrackedNode struct {
	directory.Person
	Expanded        bool     `json:"expanded"`
	LoadedChildren  bool     `json:"loadedChildren"`
	HasMoreOnServer bool     `json:"hasMoreOnServer"`
	ChildIDs        []string `json:"childIds"`
	BatchSize       int      `json:"batchSize"`
}

func newTrackedNode(person directory.Person, policy BatchPolicy) *TrackedNode {
	return &TrackedNode{
		Person:    person,
		ChildIDs:  []string{},
		BatchSize: policy.Default,
	}
}

// mergePerson replaces the person fields with the latest fetch. Session state
// is left alone.
func (n *TrackedNode) mergePerson(incoming directory.Person) {
	incoming.ID = n.ID
	n.Person = incoming
}

func (n *TrackedNode) clone() TrackedNode {
	out := *n
	out.ChildIDs = slices.Clone(n.ChildIDs)
	if out.ChildIDs == nil {
		out.ChildIDs = []string{}
	}
	return out
}
