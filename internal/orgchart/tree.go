package orgchart

import (
	"encoding/json"
	"fmt"
)

const (
	KindPerson = "person"
	KindMore   = "more"
)

// VisibleChild is either a *VisibleNode or a MoreMarker.
type VisibleChild interface {
	visibleKind() string
}

// VisibleNode is one rendered person in the derived tree.
type VisibleNode struct {
	ID       string
	Node     TrackedNode
	Children []VisibleChild
}

func (*VisibleNode) visibleKind() string { return KindPerson }

// MoreMarker stands in for direct reports cut off by the parent's batch window.
type MoreMarker struct {
	ID             string
	ParentID       string
	RemainingCount int
}

func (MoreMarker) visibleKind() string { return KindMore }

func newMoreMarker(parentID string, remaining int) MoreMarker {
	return MoreMarker{
		ID:             fmt.Sprintf("%s__more__%d", parentID, remaining),
		ParentID:       parentID,
		RemainingCount: remaining,
	}
}

// People returns only the person children, in order.
func (v *VisibleNode) People() []*VisibleNode {
	out := make([]*VisibleNode, 0, len(v.Children))
	for _, child := range v.Children {
		if node, ok := child.(*VisibleNode); ok {
			out = append(out, node)
		}
	}
	return out
}

// More returns the trailing marker, if the children were truncated.
func (v *VisibleNode) More() (MoreMarker, bool) {
	if len(v.Children) == 0 {
		return MoreMarker{}, false
	}
	marker, ok := v.Children[len(v.Children)-1].(MoreMarker)
	return marker, ok
}

// Walk visits the tree depth-first, passing each child with its depth and parent id.
func (v *VisibleNode) Walk(fn func(child VisibleChild, depth int, parentID string)) {
	var walk func(node *VisibleNode, depth int, parentID string)
	walk = func(node *VisibleNode, depth int, parentID string) {
		fn(node, depth, parentID)
		for _, child := range node.Children {
			switch c := child.(type) {
			case *VisibleNode:
				walk(c, depth+1, node.ID)
			case MoreMarker:
				fn(c, depth+1, node.ID)
			}
		}
	}
	walk(v, 0, "")
}

func (v *VisibleNode) MarshalJSON() ([]byte, error) {
	children := v.Children
	if children == nil {
		children = []VisibleChild{}
	}
	return json.Marshal(struct {
		Kind            string         `json:"kind"`
		ID              string         `json:"id"`
		DisplayName     string         `json:"displayName"`
		JobTitle        string         `json:"jobTitle,omitempty"`
		Department      string         `json:"department,omitempty"`
		Mail            string         `json:"mail,omitempty"`
		UPN             string         `json:"userPrincipalName,omitempty"`
		Expanded        bool           `json:"expanded"`
		LoadedChildren  bool           `json:"loadedChildren"`
		HasMoreOnServer bool           `json:"hasMoreOnServer"`
		ChildCount      int            `json:"childCount"`
		BatchSize       int            `json:"batchSize"`
		Children        []VisibleChild `json:"children"`
	}{
		Kind:            KindPerson,
		ID:              v.ID,
		DisplayName:     v.Node.DisplayName,
		JobTitle:        v.Node.JobTitle,
		Department:      v.Node.Department,
		Mail:            v.Node.Mail,
		UPN:             v.Node.UserPrincipalName,
		Expanded:        v.Node.Expanded,
		LoadedChildren:  v.Node.LoadedChildren,
		HasMoreOnServer: v.Node.HasMoreOnServer,
		ChildCount:      len(v.Node.ChildIDs),
		BatchSize:       v.Node.BatchSize,
		Children:        children,
	})
}

func (m MoreMarker) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind           string `json:"kind"`
		ID             string `json:"id"`
		ParentID       string `json:"parentId"`
		RemainingCount int    `json:"remainingCount"`
	}{KindMore, m.ID, m.ParentID, m.RemainingCount})
}

// BuildVisibleTree derives the bounded tree rooted at rootID. It returns nil
// when the root is unknown. Children of collapsed nodes are hidden, at most
// min(BatchSize, policy.Max) children are emitted per node, and a MoreMarker
// follows a truncated list. Child ids missing from snap are skipped. A person
// reached twice (a reporting cycle) is emitted as a leaf the second time.
func BuildVisibleTree(rootID string, snap Snapshot, policy BatchPolicy) *VisibleNode {
	root, ok := snap[rootID]
	if !ok {
		return nil
	}
	visited := make(map[string]struct{})
	return buildNode(root, snap, policy, visited)
}

func buildNode(current TrackedNode, snap Snapshot, policy BatchPolicy, visited map[string]struct{}) *VisibleNode {
	out := &VisibleNode{ID: current.ID, Node: current, Children: []VisibleChild{}}
	if _, seen := visited[current.ID]; seen {
		return out
	}
	visited[current.ID] = struct{}{}

	if !current.Expanded || len(current.ChildIDs) == 0 {
		return out
	}

	limit := max(0, min(current.BatchSize, len(current.ChildIDs), policy.Max))
	for _, childID := range current.ChildIDs[:limit] {
		child, ok := snap[childID]
		if !ok {
			continue
		}
		out.Children = append(out.Children, buildNode(child, snap, policy, visited))
	}

	if remaining := len(current.ChildIDs) - limit; remaining > 0 {
		out.Children = append(out.Children, newMoreMarker(current.ID, remaining))
	}
	return out
}
