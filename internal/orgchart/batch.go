package orgchart

import "fmt"

const (
	DefaultBatchSize = 40
	BatchIncrement   = 40
	MaxBatchSize     = 200
)

// BatchPolicy decides how many direct reports of a node are rendered before
// the rest collapse into a "more" marker.
type BatchPolicy struct {
	Default   int
	Increment int
	Max       int
}

func DefaultBatchPolicy() BatchPolicy {
	return BatchPolicy{Default: DefaultBatchSize, Increment: BatchIncrement, Max: MaxBatchSize}
}

func (p BatchPolicy) Validate() error {
	if p.Default <= 0 {
		return fmt.Errorf("batch default must be positive, got %d", p.Default)
	}
	if p.Default > p.Increment {
		return fmt.Errorf("batch default (%d) must not exceed increment (%d)", p.Default, p.Increment)
	}
	if p.Max < p.Default {
		return fmt.Errorf("batch max (%d) must be at least default (%d)", p.Max, p.Default)
	}
	return nil
}

// Increase grows the node's window by one increment, capped at Max. Only
// BatchSize is touched.
func (p BatchPolicy) Increase(node *TrackedNode) {
	node.BatchSize = p.clamp(node.BatchSize + p.Increment)
}

func (p BatchPolicy) clamp(size int) int {
	if size < p.Default {
		size = p.Default
	}
	if size > p.Max {
		size = p.Max
	}
	return size
}
