package enums

import "fmt"

// Priority orders notifications from least to most pressing. The source
// domains speak both "priority" and "severity"; event mappers translate both
// into this single enumeration.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var priorityRank = map[Priority]int{
	PriorityLow:    0,
	PriorityNormal: 1,
	PriorityHigh:   2,
	PriorityUrgent: 3,
}

// Rank returns the comparable weight of the priority, higher is more pressing.
// Unknown values rank below low so malformed data never outranks real traffic.
func (p Priority) Rank() int {
	if rank, ok := priorityRank[p]; ok {
		return rank
	}
	return -1
}

// IsValid checks whether the given priority matches the canonical enum.
func (p Priority) IsValid() bool {
	_, ok := priorityRank[p]
	return ok
}

// AtLeast reports whether p ranks at or above other.
func (p Priority) AtLeast(other Priority) bool {
	return p.Rank() >= other.Rank()
}

// ParsePriority converts raw strings into Priority.
func ParsePriority(value string) (Priority, error) {
	candidate := Priority(value)
	if candidate.IsValid() {
		return candidate, nil
	}
	return "", fmt.Errorf("invalid priority %q", value)
}
