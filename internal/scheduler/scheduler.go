package scheduler

import (
	"sort"
	"time"

	"github.com/angelmondragon/velora-notify/pkg/enums"
)

// Candidate is a preference-admitted notification waiting for a visible slot.
type Candidate struct {
	ID        string
	Priority  enums.Priority
	CreatedAt time.Time
}

// Plan is the outcome of one scheduling pass over an immutable snapshot.
type Plan struct {
	// Admitted lists newly admitted candidate ids in admission order.
	Admitted []string
	// Slots maps every visible id (retained and newly admitted) to its
	// 0-based stacking position.
	Slots map[string]int
	// Overflow counts candidates left waiting for a slot, for a "+N more"
	// indicator. Waiting candidates are re-ranked on every pass.
	Overflow int
}

// Rank orders candidates by priority descending, then createdAt descending
// (freshness over FIFO fairness), with the id as a final tiebreak so
// re-planning an unchanged snapshot yields an unchanged order.
func Rank(candidates []Candidate) []Candidate {
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Priority.Rank() != ranked[j].Priority.Rank() {
			return ranked[i].Priority.Rank() > ranked[j].Priority.Rank()
		}
		if !ranked[i].CreatedAt.Equal(ranked[j].CreatedAt) {
			return ranked[i].CreatedAt.After(ranked[j].CreatedAt)
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked
}

// Next plans one pass: already-visible toasts keep their slots in order,
// then the highest-ranked candidates fill the remaining capacity up to
// maxVisible.
func Next(visible []string, candidates []Candidate, maxVisible int) Plan {
	if maxVisible <= 0 {
		maxVisible = 1
	}

	plan := Plan{Slots: make(map[string]int, maxVisible)}
	slot := 0
	for _, id := range visible {
		if slot >= maxVisible {
			break
		}
		plan.Slots[id] = slot
		slot++
	}

	for _, candidate := range Rank(candidates) {
		if _, alreadyVisible := plan.Slots[candidate.ID]; alreadyVisible {
			continue
		}
		if slot >= maxVisible {
			plan.Overflow++
			continue
		}
		plan.Slots[candidate.ID] = slot
		plan.Admitted = append(plan.Admitted, candidate.ID)
		slot++
	}

	return plan
}
