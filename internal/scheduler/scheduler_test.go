package scheduler

import (
	"testing"
	"time"

	"github.com/angelmondragon/velora-notify/pkg/enums"
	"github.com/stretchr/testify/require"
)

func TestNextAdmitsByPriorityThenFreshness(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	t1 := base.Add(time.Second)
	t2 := base.Add(2 * time.Second)

	candidates := []Candidate{
		{ID: "low", Priority: enums.PriorityLow, CreatedAt: base},
		{ID: "urgent", Priority: enums.PriorityUrgent, CreatedAt: base},
		{ID: "normal", Priority: enums.PriorityNormal, CreatedAt: base},
		{ID: "high", Priority: enums.PriorityHigh, CreatedAt: base},
		{ID: "normal-t1", Priority: enums.PriorityNormal, CreatedAt: t1},
		{ID: "normal-t2", Priority: enums.PriorityNormal, CreatedAt: t2},
	}

	plan := Next(nil, candidates, 3)

	require.Equal(t, []string{"urgent", "high", "normal-t2"}, plan.Admitted)
	require.Equal(t, 3, plan.Overflow)
	require.Equal(t, 0, plan.Slots["urgent"])
	require.Equal(t, 1, plan.Slots["high"])
	require.Equal(t, 2, plan.Slots["normal-t2"])
}

func TestNextIsDeterministicOnUnchangedSnapshot(t *testing.T) {
	base := time.Now()
	candidates := []Candidate{
		{ID: "b", Priority: enums.PriorityNormal, CreatedAt: base},
		{ID: "a", Priority: enums.PriorityNormal, CreatedAt: base},
		{ID: "c", Priority: enums.PriorityNormal, CreatedAt: base},
	}

	first := Next(nil, candidates, 2)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, Next(nil, candidates, 2))
	}
	// equal priority and timestamp fall back to id order
	require.Equal(t, []string{"a", "b"}, first.Admitted)
}

func TestNextRetainsVisibleSlots(t *testing.T) {
	base := time.Now()
	candidates := []Candidate{
		{ID: "urgent", Priority: enums.PriorityUrgent, CreatedAt: base},
	}

	plan := Next([]string{"shown-1", "shown-2"}, candidates, 3)

	require.Equal(t, 0, plan.Slots["shown-1"])
	require.Equal(t, 1, plan.Slots["shown-2"])
	require.Equal(t, []string{"urgent"}, plan.Admitted)
	require.Equal(t, 2, plan.Slots["urgent"])
	require.Equal(t, 0, plan.Overflow)
}

func TestNextOverflowRequeuesWhenSlotFrees(t *testing.T) {
	base := time.Now()
	candidates := []Candidate{
		{ID: "waiting-high", Priority: enums.PriorityHigh, CreatedAt: base},
		{ID: "waiting-low", Priority: enums.PriorityLow, CreatedAt: base},
	}

	full := Next([]string{"a", "b", "c"}, candidates, 3)
	require.Empty(t, full.Admitted)
	require.Equal(t, 2, full.Overflow)

	// a slot frees up: the highest-ranked waiter is admitted, not the oldest
	freed := Next([]string{"a", "b"}, candidates, 3)
	require.Equal(t, []string{"waiting-high"}, freed.Admitted)
	require.Equal(t, 1, freed.Overflow)
}

func TestNextSkipsCandidatesAlreadyVisible(t *testing.T) {
	base := time.Now()
	candidates := []Candidate{
		{ID: "shown", Priority: enums.PriorityUrgent, CreatedAt: base},
		{ID: "new", Priority: enums.PriorityLow, CreatedAt: base},
	}

	plan := Next([]string{"shown"}, candidates, 3)
	require.Equal(t, []string{"new"}, plan.Admitted)
	require.Equal(t, 0, plan.Overflow)
}

func TestRankDoesNotMutateInput(t *testing.T) {
	base := time.Now()
	candidates := []Candidate{
		{ID: "z", Priority: enums.PriorityLow, CreatedAt: base},
		{ID: "a", Priority: enums.PriorityUrgent, CreatedAt: base},
	}

	_ = Rank(candidates)
	require.Equal(t, "z", candidates[0].ID)
}
