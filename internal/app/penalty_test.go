package app_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"hifdh-quest-service/internal/app"
	"hifdh-quest-service/internal/domain"
)

func TestFirstBuzzPenaltyBlocksAfterStreak(t *testing.T) {
	penalty := app.NewFirstBuzzPenalty(3)
	p := &domain.Participant{ID: "p1"}

	require.False(t, penalty.Record(p, 1))
	require.False(t, penalty.Record(p, 1))
	require.True(t, penalty.Record(p, 1))
	require.True(t, p.BlockedNextRound)
	require.False(t, p.Blocked(), "the block applies from the next round")

	participants := map[string]*domain.Participant{"p1": p}
	require.True(t, penalty.Arm(participants))
	require.True(t, p.Blocked())
	require.False(t, p.BlockedNextRound)

	require.True(t, penalty.Arm(participants))
	require.False(t, p.Blocked(), "the block lasts a single round")
	require.False(t, penalty.Arm(participants))
}

func TestFirstBuzzPenaltyResetsOnLaterRank(t *testing.T) {
	penalty := app.NewFirstBuzzPenalty(3)
	p := &domain.Participant{ID: "p1"}

	penalty.Record(p, 1)
	penalty.Record(p, 1)
	require.False(t, penalty.Record(p, 2))
	require.Zero(t, p.ConsecutiveFirstBuzzes)
	require.False(t, penalty.Record(p, 1))
	require.False(t, p.BlockedNextRound)
}
