package app

import (
	"context"
	"testing"

	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/domain"
	"github.com/05-Keerthi/GM-Player-Quiz-sub003/internal/infra/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankerCreditsAccumulateBeforeRerank(t *testing.T) {
	ctx := context.Background()
	r := NewRanker(memory.NewLeaderboardStore())

	require.NoError(t, r.Credit(ctx, "s1", "A", 100))
	require.NoError(t, r.Credit(ctx, "s1", "B", 150))
	require.NoError(t, r.Credit(ctx, "s1", "A", 60))

	board, err := r.Rerank(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, board.Entries, 2)
	assert.Equal(t, "A", board.Entries[0].PlayerID)
	assert.Equal(t, 160.0, board.Entries[0].Score)
	assert.Equal(t, 1, board.Entries[0].Rank)
	assert.Equal(t, "B", board.Entries[1].PlayerID)
	assert.Equal(t, 2, board.Entries[1].Rank)

	entry, ok, err := r.ReadPlayer(ctx, "s1", "B")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, entry.Rank)

	_, ok, err = r.ReadPlayer(ctx, "s1", "C")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRankerRejectsNegativeCredit(t *testing.T) {
	r := NewRanker(memory.NewLeaderboardStore())
	err := r.Credit(context.Background(), "s1", "A", -1)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRankerZeroCreditCreatesEntry(t *testing.T) {
	ctx := context.Background()
	r := NewRanker(memory.NewLeaderboardStore())

	board, err := r.CreditAndRerank(ctx, "s1", "A", 0)
	require.NoError(t, err)
	require.Len(t, board.Entries, 1)
	assert.Equal(t, 1, board.Entries[0].Rank)

	read, err := r.Read(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, board.Entries, read.Entries)
}
