package trust_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/usdfg/arena/internal/pkg/challenge"
	"github.com/usdfg/arena/internal/pkg/common"
	"github.com/usdfg/arena/internal/pkg/store"
	"github.com/usdfg/arena/internal/pkg/trust"
)

func newTrust(t *testing.T, status challenge.Status) *trust.TrustService {
	t.Helper()

	databaseService, err := common.OpenDatabase(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = databaseService.Shutdown()
	})

	st := store.New(databaseService.DB)

	err = st.Create(context.Background(), &challenge.Challenge{
		ID:        "c-1",
		Creator:   "alice",
		Players:   []string{"alice", "bob"},
		Status:    status,
		Winner:    "alice",
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	return trust.New(st, st, slog.Default())
}

func review(reviewer, opponent string, score float64) trust.SubmitRequest {
	return trust.SubmitRequest{
		Reviewer:      reviewer,
		Opponent:      opponent,
		ChallengeID:   "c-1",
		Honesty:       5,
		Fairness:      4,
		Sportsmanship: 5,
		TrustScore10:  score,
	}
}

func TestSubmitValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(r *trust.SubmitRequest)
		err    error
	}{
		{"missing reviewer", func(r *trust.SubmitRequest) { r.Reviewer = "" }, trust.ErrMissingWallet},
		{"self", func(r *trust.SubmitRequest) { r.Opponent = r.Reviewer }, trust.ErrSelfReview},
		{"rating too low", func(r *trust.SubmitRequest) { r.Honesty = 0 }, trust.ErrInvalidRating},
		{"rating too high", func(r *trust.SubmitRequest) { r.Sportsmanship = 6 }, trust.ErrInvalidRating},
		{"trust score", func(r *trust.SubmitRequest) { r.TrustScore10 = 10.5 }, trust.ErrInvalidTrustScore},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := review("alice", "bob", 8)
			tc.mutate(&req)

			require.ErrorIs(t, req.Validate(), tc.err)
		})
	}
}

func TestSubmitIsIdempotent(t *testing.T) {
	t.Parallel()

	service := newTrust(t, challenge.StatusCompleted)
	ctx := context.Background()

	_, created, err := service.Submit(ctx, review("alice", "bob", 8))
	require.NoError(t, err)
	assert.True(t, created)

	_, created, err = service.Submit(ctx, review("alice", "bob", 2))
	require.NoError(t, err)
	assert.False(t, created)

	reviewed, err := service.HasReviewed(ctx, "alice", "bob", "c-1")
	require.NoError(t, err)
	assert.True(t, reviewed)

	reviewed, err = service.HasReviewed(ctx, "bob", "alice", "c-1")
	require.NoError(t, err)
	assert.False(t, reviewed)

	score, err := service.TrustScore(ctx, "bob")
	require.NoError(t, err)
	assert.InDelta(t, 8.0, score.Score, 0.001)
	assert.Equal(t, 1, score.Reviews)
}

func TestSubmitRequiresFinishedChallenge(t *testing.T) {
	t.Parallel()

	service := newTrust(t, challenge.StatusInProgress)

	_, _, err := service.Submit(context.Background(), review("alice", "bob", 8))
	require.ErrorIs(t, err, trust.ErrNotFinished)
}

func TestSubmitRequiresOpponents(t *testing.T) {
	t.Parallel()

	service := newTrust(t, challenge.StatusCompleted)

	_, _, err := service.Submit(context.Background(), review("alice", "carol", 8))
	require.ErrorIs(t, err, trust.ErrNotOpponents)
}

func TestTrustScoreRounds(t *testing.T) {
	t.Parallel()

	service := newTrust(t, challenge.StatusCompleted)
	ctx := context.Background()

	_, _, err := service.Submit(ctx, review("alice", "bob", 7.25))
	require.NoError(t, err)

	score, err := service.TrustScore(ctx, "bob")
	require.NoError(t, err)
	assert.InDelta(t, 7.3, score.Score, 0.001)

	empty, err := service.TrustScore(ctx, "carol")
	require.NoError(t, err)
	assert.Zero(t, empty.Reviews)
}
