package scorer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/usdfg/arena/internal/pkg/common"
	scorer "github.com/usdfg/arena/internal/pkg/scorer"
)

func newScorer(t *testing.T) *scorer.ScorerService {
	t.Helper()

	databaseService, err := common.OpenDatabase(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = databaseService.Shutdown()
	})

	return &scorer.ScorerService{
		DatabaseService: databaseService,
	}
}

func TestCalculateExpectedScore(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.5, scorer.CalculateExpectedScore(1500.0, 1500.0))
}

func TestUpdateRatings(t *testing.T) {
	t.Parallel()

	winner := scorer.Scorecard{
		Wallet: "1",
		Rating: 1500.0,
		Count:  100,
	}

	loser := scorer.Scorecard{
		Wallet: "2",
		Rating: 1500.0,
		Count:  100,
	}

	updatedWinner, updatedLoser := scorer.UpdateRatings(winner, loser)

	assert.Equal(t, 1516.0, updatedWinner.Rating)
	assert.Equal(t, 1484.0, updatedLoser.Rating)
	assert.Equal(t, int64(101), updatedWinner.Count)
	assert.Equal(t, int64(1), updatedWinner.Wins)
	assert.Equal(t, int64(1), updatedLoser.Losses)
}

func TestHandleOutcome(t *testing.T) {
	t.Parallel()

	scorerService := newScorer(t)

	err := scorerService.HandleOutcome(scorer.Outcome{
		ChallengeID: "c-1",
		Winner:      "alice",
		Loser:       "bob",
		Prize:       19_000_000_000,
		Game:        "FIFA 24",
		Category:    "Sports",
	})
	require.NoError(t, err)

	alice, err := scorerService.Scorecard("alice")
	require.NoError(t, err)
	assert.Equal(t, 1564.0, alice.Rating)
	assert.Equal(t, int64(19_000_000_000), alice.Earned)

	bob, err := scorerService.Scorecard("bob")
	require.NoError(t, err)
	assert.Equal(t, 1436.0, bob.Rating)
	assert.Equal(t, int64(1), bob.Losses)

	games, err := scorerService.Games()
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, int64(1), games[0].Matches)
}

func TestHandleOutcomeRejectsSelfMatch(t *testing.T) {
	t.Parallel()

	scorerService := newScorer(t)

	err := scorerService.HandleOutcome(scorer.Outcome{Winner: "alice", Loser: "alice"})
	require.ErrorIs(t, err, scorer.ErrInvalidOutcome)
}

func TestLeaderboard(t *testing.T) {
	t.Parallel()

	scorerService := newScorer(t)

	require.NoError(t, scorerService.HandleOutcome(scorer.Outcome{Winner: "carol", Loser: "bob", Friendly: true}))
	require.NoError(t, scorerService.HandleOutcome(scorer.Outcome{Winner: "carol", Loser: "alice"}))

	cards, err := scorerService.Leaderboard(2)
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, "carol", cards[0].Wallet)
	assert.Greater(t, cards[0].Rating, cards[1].Rating)

	unknown, err := scorerService.Scorecard("dave")
	require.NoError(t, err)
	assert.Equal(t, scorer.DefaultRating, unknown.Rating)
}
