package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/usdfg/arena/internal/pkg/challenge"
	"github.com/usdfg/arena/internal/pkg/common"
	"github.com/usdfg/arena/internal/pkg/matchmaker"
	"github.com/usdfg/arena/internal/pkg/notify"
	"github.com/usdfg/arena/internal/pkg/store"
	"github.com/usdfg/arena/internal/pkg/trust"
)

var errBoom = errors.New("boom")

func newStore(t *testing.T) *store.Store {
	t.Helper()

	databaseService, err := common.OpenDatabase(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = databaseService.Shutdown()
	})

	return store.New(databaseService.DB)
}

func TestChallengeCRUD(t *testing.T) {
	t.Parallel()

	st := newStore(t)
	ctx := context.Background()

	c := &challenge.Challenge{ID: "c-1", Creator: "alice", Players: []string{"alice"}, Status: challenge.StatusActive}
	require.NoError(t, st.Create(ctx, c))
	require.ErrorIs(t, st.Create(ctx, c), store.ErrExists)

	got, err := st.Get(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Creator)

	updated, err := st.Update(ctx, "c-1", func(c *challenge.Challenge) error {
		c.Players = append(c.Players, "bob")

		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, updated.Players)

	current, err := st.Update(ctx, "c-1", func(c *challenge.Challenge) error {
		c.Status = challenge.StatusCancelled

		return errBoom
	})
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, challenge.StatusActive, current.Status)

	got, err = st.Get(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusActive, got.Status)

	_, err = st.Update(ctx, "missing", func(*challenge.Challenge) error { return nil })
	require.ErrorIs(t, err, challenge.ErrNotFound)

	require.NoError(t, st.Delete(ctx, "c-1"))
	require.ErrorIs(t, st.Delete(ctx, "c-1"), challenge.ErrNotFound)

	_, err = st.Get(ctx, "c-1")
	require.ErrorIs(t, err, challenge.ErrNotFound)
}

func TestSubscribeChallengesDeliversLatestSnapshot(t *testing.T) {
	t.Parallel()

	st := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	snapshots := st.SubscribeChallenges(ctx)

	initial := <-snapshots
	assert.Empty(t, initial)

	for _, id := range []string{"c-1", "c-2", "c-3"} {
		require.NoError(t, st.Create(ctx, &challenge.Challenge{ID: id, Status: challenge.StatusActive}))
	}

	latest := <-snapshots
	assert.Len(t, latest, 3)

	cancel()

	require.Eventually(t, func() bool {
		_, open := <-snapshots

		return !open
	}, time.Second, 10*time.Millisecond)
}

func TestLocks(t *testing.T) {
	t.Parallel()

	st := newStore(t)
	ctx := context.Background()

	snapshots := st.SubscribeLocks(ctx)
	assert.Empty(t, <-snapshots)

	require.NoError(t, st.SetLock(ctx, "alice", "bob"))

	target, err := st.Lock(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "bob", target)

	assert.Equal(t, map[string]string{"alice": "bob"}, <-snapshots)

	require.NoError(t, st.SetLock(ctx, "alice", ""))

	locks, err := st.Locks(ctx)
	require.NoError(t, err)
	assert.Empty(t, locks)

	require.NoError(t, st.SaveFriendlyResult(ctx, matchmaker.FriendlyResult{
		MatchID: "friendly-alice-bob", Reporter: "alice", Opponent: "bob", Winner: "alice", ReportedAt: time.Now(),
	}))
}

func TestUpsertNotificationReportsChanges(t *testing.T) {
	t.Parallel()

	st := newStore(t)
	ctx := context.Background()

	n := notify.Notification{ID: "friendly-alice-bob", Kind: notify.KindLock, Status: notify.StatusPending}

	changed, err := st.UpsertNotification(ctx, n)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = st.UpsertNotification(ctx, n)
	require.NoError(t, err)
	assert.False(t, changed)

	n.Status = notify.StatusAccepted

	changed, err = st.UpsertNotification(ctx, n)
	require.NoError(t, err)
	assert.True(t, changed)

	stored, err := st.Notification(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, notify.StatusAccepted, stored.Status)

	_, err = st.Notification(ctx, "missing")
	require.ErrorIs(t, err, notify.ErrNotFound)
}

func TestReviews(t *testing.T) {
	t.Parallel()

	st := newStore(t)
	ctx := context.Background()

	r := trust.Review{Reviewer: "alice", Opponent: "bob", ChallengeID: "c-1", TrustScore10: 9}

	created, err := st.PutReview(ctx, r)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = st.PutReview(ctx, r)
	require.NoError(t, err)
	assert.False(t, created)

	found, err := st.HasReview(ctx, r.Key())
	require.NoError(t, err)
	assert.True(t, found)

	reviews, err := st.ReviewsFor(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, reviews, 1)

	reviews, err = st.ReviewsFor(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, reviews)
}

func TestTeams(t *testing.T) {
	t.Parallel()

	st := newStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateTeam(ctx, &challenge.Team{ID: "t-1", Name: "Alpha", Key: "alice", Members: []string{"alice"}}))

	team, err := st.AddTeamMember(ctx, "t-1", "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, team.Members)

	team, err = st.AddTeamMember(ctx, "t-1", "bob")
	require.NoError(t, err)
	assert.Len(t, team.Members, 2)

	of, err := st.TeamOf(ctx, "bob")
	require.NoError(t, err)
	require.NotNil(t, of)
	assert.Equal(t, "t-1", of.ID)

	of, err = st.TeamOf(ctx, "carol")
	require.NoError(t, err)
	assert.Nil(t, of)

	_, err = st.AddTeamMember(ctx, "t-2", "bob")
	require.ErrorIs(t, err, store.ErrNotFound)
}
