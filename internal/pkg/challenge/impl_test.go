package challenge_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/usdfg/arena/internal/pkg/challenge"
	"github.com/usdfg/arena/internal/pkg/common"
	"github.com/usdfg/arena/internal/pkg/escrow"
	"github.com/usdfg/arena/internal/pkg/notify"
	"github.com/usdfg/arena/internal/pkg/receiver"
	"github.com/usdfg/arena/internal/pkg/scorer"
	"github.com/usdfg/arena/internal/pkg/store"
	"github.com/usdfg/arena/internal/pkg/trust"
)

type fakeEscrow struct {
	mu sync.Mutex

	status     escrow.OnChainStatus
	verifyErr  error
	releaseErr error
	// block, when set, holds Release until closed; entered is signalled
	// once Release has been reached.
	block   chan struct{}
	entered chan struct{}

	releases int
}

func (f *fakeEscrow) VerifyDeposit(_ context.Context, _, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.verifyErr
}

// hold makes the next Release wait until the returned func is called.
func (f *fakeEscrow) hold() (<-chan struct{}, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.block = make(chan struct{})
	f.entered = make(chan struct{}, 1)

	return f.entered, func() { close(f.block) }
}

func (f *fakeEscrow) Release(_ context.Context, _, _, _ string) (string, error) {
	f.mu.Lock()
	block, entered := f.block, f.entered
	f.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}

	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.releases++

	if f.releaseErr != nil {
		return "", f.releaseErr
	}

	return "release-sig", nil
}

func (f *fakeEscrow) Status(_ context.Context, _ string) (escrow.OnChainStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.status, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type fixture struct {
	service  *challenge.ChallengeService
	trust    *trust.TrustService
	store    *store.Store
	escrow   *fakeEscrow
	clock    *clock
	outcomes chan scorer.Outcome
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	databaseService, err := common.OpenDatabase(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = databaseService.Shutdown()
	})

	st := store.New(databaseService.DB)
	trustService := trust.New(st, st, slog.Default())
	fake := &fakeEscrow{status: escrow.StatusOpen}
	clk := &clock{now: epoch}
	outcomes := make(chan scorer.Outcome, 8)

	rules := common.DefaultRules()
	rules.AdminWallet = "admin"

	service := challenge.New(challenge.Options{
		Repo:        st,
		Teams:       st,
		Escrow:      fake,
		Notifier:    notify.New(st, notify.NewBroadcaster(), slog.Default()),
		Reviews:     trustService,
		OutcomeSink: outcomes,
		Rules:       rules,
		Now:         clk.Now,
	})

	return &fixture{
		service:  service,
		trust:    trustService,
		store:    st,
		escrow:   fake,
		clock:    clk,
		outcomes: outcomes,
	}
}

func (f *fixture) create(t *testing.T, creator string) *challenge.Challenge {
	t.Helper()

	c, err := f.service.Create(context.Background(), &challenge.CreateRequest{
		Creator:   creator,
		Title:     creator + " 1v1",
		Game:      "FIFA 24",
		EntryFee:  10 * common.OneToken,
		EscrowRef: "escrow-" + creator,
	})
	require.NoError(t, err)

	return c
}

func (f *fixture) join(t *testing.T, id, wallet string) *challenge.Challenge {
	t.Helper()

	c, err := f.service.Join(context.Background(), &challenge.JoinRequest{
		ChallengeID:      id,
		Wallet:           wallet,
		DepositSignature: "deposit-" + wallet,
	})
	require.NoError(t, err)

	return c
}

func (f *fixture) submit(t *testing.T, id, wallet string, didWin bool) (*challenge.Challenge, error) {
	t.Helper()

	//nolint:wrapcheck
	return f.service.SubmitResult(context.Background(), &challenge.SubmitResultRequest{
		ChallengeID: id,
		Wallet:      wallet,
		DidWin:      didWin,
	})
}

func (f *fixture) claim(id, wallet string) (*challenge.Challenge, error) {
	//nolint:wrapcheck
	return f.service.Claim(context.Background(), &challenge.ClaimRequest{
		ChallengeID:       id,
		Wallet:            wallet,
		SignedTransaction: "signed-tx",
	})
}

func (f *fixture) review(t *testing.T, id, reviewer, opponent string) {
	t.Helper()

	_, _, err := f.trust.Submit(context.Background(), trust.SubmitRequest{
		Reviewer:      reviewer,
		Opponent:      opponent,
		ChallengeID:   id,
		Honesty:       5,
		Fairness:      5,
		Sportsmanship: 5,
		TrustScore10:  9,
	})
	require.NoError(t, err)
}

func TestChallengeScenario(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	c := f.create(t, "alice")
	assert.Equal(t, challenge.StatusActive, c.Status)

	c = f.join(t, c.ID, "bob")
	assert.Equal(t, challenge.StatusInProgress, c.Status)
	assert.Equal(t, []string{"alice", "bob"}, c.Players)

	_, err := f.submit(t, c.ID, "alice", true)
	require.NoError(t, err)

	c, err = f.submit(t, c.ID, "bob", false)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusCompleted, c.Status)
	assert.Equal(t, "alice", c.Winner)

	_, err = f.claim(c.ID, "alice")
	require.ErrorIs(t, err, challenge.ErrReviewRequired)

	f.review(t, c.ID, "alice", "bob")

	c, err = f.claim(c.ID, "alice")
	require.NoError(t, err)
	assert.True(t, c.Payout.Paid)
	assert.Equal(t, "release-sig", c.Payout.Signature)
	assert.Equal(t, 19*common.OneToken, c.Payout.Amount)

	_, err = f.claim(c.ID, "alice")
	require.ErrorIs(t, err, challenge.ErrAlreadyPaid)
	assert.Equal(t, 1, f.escrow.releases)

	outcome := <-f.outcomes
	assert.Equal(t, "alice", outcome.Winner)
	assert.Equal(t, "bob", outcome.Loser)

	n, err := f.store.Notification(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, string(challenge.StatusCompleted), n.Status)
}

func TestOneOpenChallengePerWallet(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	first := f.create(t, "alice")

	_, err := f.service.Create(ctx, &challenge.CreateRequest{
		Creator: "alice", Title: "again", Game: "FIFA 24",
		EntryFee: common.OneToken, EscrowRef: "escrow-2",
	})
	require.ErrorIs(t, err, challenge.ErrActiveChallengeExists)

	other := f.create(t, "carol")

	_, err = f.service.Join(ctx, &challenge.JoinRequest{
		ChallengeID: other.ID, Wallet: "alice", DepositSignature: "sig",
	})
	require.ErrorIs(t, err, challenge.ErrActiveChallengeExists)

	f.join(t, first.ID, "bob")

	allowed, err := f.service.CanCreate(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, allowed)

	challenges, err := f.service.Challenges(ctx)
	require.NoError(t, err)

	for _, wallet := range []string{"alice", "bob", "carol"} {
		open := 0

		for _, c := range challenges {
			if c.Status.IsOpen() && c.HasPlayer(wallet) {
				open++
			}
		}

		assert.LessOrEqual(t, open, 1, wallet)
	}
}

func TestJoinChecksEscrow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	c := f.create(t, "alice")

	_, err := f.service.Join(ctx, &challenge.JoinRequest{ChallengeID: c.ID, Wallet: "bob"})
	require.ErrorIs(t, err, challenge.ErrMissingSignature)

	f.escrow.verifyErr = &escrow.Error{Kind: escrow.KindUnconfirmed, Op: "deposit"}

	_, err = f.service.Join(ctx, &challenge.JoinRequest{ChallengeID: c.ID, Wallet: "bob", DepositSignature: "sig"})
	require.ErrorIs(t, err, challenge.ErrEntryFeeNotConfirmed)

	f.escrow.verifyErr = nil
	f.escrow.status = escrow.StatusCancelled

	_, err = f.service.Join(ctx, &challenge.JoinRequest{ChallengeID: c.ID, Wallet: "bob", DepositSignature: "sig"})
	require.ErrorIs(t, err, challenge.ErrNotOpen)

	stored, err := f.service.Challenge(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, stored.Players)
}

func TestSubmitResultIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	c := f.create(t, "alice")
	f.join(t, c.ID, "bob")

	first, err := f.submit(t, c.ID, "alice", true)
	require.NoError(t, err)

	again, err := f.submit(t, c.ID, "alice", true)
	require.ErrorIs(t, err, challenge.ErrAlreadySubmitted)
	assert.Equal(t, first.Results, again.Results)
	assert.Equal(t, challenge.StatusInProgress, again.Status)
}

func TestDoubleClaimInFlight(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	c := f.create(t, "alice")
	f.join(t, c.ID, "bob")
	_, err := f.submit(t, c.ID, "alice", true)
	require.NoError(t, err)
	_, err = f.submit(t, c.ID, "bob", false)
	require.NoError(t, err)
	f.review(t, c.ID, "alice", "bob")

	entered, release := f.escrow.hold()

	done := make(chan error, 1)

	go func() {
		_, err := f.claim(c.ID, "alice")
		done <- err
	}()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("first claim never reached escrow")
	}

	_, err = f.claim(c.ID, "alice")
	require.ErrorIs(t, err, challenge.ErrOperationInFlight)

	release()
	require.NoError(t, <-done)

	f.escrow.mu.Lock()
	defer f.escrow.mu.Unlock()
	assert.Equal(t, 1, f.escrow.releases)
}

func TestClaimAlreadyProcessedMarksPaid(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	c := f.create(t, "alice")
	f.join(t, c.ID, "bob")
	_, err := f.submit(t, c.ID, "bob", true)
	require.NoError(t, err)
	_, err = f.submit(t, c.ID, "alice", false)
	require.NoError(t, err)
	f.review(t, c.ID, "bob", "alice")

	f.escrow.releaseErr = &escrow.Error{Kind: escrow.KindAlreadyProcessed, Op: "release"}

	c, err = f.claim(c.ID, "bob")
	require.ErrorIs(t, err, challenge.ErrAlreadyProcessed)
	assert.Equal(t, challenge.KindIdempotent, challenge.KindOf(err))
	assert.True(t, c.Payout.Paid)
}

func TestClaimPendingKeepsSignature(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	c := f.create(t, "alice")
	f.join(t, c.ID, "bob")
	_, err := f.submit(t, c.ID, "alice", true)
	require.NoError(t, err)
	_, err = f.submit(t, c.ID, "bob", false)
	require.NoError(t, err)
	f.review(t, c.ID, "alice", "bob")

	f.escrow.releaseErr = &escrow.Error{Kind: escrow.KindPending, Op: "release", Signature: "pending-sig"}

	c, err = f.claim(c.ID, "alice")
	require.ErrorIs(t, err, challenge.ErrPayoutPending)
	assert.False(t, c.Payout.Paid)
	assert.Equal(t, "pending-sig", c.Payout.PendingSignature)
}

func TestLossReportedFirstDecidesMatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	c := f.create(t, "alice")
	f.join(t, c.ID, "bob")

	c, err := f.submit(t, c.ID, "bob", false)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusCompleted, c.Status)
	assert.Equal(t, "alice", c.Winner)
	assert.True(t, c.Results["alice"].Auto)

	c, err = f.submit(t, c.ID, "alice", false)
	require.ErrorIs(t, err, challenge.ErrAlreadySubmitted)
	assert.Equal(t, "alice", c.Winner)

	outcome := <-f.outcomes
	assert.Equal(t, "alice", outcome.Winner)
	assert.Equal(t, "bob", outcome.Loser)
}

func TestTieIsRefundedNotClaimed(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	c := f.create(t, "alice")
	f.join(t, c.ID, "bob")
	_, err := f.submit(t, c.ID, "alice", true)
	require.NoError(t, err)
	_, err = f.submit(t, c.ID, "bob", true)
	require.NoError(t, err)

	c, err = f.service.ResolveDispute(ctx, &challenge.ResolveDisputeRequest{ChallengeID: c.ID, Admin: "admin", Winner: challenge.WinnerTie})
	require.NoError(t, err)
	assert.Equal(t, challenge.WinnerTie, c.Winner)
	assert.True(t, c.Payout.RefundDue)

	_, err = f.claim(c.ID, "alice")
	require.ErrorIs(t, err, challenge.ErrNoWinner)
	assert.Empty(t, f.outcomes)

	_, err = f.service.RecordRefund(ctx, &challenge.RefundRequest{ChallengeID: c.ID, Admin: "alice"})
	require.ErrorIs(t, err, challenge.ErrNotAdmin)

	c, err = f.service.RecordRefund(ctx, &challenge.RefundRequest{ChallengeID: c.ID, Admin: "admin", Signature: "refund-sig"})
	require.NoError(t, err)
	assert.True(t, c.Payout.Refunded)
	assert.False(t, c.Payout.RefundDue)

	c, err = f.service.RecordRefund(ctx, &challenge.RefundRequest{ChallengeID: c.ID, Admin: "admin", Signature: "refund-sig"})
	require.ErrorIs(t, err, challenge.ErrAlreadyRefunded)
	assert.Equal(t, challenge.KindIdempotent, challenge.KindOf(err))
	assert.Equal(t, "refund-sig", c.Payout.RefundSignature)
}

func TestSilentDeadlineForfeits(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	c := f.create(t, "carol")
	f.join(t, c.ID, "dave")

	f.clock.Advance(3 * time.Hour)

	c, err := f.service.CheckDeadline(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusCompleted, c.Status)
	assert.Equal(t, challenge.WinnerForfeit, c.Winner)
	assert.False(t, c.Payout.RefundDue)

	_, err = f.claim(c.ID, "carol")
	require.ErrorIs(t, err, challenge.ErrNoWinner)
	assert.Empty(t, f.outcomes)
}

type fakeProofs map[string]receiver.ProofIndex

func (p fakeProofs) Proof(_ context.Context, proofID string) (*receiver.ProofIndex, error) {
	index, ok := p[proofID]
	if !ok {
		return nil, receiver.ErrProofNotFound
	}

	return &index, nil
}

func TestSubmitResultChecksProofOwner(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	c := f.create(t, "alice")
	f.join(t, c.ID, "bob")

	f.service.Proofs = fakeProofs{
		"p-alice": {ProofID: "p-alice", ChallengeID: c.ID, Wallet: "alice"},
		"p-other": {ProofID: "p-other", ChallengeID: "another", Wallet: "alice"},
	}

	submit := func(wallet, proofID string) error {
		_, err := f.service.SubmitResult(ctx, &challenge.SubmitResultRequest{
			ChallengeID: c.ID,
			Wallet:      wallet,
			DidWin:      true,
			ProofID:     proofID,
		})

		//nolint:wrapcheck
		return err
	}

	require.ErrorIs(t, submit("alice", "p-missing"), challenge.ErrUnknownProof)
	require.ErrorIs(t, submit("alice", "p-other"), challenge.ErrProofMismatch)
	require.ErrorIs(t, submit("bob", "p-alice"), challenge.ErrProofMismatch)
	require.NoError(t, submit("alice", "p-alice"))

	stored, err := f.service.Challenge(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "p-alice", stored.Results["alice"].ProofID)
	assert.NotContains(t, stored.Results, "bob")
}

func TestDisputeResolution(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	c := f.create(t, "alice")
	f.join(t, c.ID, "bob")
	_, err := f.submit(t, c.ID, "alice", true)
	require.NoError(t, err)

	c, err = f.submit(t, c.ID, "bob", true)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusDisputed, c.Status)

	_, err = f.service.ResolveDispute(ctx, &challenge.ResolveDisputeRequest{ChallengeID: c.ID, Admin: "bob", Winner: "bob"})
	require.ErrorIs(t, err, challenge.ErrNotAdmin)

	_, err = f.service.ResolveDispute(ctx, &challenge.ResolveDisputeRequest{ChallengeID: c.ID, Admin: "admin", Winner: "carol"})
	require.ErrorIs(t, err, challenge.ErrInvalidWinner)

	c, err = f.service.ResolveDispute(ctx, &challenge.ResolveDisputeRequest{ChallengeID: c.ID, Admin: "admin", Winner: "bob"})
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusCompleted, c.Status)
	assert.Equal(t, "bob", c.Winner)
}

func TestFounderChallenge(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	c, err := f.service.Create(ctx, &challenge.CreateRequest{Creator: "admin", Title: "founder cup", Game: "Madden 25"})
	require.NoError(t, err)
	assert.True(t, c.IsFounder())

	c, err = f.service.Join(ctx, &challenge.JoinRequest{ChallengeID: c.ID, Wallet: "bob", FreeEntry: true})
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusInProgress, c.Status)

	_, err = f.submit(t, c.ID, "bob", true)
	require.NoError(t, err)
	_, err = f.submit(t, c.ID, "admin", false)
	require.NoError(t, err)
	f.review(t, c.ID, "bob", "admin")

	_, err = f.claim(c.ID, "bob")
	require.ErrorIs(t, err, challenge.ErrFounderManualPayout)

	c, err = f.service.RecordFounderPayout(ctx, &challenge.FounderPayoutRequest{
		ChallengeID: c.ID, Admin: "admin", Amount: 50 * common.OneToken, Signature: "manual",
	})
	require.NoError(t, err)
	assert.True(t, c.Payout.Paid)
	assert.True(t, c.Payout.Manual)

	_, err = f.claim(c.ID, "bob")
	require.ErrorIs(t, err, challenge.ErrAlreadyPaid)
}

func TestMutualCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	c := f.create(t, "alice")
	f.join(t, c.ID, "bob")

	_, cancelled, err := f.service.Cancel(ctx, &challenge.CancelRequest{ChallengeID: c.ID, Wallet: "alice"})
	require.NoError(t, err)
	assert.False(t, cancelled)

	c, cancelled, err = f.service.Cancel(ctx, &challenge.CancelRequest{ChallengeID: c.ID, Wallet: "bob"})
	require.NoError(t, err)
	assert.True(t, cancelled)
	assert.Equal(t, challenge.StatusCancelled, c.Status)

	allowed, err := f.service.CanCreate(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestSweep(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	stale := f.create(t, "alice")
	live := f.create(t, "carol")
	f.join(t, live.ID, "dave")
	_, err := f.submit(t, live.ID, "dave", true)
	require.NoError(t, err)

	f.clock.Advance(3 * time.Hour)

	report, err := f.service.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Settled)
	assert.Zero(t, report.Expired)

	settled, err := f.service.Challenge(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusCompleted, settled.Status)
	assert.Equal(t, "dave", settled.Winner)

	f.clock.Advance(24 * time.Hour)

	report, err = f.service.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Expired)

	expired, err := f.service.Challenge(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusExpired, expired.Status)

	f.clock.Advance(48 * time.Hour)

	pruned, err := f.service.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	_, err = f.service.Challenge(ctx, stale.ID)
	require.ErrorIs(t, err, challenge.ErrNotFound)
}

func TestSyncStatusNeverReopensCompleted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	c := f.create(t, "alice")
	f.join(t, c.ID, "bob")
	_, err := f.submit(t, c.ID, "alice", true)
	require.NoError(t, err)
	_, err = f.submit(t, c.ID, "bob", false)
	require.NoError(t, err)

	f.escrow.status = escrow.StatusInProgress

	c, err = f.service.SyncStatus(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusCompleted, c.Status)
}

func TestTeamOnlyChallenge(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	req := &challenge.CreateRequest{
		Creator: "alice", Title: "squads", Game: "Call of Duty",
		EntryFee: common.OneToken, EscrowRef: "escrow-team", TeamOnly: true,
	}

	_, err := f.service.Create(ctx, req)
	require.ErrorIs(t, err, challenge.ErrTeamRequired)

	team, err := f.service.CreateTeam(ctx, &challenge.TeamRequest{Key: "alice", Name: "Alpha"})
	require.NoError(t, err)

	_, err = f.service.AddTeamMember(ctx, &challenge.TeamMemberRequest{TeamID: team.ID, Key: "bob", Member: "carol"})
	require.ErrorIs(t, err, challenge.ErrNotTeamOwner)

	team, err = f.service.AddTeamMember(ctx, &challenge.TeamMemberRequest{TeamID: team.ID, Key: "alice", Member: "carol"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "carol"}, team.Members)

	c, err := f.service.Create(ctx, req)
	require.NoError(t, err)

	_, err = f.service.Join(ctx, &challenge.JoinRequest{ChallengeID: c.ID, Wallet: "bob", DepositSignature: "sig"})
	require.ErrorIs(t, err, challenge.ErrTeamRequired)
}
