// Package challenge runs the lifecycle of wagered challenges: creation,
// joining, result reporting, settlement and prize claims.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/do/v2"
	"github.com/usdfg/arena/internal/pkg/common"
	"github.com/usdfg/arena/internal/pkg/escrow"
	"github.com/usdfg/arena/internal/pkg/notify"
	"github.com/usdfg/arena/internal/pkg/receiver"
	"github.com/usdfg/arena/internal/pkg/scorer"
)

var (
	challengesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_challenges_created_total",
		Help: "Challenges created",
	})

	challengeTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_challenge_transitions_total",
		Help: "Challenge status transitions by target status",
	}, []string{"status"})

	prizeClaims = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_prize_claims_total",
		Help: "Prize claim attempts by result",
	}, []string{"result"})
)

var errUnchanged = errors.New("unchanged")

type Options struct {
	Repo        Repository
	Teams       TeamStore
	Escrow      Escrow
	Notifier    Notifier
	Reviews     ReviewChecker
	Proofs      ProofChecker
	OutcomeSink chan<- scorer.Outcome
	Rules       *common.Rules
	Logger      *slog.Logger

	SweepInterval time.Duration
	Now           func() time.Time
}

type ChallengeService struct {
	Repo        Repository
	Teams       TeamStore
	Escrow      Escrow
	Notifier    Notifier
	Reviews     ReviewChecker
	Proofs      ProofChecker
	OutcomeSink chan<- scorer.Outcome
	Rules       *common.Rules

	SweepInterval time.Duration

	guard *inFlight
	// slotMu serializes the one-open-challenge check with the write that
	// takes the slot.
	slotMu sync.Mutex
	logger *slog.Logger
	now    func() time.Time
	stop   chan struct{}
}

func New(opts Options) *ChallengeService {
	rules := opts.Rules
	if rules == nil {
		rules = common.DefaultRules()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &ChallengeService{
		Repo:          opts.Repo,
		Teams:         opts.Teams,
		Escrow:        opts.Escrow,
		Notifier:      opts.Notifier,
		Reviews:       opts.Reviews,
		Proofs:        opts.Proofs,
		OutcomeSink:   opts.OutcomeSink,
		Rules:         rules,
		SweepInterval: opts.SweepInterval,
		guard:         newInFlight(),
		logger:        logger,
		now:           now,
		stop:          make(chan struct{}),
	}
}

func NewChallengeService(i do.Injector) (*ChallengeService, error) {
	result := New(Options{
		Repo:          do.MustInvokeAs[Repository](i),
		Teams:         do.MustInvokeAs[TeamStore](i),
		Escrow:        do.MustInvokeAs[Escrow](i),
		Notifier:      do.MustInvoke[*notify.NotifierService](i),
		Reviews:       do.MustInvokeAs[ReviewChecker](i),
		Proofs:        do.MustInvokeAs[ProofChecker](i),
		OutcomeSink:   do.MustInvokeNamed[chan<- scorer.Outcome](i, "outcome-sink"),
		Rules:         do.MustInvokeNamed[*common.Rules](i, "rules"),
		Logger:        common.Logger(i).With("service", "challenge"),
		SweepInterval: do.MustInvokeNamed[time.Duration](i, "sweep-interval"),
	})

	err := result.registerRoutes(i)
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *ChallengeService) begin(id string) (func(), error) {
	if !s.guard.acquire(id) {
		return nil, fmt.Errorf("%w: %s", ErrOperationInFlight, id)
	}

	return func() { s.guard.release(id) }, nil
}

// transition applies fn to the stored challenge, then announces a status
// change and forwards a newly decided winner to the scorer.
func (s *ChallengeService) transition(ctx context.Context, id string, fn func(c *Challenge) error) (*Challenge, error) {
	var previous Status

	updated, err := s.Repo.Update(ctx, id, func(c *Challenge) error {
		previous = c.Status

		return fn(c)
	})
	if err != nil {
		return updated, err
	}

	if updated.Status != previous {
		challengeTransitions.WithLabelValues(string(updated.Status)).Inc()
		s.announce(ctx, updated)

		if updated.Status == StatusCompleted {
			s.forwardOutcome(ctx, updated)
		}
	}

	return updated, nil
}

func (s *ChallengeService) announce(ctx context.Context, c *Challenge) {
	if s.Notifier == nil {
		return
	}

	_, err := s.Notifier.Notify(ctx, notify.Notification{
		ID:        c.ID,
		Kind:      notify.KindChallenge,
		Status:    string(c.Status),
		Wallets:   c.Players,
		Detail:    c.Title,
		UpdatedAt: s.now(),
	})
	if err != nil {
		s.logger.Warn("failed to record challenge notification", "challenge", c.ID, "error", err)
	}
}

func (s *ChallengeService) forwardOutcome(ctx context.Context, c *Challenge) {
	if s.OutcomeSink == nil || !c.HasWinner() {
		return
	}

	loser, ok := c.Opponent(c.Winner)
	if !ok {
		return
	}

	select {
	case s.OutcomeSink <- scorer.Outcome{
		ChallengeID: c.ID,
		Winner:      c.Winner,
		Loser:       loser,
		Prize:       c.PrizePool,
		Game:        c.Game,
		Category:    c.Category,
	}:
	case <-ctx.Done():
		s.logger.Warn("dropped challenge outcome", "challenge", c.ID)
	}
}

// escrowError maps an escrow failure onto this package's errors. fallback
// covers escrow errors of unknown kind.
func escrowError(err error, fallback error) error {
	switch escrow.KindOf(err) {
	case escrow.KindInsufficientFunds:
		return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
	case escrow.KindAlreadyProcessed:
		return fmt.Errorf("%w: %w", ErrAlreadyProcessed, err)
	case escrow.KindExpired:
		return fmt.Errorf("%w: %w", ErrEscrowExpired, err)
	case escrow.KindNotOpen:
		return fmt.Errorf("%w: %w", ErrNotOpen, err)
	case escrow.KindNotFound, escrow.KindUnconfirmed:
		return fmt.Errorf("%w: %w", ErrEntryFeeNotConfirmed, err)
	case escrow.KindPending:
		return fmt.Errorf("%w: %w", ErrPayoutPending, err)
	case escrow.KindTimeout:
		return fmt.Errorf("%w: %w", ErrEscrowUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", fallback, err)
	}
}

func (s *ChallengeService) requireOpenEscrow(ctx context.Context, ref string) error {
	status, err := s.Escrow.Status(ctx, ref)
	if err != nil {
		return escrowError(err, ErrEscrowUnavailable)
	}

	if status != escrow.StatusOpen {
		return fmt.Errorf("%w: escrow is %s", ErrNotOpen, status)
	}

	return nil
}

func (s *ChallengeService) requireTeam(ctx context.Context, wallet string) error {
	if s.Teams == nil {
		return ErrTeamRequired
	}

	team, err := s.Teams.TeamOf(ctx, wallet)
	if err != nil {
		return fmt.Errorf("failed to look up team of %s: %w", wallet, err)
	}

	if team == nil {
		return ErrTeamRequired
	}

	return nil
}

func (s *ChallengeService) Challenge(ctx context.Context, id string) (*Challenge, error) {
	//nolint:wrapcheck
	return s.Repo.Get(ctx, id)
}

func (s *ChallengeService) Challenges(ctx context.Context) ([]Challenge, error) {
	//nolint:wrapcheck
	return s.Repo.List(ctx)
}

func (s *ChallengeService) CanCreate(ctx context.Context, wallet string) (bool, error) {
	challenges, err := s.Repo.List(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list challenges: %w", err)
	}

	return CanCreate(challenges, wallet), nil
}

func (s *ChallengeService) Create(ctx context.Context, req *CreateRequest) (*Challenge, error) {
	err := req.Validate()
	if err != nil {
		return nil, err
	}

	if req.TeamOnly {
		err = s.requireTeam(ctx, req.Creator)
		if err != nil {
			return nil, err
		}
	}

	if req.EntryFee > 0 {
		err = s.requireOpenEscrow(ctx, req.EscrowRef)
		if err != nil {
			return nil, err
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate challenge id: %w", err)
	}

	c, err := NewChallenge(req, s.Rules, id.String(), s.now())
	if err != nil {
		return nil, err
	}

	s.slotMu.Lock()
	defer s.slotMu.Unlock()

	challenges, err := s.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}

	if active, ok := ActiveChallengeOf(challenges, req.Creator); ok {
		return nil, fmt.Errorf("%w: %s", ErrActiveChallengeExists, active)
	}

	err = s.Repo.Create(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}

	challengesCreated.Inc()
	s.announce(ctx, c)
	s.logger.Info("challenge created", "challenge", c.ID, "creator", c.Creator, "entry_fee", c.EntryFee)

	return c, nil
}

//nolint:cyclop,funlen
func (s *ChallengeService) Join(ctx context.Context, req *JoinRequest) (*Challenge, error) {
	err := req.Validate()
	if err != nil {
		return nil, err
	}

	done, err := s.begin(req.ChallengeID)
	if err != nil {
		return nil, err
	}
	defer done()

	c, err := s.Repo.Get(ctx, req.ChallengeID)
	if err != nil {
		return nil, err
	}

	err = CheckJoin(c, req.Wallet, s.now())
	if err != nil {
		return c, err
	}

	if c.TeamOnly {
		err = s.requireTeam(ctx, req.Wallet)
		if err != nil {
			return c, err
		}
	}

	if !c.IsFounder() {
		if req.FreeEntry || req.DepositSignature == "" {
			return c, ErrMissingSignature
		}

		err = s.requireOpenEscrow(ctx, c.EscrowRef)
		if err != nil {
			return c, err
		}

		err = s.Escrow.VerifyDeposit(ctx, c.EscrowRef, req.Wallet, req.DepositSignature)
		if err != nil {
			return c, escrowError(err, ErrEntryFeeNotConfirmed)
		}
	}

	s.slotMu.Lock()
	defer s.slotMu.Unlock()

	challenges, err := s.Repo.List(ctx)
	if err != nil {
		return c, fmt.Errorf("failed to list challenges: %w", err)
	}

	if active, ok := ActiveChallengeOf(challenges, req.Wallet); ok {
		return c, fmt.Errorf("%w: %s", ErrActiveChallengeExists, active)
	}

	updated, err := s.transition(ctx, req.ChallengeID, func(c *Challenge) error {
		return ApplyJoin(c, req.Wallet, s.now(), s.Rules.ResultWindow.Duration)
	})
	if err != nil {
		return updated, err
	}

	s.logger.Info("challenge joined", "challenge", updated.ID, "wallet", req.Wallet, "status", updated.Status)

	return updated, nil
}

// SubmitResult records a main challenger's report. A repeated report leaves
// the record untouched and returns ErrAlreadySubmitted with it.
func (s *ChallengeService) SubmitResult(ctx context.Context, req *SubmitResultRequest) (*Challenge, error) {
	err := req.Validate()
	if err != nil {
		return nil, err
	}

	done, err := s.begin(req.ChallengeID)
	if err != nil {
		return nil, err
	}
	defer done()

	err = s.requireProof(ctx, req)
	if err != nil {
		return nil, err
	}

	//nolint:wrapcheck
	return s.transition(ctx, req.ChallengeID, func(c *Challenge) error {
		return RecordResult(c, req.Wallet, req.DidWin, req.ProofID, s.now())
	})
}

// requireProof checks that the referenced proof was uploaded by the reporting
// wallet for this challenge.
func (s *ChallengeService) requireProof(ctx context.Context, req *SubmitResultRequest) error {
	if req.ProofID == "" || s.Proofs == nil {
		return nil
	}

	proof, err := s.Proofs.Proof(ctx, req.ProofID)
	if errors.Is(err, receiver.ErrProofNotFound) || errors.Is(err, receiver.ErrInvalidProofID) {
		return fmt.Errorf("%w: %s", ErrUnknownProof, req.ProofID)
	}

	if err != nil {
		return fmt.Errorf("failed to look up proof %s: %w", req.ProofID, err)
	}

	if proof.ChallengeID != req.ChallengeID || proof.Wallet != req.Wallet {
		return fmt.Errorf("%w: %s", ErrProofMismatch, req.ProofID)
	}

	return nil
}

func (s *ChallengeService) AutoWin(ctx context.Context, req *AutoWinRequest) (*Challenge, error) {
	err := req.Validate()
	if err != nil {
		return nil, err
	}

	done, err := s.begin(req.ChallengeID)
	if err != nil {
		return nil, err
	}
	defer done()

	//nolint:wrapcheck
	return s.transition(ctx, req.ChallengeID, func(c *Challenge) error {
		return ApplyAutoWin(c, req.Wallet, s.now())
	})
}

// Claim releases the prize to the winner. An escrow that already paid out
// marks the prize paid and returns ErrAlreadyProcessed with the record.
//
//nolint:cyclop,funlen
func (s *ChallengeService) Claim(ctx context.Context, req *ClaimRequest) (*Challenge, error) {
	err := req.Validate()
	if err != nil {
		return nil, err
	}

	done, err := s.begin(req.ChallengeID)
	if err != nil {
		return nil, err
	}
	defer done()

	c, err := s.Repo.Get(ctx, req.ChallengeID)
	if err != nil {
		return nil, err
	}

	reviewed := false

	if opponent, ok := c.Opponent(req.Wallet); ok && s.Reviews != nil {
		reviewed, err = s.Reviews.HasReviewed(ctx, req.Wallet, opponent, c.ID)
		if err != nil {
			return c, fmt.Errorf("failed to look up review: %w", err)
		}
	}

	err = CheckClaim(c, req.Wallet, reviewed)
	if err != nil {
		prizeClaims.WithLabelValues("rejected").Inc()

		return c, err
	}

	if req.SignedTransaction == "" {
		return c, ErrMissingSignature
	}

	signature, err := s.Escrow.Release(ctx, c.EscrowRef, req.Wallet, req.SignedTransaction)

	switch {
	case err == nil:
		prizeClaims.WithLabelValues("paid").Inc()

		//nolint:wrapcheck
		return s.transition(ctx, c.ID, func(c *Challenge) error {
			return MarkPaid(c, signature, s.now())
		})
	case escrow.KindOf(err) == escrow.KindAlreadyProcessed:
		prizeClaims.WithLabelValues("already-processed").Inc()

		updated, markErr := s.transition(ctx, c.ID, func(c *Challenge) error {
			return MarkPaid(c, "", s.now())
		})
		if markErr != nil && !errors.Is(markErr, ErrAlreadyPaid) {
			return updated, markErr
		}

		return updated, escrowError(err, ErrEscrowUnavailable)
	case escrow.KindOf(err) == escrow.KindPending:
		prizeClaims.WithLabelValues("pending").Inc()

		var escrowErr *escrow.Error
		if errors.As(err, &escrowErr) {
			signature = escrowErr.Signature
		}

		updated, markErr := s.transition(ctx, c.ID, func(c *Challenge) error {
			c.Payout.PendingSignature = signature
			c.UpdatedAt = s.now()

			return nil
		})
		if markErr != nil {
			return updated, markErr
		}

		return updated, escrowError(err, ErrEscrowUnavailable)
	default:
		prizeClaims.WithLabelValues("failed").Inc()
		s.logger.Error("prize release failed", "challenge", c.ID, "error", err)

		return c, escrowError(err, ErrEscrowUnavailable)
	}
}

func (s *ChallengeService) Expire(ctx context.Context, id string) (*Challenge, error) {
	done, err := s.begin(id)
	if err != nil {
		return nil, err
	}
	defer done()

	//nolint:wrapcheck
	return s.transition(ctx, id, func(c *Challenge) error {
		return ApplyExpire(c, s.now())
	})
}

func (s *ChallengeService) CheckDeadline(ctx context.Context, id string) (*Challenge, error) {
	done, err := s.begin(id)
	if err != nil {
		return nil, err
	}
	defer done()

	//nolint:wrapcheck
	return s.transition(ctx, id, func(c *Challenge) error {
		return ApplyDeadline(c, s.now())
	})
}

// Cancel records a cancellation request. The boolean reports whether the
// challenge is now cancelled.
func (s *ChallengeService) Cancel(ctx context.Context, req *CancelRequest) (*Challenge, bool, error) {
	err := req.Validate()
	if err != nil {
		return nil, false, err
	}

	done, err := s.begin(req.ChallengeID)
	if err != nil {
		return nil, false, err
	}
	defer done()

	cancelled := false

	updated, err := s.transition(ctx, req.ChallengeID, func(c *Challenge) error {
		var err error

		cancelled, err = ApplyCancel(c, req.Wallet, s.now())

		return err
	})

	return updated, cancelled, err
}

func (s *ChallengeService) requireAdmin(wallet string) error {
	if !s.Rules.IsAdmin(wallet) {
		return ErrNotAdmin
	}

	return nil
}

func (s *ChallengeService) ResolveDispute(ctx context.Context, req *ResolveDisputeRequest) (*Challenge, error) {
	err := req.Validate()
	if err != nil {
		return nil, err
	}

	err = s.requireAdmin(req.Admin)
	if err != nil {
		return nil, err
	}

	done, err := s.begin(req.ChallengeID)
	if err != nil {
		return nil, err
	}
	defer done()

	//nolint:wrapcheck
	return s.transition(ctx, req.ChallengeID, func(c *Challenge) error {
		return ApplyDisputeResolution(c, req.Winner, s.now())
	})
}

func (s *ChallengeService) RecordFounderPayout(ctx context.Context, req *FounderPayoutRequest) (*Challenge, error) {
	err := req.Validate()
	if err != nil {
		return nil, err
	}

	err = s.requireAdmin(req.Admin)
	if err != nil {
		return nil, err
	}

	done, err := s.begin(req.ChallengeID)
	if err != nil {
		return nil, err
	}
	defer done()

	updated, err := s.transition(ctx, req.ChallengeID, func(c *Challenge) error {
		return ApplyFounderPayout(c, req.Amount, req.Signature, s.now())
	})
	if err != nil {
		return updated, err
	}

	s.logger.Info("founder prize recorded", "challenge", updated.ID, "winner", updated.Winner, "amount", req.Amount)

	return updated, nil
}

// RecordRefund marks a tie's entry fees as returned by the admin.
func (s *ChallengeService) RecordRefund(ctx context.Context, req *RefundRequest) (*Challenge, error) {
	err := req.Validate()
	if err != nil {
		return nil, err
	}

	err = s.requireAdmin(req.Admin)
	if err != nil {
		return nil, err
	}

	done, err := s.begin(req.ChallengeID)
	if err != nil {
		return nil, err
	}
	defer done()

	updated, err := s.transition(ctx, req.ChallengeID, func(c *Challenge) error {
		return ApplyRefund(c, req.Signature, s.now())
	})
	if err != nil {
		return updated, err
	}

	s.logger.Info("refund recorded", "challenge", updated.ID, "signature", req.Signature)

	return updated, nil
}

// SyncStatus pulls the escrow account's status into the stored record.
func (s *ChallengeService) SyncStatus(ctx context.Context, id string) (*Challenge, error) {
	done, err := s.begin(id)
	if err != nil {
		return nil, err
	}
	defer done()

	c, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if c.EscrowRef == "" {
		return c, nil
	}

	status, err := s.Escrow.Status(ctx, c.EscrowRef)
	if err != nil {
		return c, escrowError(err, ErrEscrowUnavailable)
	}

	updated, err := s.transition(ctx, id, func(c *Challenge) error {
		if !ApplyChainStatus(c, status, s.now()) {
			return errUnchanged
		}

		return nil
	})
	if errors.Is(err, errUnchanged) {
		return updated, nil
	}

	return updated, err
}
