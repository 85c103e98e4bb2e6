package matchmaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/do/v2"
	"github.com/usdfg/arena/internal/pkg/common"
	"github.com/usdfg/arena/internal/pkg/notify"
	"github.com/usdfg/arena/internal/pkg/scorer"
)

var (
	ErrMissingWallet   = errors.New("wallet is required")
	ErrSelfLock        = errors.New("cannot lock onto yourself")
	ErrNotMutual       = errors.New("wallets are not mutually locked")
	ErrMatchIDMismatch = errors.New("match id does not belong to these wallets")
)

var (
	lockToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_matchmaker_lock_toggles_total",
		Help: "Lock toggles by resulting state",
	}, []string{"state"})

	friendlyMatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_matchmaker_friendly_matches_total",
		Help: "Friendly matches resolved between mutually locked wallets",
	})
)

// LockRegistry holds at most one lock target per wallet.
type LockRegistry interface {
	Lock(ctx context.Context, wallet string) (string, error)
	// SetLock clears the wallet's lock when target is empty.
	SetLock(ctx context.Context, wallet, target string) error
	Locks(ctx context.Context) (map[string]string, error)
	SaveFriendlyResult(ctx context.Context, r FriendlyResult) error
}

type Notifier interface {
	Notify(ctx context.Context, n notify.Notification) (bool, error)
}

type MatchmakerService struct {
	Registry    LockRegistry
	Notifier    Notifier
	OutcomeSink chan<- scorer.Outcome

	// mu serializes toggles so a wallet never holds two targets.
	mu     sync.Mutex
	logger *slog.Logger
	now    func() time.Time
}

func New(registry LockRegistry, notifier Notifier, outcomeSink chan<- scorer.Outcome, logger *slog.Logger) *MatchmakerService {
	return &MatchmakerService{
		Registry:    registry,
		Notifier:    notifier,
		OutcomeSink: outcomeSink,
		logger:      logger,
		now:         time.Now,
	}
}

func NewMatchmakerService(i do.Injector) (*MatchmakerService, error) {
	registry := do.MustInvokeAs[LockRegistry](i)
	notifier := do.MustInvoke[*notify.NotifierService](i)
	outcomeSink := do.MustInvokeNamed[chan<- scorer.Outcome](i, "outcome-sink")

	result := New(registry, notifier, outcomeSink, common.Logger(i).With("service", "matchmaker"))

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(func(e *echo.Echo) {
		apiGroup := e.Group("/api")

		matchmakerGroup := apiGroup.Group("/matchmaker")

		matchmakerGroup.POST("/lock", result.PostLock)
		matchmakerGroup.GET("/locks/:wallet", result.GetLock)
		matchmakerGroup.GET("/state", result.GetState)
		matchmakerGroup.POST("/resolve", result.PostResolve)
	})

	return result, nil
}

// MatchID is the same for both orderings of a pair.
func MatchID(a, b string) string {
	if b < a {
		a, b = b, a
	}

	return "friendly-" + a + "-" + b
}

func IsMutual(locks map[string]string, a, b string) bool {
	if a == "" || b == "" || a == b {
		return false
	}

	return locks[a] == b && locks[b] == a
}

func StateOf(locks map[string]string, a, b string) State {
	aLocked := a != "" && locks[a] == b
	bLocked := b != "" && locks[b] == a

	switch {
	case aLocked && bLocked:
		return StateMutual
	case aLocked:
		return StateALocked
	case bLocked:
		return StateBLocked
	default:
		return StateNone
	}
}

func (s *MatchmakerService) notify(ctx context.Context, id, status string, wallets ...string) {
	_, err := s.Notifier.Notify(ctx, notify.Notification{
		ID:        id,
		Kind:      notify.KindLock,
		Status:    status,
		Wallets:   wallets,
		UpdatedAt: s.now(),
	})
	if err != nil {
		s.logger.Warn("failed to record lock notification", "id", id, "status", status, "error", err)
	}
}

// ToggleLock locks the initiator onto target, or clears the lock when it
// already points there. Moving the lock elsewhere cancels the previous pair.
func (s *MatchmakerService) ToggleLock(ctx context.Context, initiator, target string) (*ToggleResult, error) {
	if initiator == "" || target == "" {
		return nil, ErrMissingWallet
	}

	if initiator == target {
		return nil, ErrSelfLock
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Registry.Lock(ctx, initiator)
	if err != nil {
		return nil, fmt.Errorf("failed to read lock of %s: %w", initiator, err)
	}

	matchID := MatchID(initiator, target)

	if current == target {
		err = s.Registry.SetLock(ctx, initiator, "")
		if err != nil {
			return nil, fmt.Errorf("failed to clear lock of %s: %w", initiator, err)
		}

		s.notify(ctx, matchID, notify.StatusCancelled, initiator, target)
		lockToggles.WithLabelValues("cleared").Inc()

		return &ToggleResult{Initiator: initiator, Target: target, MatchID: matchID}, nil
	}

	err = s.Registry.SetLock(ctx, initiator, target)
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s onto %s: %w", initiator, target, err)
	}

	if current != "" {
		s.notify(ctx, MatchID(initiator, current), notify.StatusCancelled, initiator, current)
	}

	locks, err := s.Registry.Locks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read locks: %w", err)
	}

	mutual := IsMutual(locks, initiator, target)

	status := notify.StatusPending
	if mutual {
		status = notify.StatusAccepted
	}

	s.notify(ctx, matchID, status, initiator, target)
	lockToggles.WithLabelValues(status).Inc()

	return &ToggleResult{
		Initiator: initiator,
		Target:    target,
		Locked:    true,
		Mutual:    mutual,
		MatchID:   matchID,
	}, nil
}

func (s *MatchmakerService) State(ctx context.Context, a, b string) (State, error) {
	locks, err := s.Registry.Locks(ctx)
	if err != nil {
		return StateNone, fmt.Errorf("failed to read locks: %w", err)
	}

	return StateOf(locks, a, b), nil
}

// ResolveFriendlyMatch records the reporter's result for a mutually locked
// pair, releases both locks and hands the outcome to the scorer.
func (s *MatchmakerService) ResolveFriendlyMatch(ctx context.Context, req ResolveRequest) (*FriendlyResult, error) {
	if req.Reporter == "" || req.Opponent == "" {
		return nil, ErrMissingWallet
	}

	if req.MatchID != MatchID(req.Reporter, req.Opponent) {
		return nil, fmt.Errorf("%w: %s", ErrMatchIDMismatch, req.MatchID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	locks, err := s.Registry.Locks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read locks: %w", err)
	}

	if !IsMutual(locks, req.Reporter, req.Opponent) {
		return nil, ErrNotMutual
	}

	winner, loser := req.Opponent, req.Reporter
	if req.DidWin {
		winner, loser = req.Reporter, req.Opponent
	}

	result := FriendlyResult{
		MatchID:    req.MatchID,
		Reporter:   req.Reporter,
		Opponent:   req.Opponent,
		Winner:     winner,
		ReportedAt: s.now(),
	}

	err = s.Registry.SaveFriendlyResult(ctx, result)
	if err != nil {
		return nil, fmt.Errorf("failed to save friendly result: %w", err)
	}

	for _, wallet := range []string{req.Reporter, req.Opponent} {
		err = s.Registry.SetLock(ctx, wallet, "")
		if err != nil {
			return nil, fmt.Errorf("failed to clear lock of %s: %w", wallet, err)
		}
	}

	s.notify(ctx, req.MatchID, notify.StatusCompleted, req.Reporter, req.Opponent)
	friendlyMatches.Inc()

	if s.OutcomeSink != nil {
		select {
		case s.OutcomeSink <- scorer.Outcome{
			ChallengeID: req.MatchID,
			Winner:      winner,
			Loser:       loser,
			Friendly:    true,
		}:
		case <-ctx.Done():
			s.logger.Warn("dropped friendly outcome", "match", req.MatchID)
		}
	}

	return &result, nil
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrMissingWallet), errors.Is(err, ErrSelfLock), errors.Is(err, ErrMatchIDMismatch):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotMutual):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "matchmaker failure")
	}
}

func (s *MatchmakerService) PostLock(c echo.Context) error {
	var req ToggleRequest

	err := c.Bind(&req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := s.ToggleLock(c.Request().Context(), req.Initiator, req.Target)
	if err != nil {
		return httpError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, result)
}

func (s *MatchmakerService) GetLock(c echo.Context) error {
	wallet := c.Param("wallet")

	target, err := s.Registry.Lock(c.Request().Context(), wallet)
	if err != nil {
		return httpError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, map[string]string{
		"wallet": wallet,
		"target": target,
	})
}

// GetState reports the lock state of ?a= and ?b=.
func (s *MatchmakerService) GetState(c echo.Context) error {
	a, b := c.QueryParam("a"), c.QueryParam("b")
	if a == "" || b == "" {
		return httpError(ErrMissingWallet)
	}

	state, err := s.State(c.Request().Context(), a, b)
	if err != nil {
		return httpError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, map[string]any{
		"state":    state,
		"match_id": MatchID(a, b),
	})
}

func (s *MatchmakerService) PostResolve(c echo.Context) error {
	var req ResolveRequest

	err := c.Bind(&req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := s.ResolveFriendlyMatch(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, result)
}
