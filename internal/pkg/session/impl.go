// Package session keeps one explicit context per connected client and
// refreshes it from the store's snapshot streams.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	"github.com/usdfg/arena/internal/pkg/challenge"
	"github.com/usdfg/arena/internal/pkg/common"
)

var (
	ErrNotFound      = errors.New("session not found")
	ErrMissingWallet = errors.New("wallet is required")
)

type Snapshots interface {
	SubscribeChallenges(ctx context.Context) <-chan []challenge.Challenge
	SubscribeLocks(ctx context.Context) <-chan map[string]string
}

type BalanceReader interface {
	BalanceOrZero(ctx context.Context, owner string) int64
}

type SessionService struct {
	Snapshots Snapshots
	Balances  BalanceReader

	mu         sync.RWMutex
	sessions   map[string]*Session
	challenges []challenge.Challenge
	locks      map[string]string

	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

func New(snapshots Snapshots, balances BalanceReader, logger *slog.Logger) *SessionService {
	return &SessionService{
		Snapshots: snapshots,
		Balances:  balances,
		sessions:  map[string]*Session{},
		locks:     map[string]string{},
		logger:    logger,
	}
}

func NewSessionService(i do.Injector) (*SessionService, error) {
	snapshots := do.MustInvokeAs[Snapshots](i)
	balances := do.MustInvokeAs[BalanceReader](i)

	result := New(snapshots, balances, common.Logger(i).With("service", "session"))

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(func(e *echo.Echo) {
		apiGroup := e.Group("/api")

		sessionGroup := apiGroup.Group("/sessions")

		sessionGroup.POST("", result.PostSession)
		sessionGroup.GET("/:id", result.GetSession)
		sessionGroup.PUT("/:id", result.PutSession)
		sessionGroup.DELETE("/:id", result.DeleteSession)
	})

	return result, nil
}

// Start feeds every snapshot from the store to all open sessions.
func (s *SessionService) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	challenges := s.Snapshots.SubscribeChallenges(ctx)
	locks := s.Snapshots.SubscribeLocks(ctx)

	s.wg.Add(2)

	go func() {
		defer s.wg.Done()

		for snapshot := range challenges {
			s.applyChallenges(snapshot)
		}
	}()

	go func() {
		defer s.wg.Done()

		for snapshot := range locks {
			s.applyLocks(snapshot)
		}
	}()
}

func (s *SessionService) Shutdown() {
	if s.cancel != nil {
		s.cancel()
	}

	s.wg.Wait()
}

func (s *SessionService) applyChallenges(snapshot []challenge.Challenge) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenges = snapshot
	for _, session := range s.sessions {
		session.ApplyChallenges(snapshot)
	}
}

func (s *SessionService) applyLocks(snapshot map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.locks = snapshot
	for _, session := range s.sessions {
		session.ApplyLocks(maps.Clone(snapshot))
	}
}

// Open creates a session connected to wallet and seeded with the latest
// snapshots.
func (s *SessionService) Open(wallet string) (string, *Session, error) {
	if wallet == "" {
		return "", nil, ErrMissingWallet
	}

	id := uuid.NewString()
	session := NewSession()

	s.mu.Lock()
	defer s.mu.Unlock()

	session.ApplyChallenges(s.challenges)
	session.ApplyLocks(maps.Clone(s.locks))
	session.Connect(wallet)

	s.sessions[id] = session

	s.logger.Debug("session opened", "session", id, "wallet", wallet)

	return id, session, nil
}

func (s *SessionService) Session(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return session, nil
}

func (s *SessionService) Close(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	session.Disconnect()
	delete(s.sessions, id)

	return nil
}

// ViewOf returns the session's view with the wallet's token balance.
func (s *SessionService) ViewOf(ctx context.Context, session *Session) View {
	view := session.View()

	if view.Connected && s.Balances != nil {
		view.Balance = s.Balances.BalanceOrZero(ctx, view.Wallet)
	}

	return view
}

type sessionRequest struct {
	Wallet string `json:"wallet"`
}

type sessionResponse struct {
	ID   string `json:"id"`
	View View   `json:"view"`
}

func (s *SessionService) PostSession(c echo.Context) error {
	var req sessionRequest

	err := c.Bind(&req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	id, session, err := s.Open(req.Wallet)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusCreated, sessionResponse{ID: id, View: s.ViewOf(c.Request().Context(), session)})
}

func (s *SessionService) GetSession(c echo.Context) error {
	session, err := s.Session(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, sessionResponse{ID: c.Param("id"), View: s.ViewOf(c.Request().Context(), session)})
}

// PutSession switches the session to another wallet.
func (s *SessionService) PutSession(c echo.Context) error {
	var req sessionRequest

	err := c.Bind(&req)
	if err != nil || req.Wallet == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "wallet is required")
	}

	session, err := s.Session(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}

	session.Connect(req.Wallet)

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, sessionResponse{ID: c.Param("id"), View: s.ViewOf(c.Request().Context(), session)})
}

func (s *SessionService) DeleteSession(c echo.Context) error {
	err := s.Close(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}

	//nolint:wrapcheck
	return c.NoContent(http.StatusNoContent)
}
