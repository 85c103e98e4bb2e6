package trust

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	"github.com/usdfg/arena/internal/pkg/challenge"
	"github.com/usdfg/arena/internal/pkg/common"
)

var (
	ErrMissingWallet      = errors.New("reviewer and opponent are required")
	ErrMissingChallengeID = errors.New("challenge id is required")
	ErrSelfReview         = errors.New("cannot review yourself")
	ErrInvalidRating      = errors.New("ratings must be between 1 and 5")
	ErrInvalidTrustScore  = errors.New("trust score must be between 0 and 10")
	ErrNotFinished        = errors.New("challenge is not finished")
	ErrNotOpponents       = errors.New("reviewer and opponent did not face each other in this challenge")
)

type Store interface {
	// PutReview reports false when the review already existed.
	PutReview(ctx context.Context, r Review) (bool, error)
	HasReview(ctx context.Context, key string) (bool, error)
	ReviewsFor(ctx context.Context, opponent string) ([]Review, error)
}

type ChallengeReader interface {
	Get(ctx context.Context, id string) (*challenge.Challenge, error)
}

type TrustService struct {
	Store      Store
	Challenges ChallengeReader

	logger *slog.Logger
	now    func() time.Time
}

func New(store Store, challenges ChallengeReader, logger *slog.Logger) *TrustService {
	return &TrustService{
		Store:      store,
		Challenges: challenges,
		logger:     logger,
		now:        time.Now,
	}
}

func NewTrustService(i do.Injector) (*TrustService, error) {
	store := do.MustInvokeAs[Store](i)
	challenges := do.MustInvokeAs[ChallengeReader](i)

	result := New(store, challenges, common.Logger(i).With("service", "trust"))

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(func(e *echo.Echo) {
		apiGroup := e.Group("/api")

		trustGroup := apiGroup.Group("/trust")

		trustGroup.POST("/reviews", result.PostReview)
		trustGroup.GET("/reviews/:wallet", result.GetReviews)
		trustGroup.GET("/scores/:wallet", result.GetScore)
	})

	return result, nil
}

// Submit stores a review of the reviewer's opponent in a finished challenge.
// A second review for the same pair and challenge leaves the first in place
// and reports created=false.
func (s *TrustService) Submit(ctx context.Context, req SubmitRequest) (*Review, bool, error) {
	err := req.Validate()
	if err != nil {
		return nil, false, err
	}

	c, err := s.Challenges.Get(ctx, req.ChallengeID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load challenge %s: %w", req.ChallengeID, err)
	}

	if c.Status != challenge.StatusCompleted && c.Status != challenge.StatusDisputed {
		return nil, false, fmt.Errorf("%w: status %s", ErrNotFinished, c.Status)
	}

	opponent, ok := c.Opponent(req.Reviewer)
	if !ok || opponent != req.Opponent {
		return nil, false, ErrNotOpponents
	}

	review := Review{
		Reviewer:      req.Reviewer,
		Opponent:      req.Opponent,
		ChallengeID:   req.ChallengeID,
		Honesty:       req.Honesty,
		Fairness:      req.Fairness,
		Sportsmanship: req.Sportsmanship,
		Tags:          req.Tags,
		TrustScore10:  req.TrustScore10,
		Comment:       req.Comment,
		CreatedAt:     s.now(),
	}

	created, err := s.Store.PutReview(ctx, review)
	if err != nil {
		return nil, false, fmt.Errorf("failed to store review: %w", err)
	}

	if created {
		s.logger.Info("review stored", "challenge", req.ChallengeID, "reviewer", req.Reviewer)
	}

	return &review, created, nil
}

func (s *TrustService) HasReviewed(ctx context.Context, reviewer, opponent, challengeID string) (bool, error) {
	found, err := s.Store.HasReview(ctx, Key(reviewer, opponent, challengeID))
	if err != nil {
		return false, fmt.Errorf("failed to look up review: %w", err)
	}

	return found, nil
}

// TrustScore averages the wallet's received trust scores, rounded to 0.1.
func (s *TrustService) TrustScore(ctx context.Context, wallet string) (*Score, error) {
	reviews, err := s.Store.ReviewsFor(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to read reviews of %s: %w", wallet, err)
	}

	score := &Score{Wallet: wallet, Reviews: len(reviews)}
	if len(reviews) == 0 {
		return score, nil
	}

	total := 0.0
	for _, r := range reviews {
		total += r.TrustScore10
	}

	score.Score = math.Round(total/float64(len(reviews))*10) / 10

	return score, nil
}

func (s *TrustService) PostReview(c echo.Context) error {
	var req SubmitRequest

	err := c.Bind(&req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	review, created, err := s.Submit(c.Request().Context(), req)

	switch {
	case errors.Is(err, ErrMissingWallet), errors.Is(err, ErrMissingChallengeID),
		errors.Is(err, ErrSelfReview), errors.Is(err, ErrInvalidRating), errors.Is(err, ErrInvalidTrustScore):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, challenge.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "challenge not found")
	case errors.Is(err, ErrNotFinished), errors.Is(err, ErrNotOpponents):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to submit review")
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}

	//nolint:wrapcheck
	return c.JSON(status, review)
}

func (s *TrustService) GetReviews(c echo.Context) error {
	reviews, err := s.Store.ReviewsFor(c.Request().Context(), c.Param("wallet"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read reviews")
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, reviews)
}

func (s *TrustService) GetScore(c echo.Context) error {
	score, err := s.TrustScore(c.Request().Context(), c.Param("wallet"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to compute trust score")
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, score)
}
