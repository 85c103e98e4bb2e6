package scorer

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"slices"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/do/v2"
	"github.com/usdfg/arena/internal/pkg/common"
	"go.etcd.io/bbolt"
)

const (
	DefaultRating = 1500.0

	defaultLeaderboardSize = 50
)

var (
	ErrRatingsBucketNotFound = errors.New("ratings bucket doesn't exist")
	ErrStatsBucketNotFound   = errors.New("stats bucket doesn't exist")
	ErrInvalidOutcome        = errors.New("outcome needs two distinct players")
)

var outcomesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "arena_scorer_outcomes_total",
	Help: "Resolved matches applied to player ratings",
}, []string{"kind"})

type ScorerService struct {
	DatabaseService *common.DatabaseService

	OutcomeSource <-chan Outcome

	logger *slog.Logger
}

func NewScorerService(i do.Injector) (*ScorerService, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)
	outcomeSource := do.MustInvokeNamed[<-chan Outcome](i, "outcome-source")

	result := &ScorerService{
		DatabaseService: databaseService,

		OutcomeSource: outcomeSource,

		logger: common.Logger(i).With("service", "scorer"),
	}

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(func(e *echo.Echo) {
		apiGroup := e.Group("/api")

		scorerGroup := apiGroup.Group("/scorer")

		scorerGroup.GET("/leaderboard", result.GetLeaderboard)
		scorerGroup.GET("/players/:wallet", result.GetScorecard)
		scorerGroup.GET("/games", result.GetGames)
	})

	return result, nil
}

func (s *ScorerService) Start() {
	go s.processOutcomes()
}

func GetKFactor(gamesPlayed int64) float64 {
	if gamesPlayed <= 20 {
		return 128.0
	}

	if gamesPlayed <= 50 {
		return 64.0
	}

	return 32.0
}

func CalculateExpectedScore(ratingA, ratingB float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (ratingB-ratingA)/400.0))
}

func UpdateRatings(winner, loser Scorecard) (Scorecard, Scorecard) {
	expectedWinner := CalculateExpectedScore(winner.Rating, loser.Rating)

	k := (GetKFactor(winner.Count) + GetKFactor(loser.Count)) / 2.0

	winner.Rating += k * (1.0 - expectedWinner)
	winner.Count++
	winner.Wins++

	loser.Rating -= k * (1.0 - expectedWinner)
	loser.Count++
	loser.Losses++

	return winner, loser
}

func newScorecard(wallet string) Scorecard {
	return Scorecard{
		Wallet: wallet,
		Rating: DefaultRating,
	}
}

func readScorecard(ratings *bbolt.Bucket, wallet string) (Scorecard, error) {
	data := ratings.Get([]byte(wallet))
	if data == nil {
		return newScorecard(wallet), nil
	}

	var card Scorecard

	err := json.Unmarshal(data, &card)
	if err != nil {
		return card, fmt.Errorf("failed to decode scorecard %s: %w", wallet, err)
	}

	return card, nil
}

func writeJSON(bucket *bbolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	err = bucket.Put([]byte(key), data)
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}

	return nil
}

//nolint:cyclop
func (s *ScorerService) HandleOutcome(outcome Outcome) error {
	if outcome.Winner == "" || outcome.Loser == "" || outcome.Winner == outcome.Loser {
		return fmt.Errorf("%w: %q vs %q", ErrInvalidOutcome, outcome.Winner, outcome.Loser)
	}

	//nolint:wrapcheck
	return s.DatabaseService.DB.Update(func(tx *bbolt.Tx) error {
		ratings := tx.Bucket([]byte(common.ScorerRatingsBucket))
		if ratings == nil {
			return ErrRatingsBucketNotFound
		}

		stats := tx.Bucket([]byte(common.ScorerStatsBucket))
		if stats == nil {
			return ErrStatsBucketNotFound
		}

		winner, err := readScorecard(ratings, outcome.Winner)
		if err != nil {
			return err
		}

		loser, err := readScorecard(ratings, outcome.Loser)
		if err != nil {
			return err
		}

		winner, loser = UpdateRatings(winner, loser)
		winner.Earned += outcome.Prize

		err = writeJSON(ratings, winner.Wallet, winner)
		if err != nil {
			return err
		}

		err = writeJSON(ratings, loser.Wallet, loser)
		if err != nil {
			return err
		}

		if outcome.Game == "" {
			return nil
		}

		game := GameStats{Game: outcome.Game, Category: outcome.Category}
		if data := stats.Get([]byte(outcome.Game)); data != nil {
			err = json.Unmarshal(data, &game)
			if err != nil {
				return fmt.Errorf("failed to decode stats for %s: %w", outcome.Game, err)
			}
		}

		game.Matches++
		if outcome.Friendly {
			game.Friendly++
		}

		return writeJSON(stats, outcome.Game, game)
	})
}

func (s *ScorerService) Scorecard(wallet string) (Scorecard, error) {
	var card Scorecard

	err := s.DatabaseService.DB.View(func(tx *bbolt.Tx) error {
		ratings := tx.Bucket([]byte(common.ScorerRatingsBucket))
		if ratings == nil {
			return ErrRatingsBucketNotFound
		}

		var err error

		card, err = readScorecard(ratings, wallet)

		return err
	})

	//nolint:wrapcheck
	return card, err
}

// Leaderboard returns up to limit scorecards, highest rating first.
func (s *ScorerService) Leaderboard(limit int) ([]Scorecard, error) {
	cards := []Scorecard{}

	err := s.DatabaseService.DB.View(func(tx *bbolt.Tx) error {
		ratings := tx.Bucket([]byte(common.ScorerRatingsBucket))
		if ratings == nil {
			return ErrRatingsBucketNotFound
		}

		return ratings.ForEach(func(k, v []byte) error {
			var card Scorecard

			err := json.Unmarshal(v, &card)
			if err != nil {
				return fmt.Errorf("failed to decode scorecard %s: %w", k, err)
			}

			cards = append(cards, card)

			return nil
		})
	})
	if err != nil {
		//nolint:wrapcheck
		return nil, err
	}

	slices.SortFunc(cards, func(a, b Scorecard) int {
		if c := cmp.Compare(b.Rating, a.Rating); c != 0 {
			return c
		}

		return cmp.Compare(a.Wallet, b.Wallet)
	})

	if limit > 0 && len(cards) > limit {
		cards = cards[:limit]
	}

	return cards, nil
}

func (s *ScorerService) Games() ([]GameStats, error) {
	games := []GameStats{}

	err := s.DatabaseService.DB.View(func(tx *bbolt.Tx) error {
		stats := tx.Bucket([]byte(common.ScorerStatsBucket))
		if stats == nil {
			return ErrStatsBucketNotFound
		}

		return stats.ForEach(func(k, v []byte) error {
			var game GameStats

			err := json.Unmarshal(v, &game)
			if err != nil {
				return fmt.Errorf("failed to decode stats for %s: %w", k, err)
			}

			games = append(games, game)

			return nil
		})
	})

	//nolint:wrapcheck
	return games, err
}

func (s *ScorerService) GetLeaderboard(c echo.Context) error {
	limit := defaultLeaderboardSize

	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}

		limit = parsed
	}

	cards, err := s.Leaderboard(limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read leaderboard")
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, cards)
}

func (s *ScorerService) GetScorecard(c echo.Context) error {
	card, err := s.Scorecard(c.Param("wallet"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read scorecard")
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, card)
}

func (s *ScorerService) GetGames(c echo.Context) error {
	games, err := s.Games()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read game stats")
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, games)
}

func (s *ScorerService) processOutcomes() {
	for outcome := range s.OutcomeSource {
		kind := "challenge"
		if outcome.Friendly {
			kind = "friendly"
		}

		err := s.HandleOutcome(outcome)
		if err != nil {
			s.logger.Error("failed to apply outcome", "challenge", outcome.ChallengeID, "error", err)

			continue
		}

		outcomesProcessed.WithLabelValues(kind).Inc()
	}
}
