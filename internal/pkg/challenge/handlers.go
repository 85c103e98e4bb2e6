package challenge

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
	"github.com/usdfg/arena/internal/pkg/common"
)

// Reply carries the challenge after an operation. Notice is set when the
// requested effect already held.
type Reply struct {
	Challenge *Challenge `json:"challenge"`
	Notice    string     `json:"notice,omitempty"`
	Cancelled *bool      `json:"cancelled,omitempty"`
}

func (s *ChallengeService) registerRoutes(i do.Injector) error {
	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(s.Routes)

	return nil
}

func (s *ChallengeService) Routes(e *echo.Echo) {
	apiGroup := e.Group("/api")

	challengeGroup := apiGroup.Group("/challenges")

	challengeGroup.GET("", s.GetChallenges)
	challengeGroup.POST("", s.PostChallenge)
	challengeGroup.GET("/can-create/:wallet", s.GetCanCreate)
	challengeGroup.GET("/:id", s.GetChallenge)
	challengeGroup.POST("/:id/join", s.PostJoin)
	challengeGroup.POST("/:id/results", s.PostResult)
	challengeGroup.POST("/:id/auto-win", s.PostAutoWin)
	challengeGroup.POST("/:id/claim", s.PostClaim)
	challengeGroup.POST("/:id/cancel", s.PostCancel)
	challengeGroup.POST("/:id/expire", s.PostExpire)
	challengeGroup.POST("/:id/deadline", s.PostDeadline)
	challengeGroup.POST("/:id/sync", s.PostSync)
	challengeGroup.POST("/:id/resolve", s.PostResolveDispute)
	challengeGroup.POST("/:id/founder-payout", s.PostFounderPayout)
	challengeGroup.POST("/:id/refund", s.PostRefund)

	teamGroup := apiGroup.Group("/teams")

	teamGroup.POST("", s.PostTeam)
	teamGroup.POST("/:id/members", s.PostTeamMember)
	teamGroup.GET("/of/:wallet", s.GetTeamOf)
}

// httpError maps an operation error to a response by its kind.
func httpError(err error) error {
	switch KindOf(err) {
	case KindValidation:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case KindNotFound:
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case KindPrecondition:
		switch {
		case errors.Is(err, ErrNotAdmin), errors.Is(err, ErrNotWinner), errors.Is(err, ErrNotTeamOwner):
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		case errors.Is(err, ErrOperationInFlight):
			return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
		default:
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
	case KindTransient:
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// reply writes the challenge, turning idempotent conflicts and pending
// payouts into successful responses that carry a notice.
func reply(c echo.Context, challenge *Challenge, err error) error {
	switch {
	case err == nil:
		//nolint:wrapcheck
		return c.JSON(http.StatusOK, Reply{Challenge: challenge})
	case KindOf(err) == KindIdempotent && challenge != nil:
		//nolint:wrapcheck
		return c.JSON(http.StatusOK, Reply{Challenge: challenge, Notice: err.Error()})
	case errors.Is(err, ErrPayoutPending) && challenge != nil:
		//nolint:wrapcheck
		return c.JSON(http.StatusAccepted, Reply{Challenge: challenge, Notice: err.Error()})
	default:
		return httpError(err)
	}
}

func bind(c echo.Context, req any) error {
	err := c.Bind(req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	return nil
}

func (s *ChallengeService) GetChallenges(c echo.Context) error {
	challenges, err := s.Challenges(c.Request().Context())
	if err != nil {
		return httpError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, challenges)
}

func (s *ChallengeService) GetChallenge(c echo.Context) error {
	challenge, err := s.Challenge(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, challenge)
}

func (s *ChallengeService) GetCanCreate(c echo.Context) error {
	allowed, err := s.CanCreate(c.Request().Context(), c.Param("wallet"))
	if err != nil {
		return httpError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, map[string]bool{"can_create": allowed})
}

func (s *ChallengeService) PostChallenge(c echo.Context) error {
	var req CreateRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	challenge, err := s.Create(c.Request().Context(), &req)
	if err != nil {
		return httpError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusCreated, Reply{Challenge: challenge})
}

func (s *ChallengeService) PostJoin(c echo.Context) error {
	var req JoinRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	req.ChallengeID = c.Param("id")

	challenge, err := s.Join(c.Request().Context(), &req)

	return reply(c, challenge, err)
}

func (s *ChallengeService) PostResult(c echo.Context) error {
	var req SubmitResultRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	req.ChallengeID = c.Param("id")

	challenge, err := s.SubmitResult(c.Request().Context(), &req)

	return reply(c, challenge, err)
}

func (s *ChallengeService) PostAutoWin(c echo.Context) error {
	var req AutoWinRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	req.ChallengeID = c.Param("id")

	challenge, err := s.AutoWin(c.Request().Context(), &req)

	return reply(c, challenge, err)
}

func (s *ChallengeService) PostClaim(c echo.Context) error {
	var req ClaimRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	req.ChallengeID = c.Param("id")

	challenge, err := s.Claim(c.Request().Context(), &req)

	return reply(c, challenge, err)
}

func (s *ChallengeService) PostCancel(c echo.Context) error {
	var req CancelRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	req.ChallengeID = c.Param("id")

	challenge, cancelled, err := s.Cancel(c.Request().Context(), &req)
	if err != nil {
		return reply(c, challenge, err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, Reply{Challenge: challenge, Cancelled: &cancelled})
}

func (s *ChallengeService) PostExpire(c echo.Context) error {
	challenge, err := s.Expire(c.Request().Context(), c.Param("id"))

	return reply(c, challenge, err)
}

func (s *ChallengeService) PostDeadline(c echo.Context) error {
	challenge, err := s.CheckDeadline(c.Request().Context(), c.Param("id"))

	return reply(c, challenge, err)
}

func (s *ChallengeService) PostSync(c echo.Context) error {
	challenge, err := s.SyncStatus(c.Request().Context(), c.Param("id"))

	return reply(c, challenge, err)
}

func (s *ChallengeService) PostResolveDispute(c echo.Context) error {
	var req ResolveDisputeRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	req.ChallengeID = c.Param("id")

	challenge, err := s.ResolveDispute(c.Request().Context(), &req)

	return reply(c, challenge, err)
}

func (s *ChallengeService) PostFounderPayout(c echo.Context) error {
	var req FounderPayoutRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	req.ChallengeID = c.Param("id")

	challenge, err := s.RecordFounderPayout(c.Request().Context(), &req)

	return reply(c, challenge, err)
}

func (s *ChallengeService) PostRefund(c echo.Context) error {
	var req RefundRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	req.ChallengeID = c.Param("id")

	challenge, err := s.RecordRefund(c.Request().Context(), &req)

	return reply(c, challenge, err)
}

func (s *ChallengeService) PostTeam(c echo.Context) error {
	var req TeamRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	team, err := s.CreateTeam(c.Request().Context(), &req)
	if err != nil {
		return httpError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusCreated, team)
}

func (s *ChallengeService) PostTeamMember(c echo.Context) error {
	var req TeamMemberRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	req.TeamID = c.Param("id")

	team, err := s.AddTeamMember(c.Request().Context(), &req)
	if err != nil {
		return httpError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, team)
}

func (s *ChallengeService) GetTeamOf(c echo.Context) error {
	team, err := s.TeamOf(c.Request().Context(), c.Param("wallet"))
	if err != nil {
		return httpError(err)
	}

	if team == nil {
		return echo.NewHTTPError(http.StatusNotFound, "wallet is in no team")
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, team)
}
