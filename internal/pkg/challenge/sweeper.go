package challenge

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type SweepReport struct {
	Expired  int `json:"expired"`
	Settled  int `json:"settled"`
	Repaired int `json:"repaired"`
	Skipped  int `json:"skipped"`
}

// Sweep expires stale open challenges, settles in-progress ones whose result
// window closed and resets in-progress challenges left without an opponent.
// Challenges busy with another operation are skipped until the next pass.
//
//nolint:cyclop
func (s *ChallengeService) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	challenges, err := s.Repo.List(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list challenges: %w", err)
	}

	now := s.now()

	for i := range challenges {
		c := &challenges[i]

		var (
			fn      func(c *Challenge) error
			counter *int
		)

		switch {
		case c.Status == StatusInProgress && len(c.Players) < 2:
			fn = func(c *Challenge) error {
				if !ApplyRepair(c, s.now()) {
					return errUnchanged
				}

				return nil
			}
			counter = &report.Repaired
		case c.Status == StatusActive && len(c.Players) <= 1 && now.After(c.ExpiresAt):
			fn = func(c *Challenge) error { return ApplyExpire(c, s.now()) }
			counter = &report.Expired
		case c.Status == StatusInProgress && c.ResultDeadline != nil && now.After(*c.ResultDeadline):
			fn = func(c *Challenge) error { return ApplyDeadline(c, s.now()) }
			counter = &report.Settled
		default:
			continue
		}

		if !s.guard.acquire(c.ID) {
			report.Skipped++

			continue
		}

		_, err := s.transition(ctx, c.ID, fn)
		s.guard.release(c.ID)

		switch {
		case err == nil:
			*counter++
		case errors.Is(err, errUnchanged), KindOf(err) == KindPrecondition:
		default:
			s.logger.Warn("sweep failed", "challenge", c.ID, "error", err)
		}
	}

	return report, nil
}

// Prune deletes finished challenges untouched for longer than age.
func (s *ChallengeService) Prune(ctx context.Context, age time.Duration) (int, error) {
	challenges, err := s.Repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list challenges: %w", err)
	}

	cutoff := s.now().Add(-age)
	pruned := 0

	for i := range challenges {
		c := &challenges[i]
		if !Prunable(c, cutoff) {
			continue
		}

		err = s.Repo.Delete(ctx, c.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return pruned, fmt.Errorf("failed to delete challenge %s: %w", c.ID, err)
		}

		pruned++
	}

	s.logger.Info("pruned challenges", "count", pruned, "older_than", age)

	return pruned, nil
}

// Start runs Sweep every SweepInterval until Shutdown.
func (s *ChallengeService) Start() {
	if s.SweepInterval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(s.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				report, err := s.Sweep(context.Background())
				if err != nil {
					s.logger.Error("sweep failed", "error", err)

					continue
				}

				if report != (SweepReport{}) {
					s.logger.Info("sweep finished",
						"expired", report.Expired,
						"settled", report.Settled,
						"repaired", report.Repaired,
						"skipped", report.Skipped)
				}
			}
		}
	}()
}

func (s *ChallengeService) Shutdown() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}
