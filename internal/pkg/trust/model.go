package trust

import (
	"strings"
	"time"
)

type Review struct {
	Reviewer    string `json:"reviewer"`
	Opponent    string `json:"opponent"`
	ChallengeID string `json:"challenge_id"`

	Honesty       int      `json:"honesty"`
	Fairness      int      `json:"fairness"`
	Sportsmanship int      `json:"sportsmanship"`
	Tags          []string `json:"tags,omitempty"`
	TrustScore10  float64  `json:"trust_score_10"`
	Comment       string   `json:"comment,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Key identifies the single review a reviewer may leave for an opponent in a
// challenge.
func Key(reviewer, opponent, challengeID string) string {
	return strings.Join([]string{challengeID, reviewer, opponent}, "|")
}

func (r *Review) Key() string {
	return Key(r.Reviewer, r.Opponent, r.ChallengeID)
}

type Score struct {
	Wallet  string  `json:"wallet"`
	Score   float64 `json:"score"`
	Reviews int     `json:"reviews"`
}

type SubmitRequest struct {
	Reviewer    string `json:"reviewer"`
	Opponent    string `json:"opponent"`
	ChallengeID string `json:"challenge_id"`

	Honesty       int      `json:"honesty"`
	Fairness      int      `json:"fairness"`
	Sportsmanship int      `json:"sportsmanship"`
	Tags          []string `json:"tags"`
	TrustScore10  float64  `json:"trust_score_10"`
	Comment       string   `json:"comment"`
}

func validRating(v int) bool {
	return v >= 1 && v <= 5
}

func (r *SubmitRequest) Validate() error {
	if r.Reviewer == "" || r.Opponent == "" {
		return ErrMissingWallet
	}

	if r.ChallengeID == "" {
		return ErrMissingChallengeID
	}

	if r.Reviewer == r.Opponent {
		return ErrSelfReview
	}

	if !validRating(r.Honesty) || !validRating(r.Fairness) || !validRating(r.Sportsmanship) {
		return ErrInvalidRating
	}

	if r.TrustScore10 < 0 || r.TrustScore10 > 10 {
		return ErrInvalidTrustScore
	}

	return nil
}
