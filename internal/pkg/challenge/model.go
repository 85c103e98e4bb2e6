package challenge

import (
	"slices"
	"time"
)

type Status string

const (
	StatusActive     Status = "active"
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusDisputed   Status = "disputed"
	StatusCancelled  Status = "cancelled"
	StatusExpired    Status = "expired"
)

// IsOpen reports whether a challenge in this status still occupies its
// players' single active slot.
func (s Status) IsOpen() bool {
	return s == StatusActive || s == StatusPending || s == StatusInProgress
}

type Format string

const (
	FormatStandard   Format = "standard"
	FormatTournament Format = "tournament"
)

// WinnerTie is stored as the winner when both main challengers report a loss.
// Entry fees are refunded.
const WinnerTie = "tie"

// WinnerForfeit is stored when the result window closes without any report.
// Nobody is paid and nothing is refunded.
const WinnerForfeit = "forfeit"

type Result struct {
	DidWin      bool      `json:"did_win"`
	ProofID     string    `json:"proof_id,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	Auto        bool      `json:"auto,omitempty"`
}

type Payout struct {
	Paid             bool       `json:"paid"`
	Manual           bool       `json:"manual,omitempty"`
	Amount           int64      `json:"amount,omitempty"`
	Signature        string     `json:"signature,omitempty"`
	PendingSignature string     `json:"pending_signature,omitempty"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`

	// RefundDue is set when a tie leaves entry fees to return from escrow.
	RefundDue       bool       `json:"refund_due,omitempty"`
	Refunded        bool       `json:"refunded,omitempty"`
	RefundSignature string     `json:"refund_signature,omitempty"`
	RefundedAt      *time.Time `json:"refunded_at,omitempty"`
}

type Challenge struct {
	ID      string   `json:"id"`
	Creator string   `json:"creator"`
	Players []string `json:"players"`

	Title    string `json:"title"`
	Game     string `json:"game"`
	Category string `json:"category"`
	Platform string `json:"platform,omitempty"`

	Format     Format `json:"format"`
	MaxPlayers int    `json:"max_players"`
	TeamOnly   bool   `json:"team_only,omitempty"`

	EntryFee  int64  `json:"entry_fee"`
	PrizePool int64  `json:"prize_pool"`
	EscrowRef string `json:"escrow_ref,omitempty"`

	Status  Status            `json:"status"`
	Results map[string]Result `json:"results,omitempty"`
	Winner  string            `json:"winner,omitempty"`

	CancelRequests []string `json:"cancel_requests,omitempty"`

	Payout Payout `json:"payout"`

	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	ResultDeadline *time.Time `json:"result_deadline,omitempty"`
}

// HasWinner reports whether the challenge was decided for a single wallet.
func (c *Challenge) HasWinner() bool {
	return c.Winner != "" && c.Winner != WinnerTie && c.Winner != WinnerForfeit
}

func (c *Challenge) HasPlayer(wallet string) bool {
	return slices.Contains(c.Players, wallet)
}

// MainChallengers returns players[0] and players[1]; the second is empty
// until someone has joined.
func (c *Challenge) MainChallengers() (string, string) {
	var first, second string

	if len(c.Players) > 0 {
		first = c.Players[0]
	}

	if len(c.Players) > 1 {
		second = c.Players[1]
	}

	return first, second
}

func (c *Challenge) IsMainChallenger(wallet string) bool {
	if wallet == "" {
		return false
	}

	first, second := c.MainChallengers()

	return wallet == first || wallet == second
}

// Opponent returns the other main challenger.
func (c *Challenge) Opponent(wallet string) (string, bool) {
	first, second := c.MainChallengers()

	switch {
	case wallet == first && second != "":
		return second, true
	case wallet == second && first != "":
		return first, true
	default:
		return "", false
	}
}

// IsFounder reports whether this is a zero-fee challenge with no escrow,
// paid out manually by the admin.
func (c *Challenge) IsFounder() bool {
	return c.EntryFee == 0 && c.EscrowRef == ""
}

func (c *Challenge) Full() bool {
	return c.MaxPlayers > 0 && len(c.Players) >= c.MaxPlayers
}

func (c *Challenge) Clone() *Challenge {
	clone := *c
	clone.Players = slices.Clone(c.Players)
	clone.CancelRequests = slices.Clone(c.CancelRequests)

	if c.Results != nil {
		clone.Results = make(map[string]Result, len(c.Results))
		for k, v := range c.Results {
			clone.Results[k] = v
		}
	}

	return &clone
}

type Team struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Key       string    `json:"key"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}
