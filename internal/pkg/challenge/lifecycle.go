package challenge

import (
	"fmt"
	"slices"
	"time"

	"github.com/usdfg/arena/internal/pkg/common"
	"github.com/usdfg/arena/internal/pkg/escrow"
)

// ActiveChallengeOf returns the id of the open challenge the wallet takes part
// in, as creator or participant.
func ActiveChallengeOf(challenges []Challenge, wallet string) (string, bool) {
	if wallet == "" {
		return "", false
	}

	for i := range challenges {
		c := &challenges[i]
		if !c.Status.IsOpen() {
			continue
		}

		if c.Creator == wallet || c.HasPlayer(wallet) {
			return c.ID, true
		}
	}

	return "", false
}

func CanCreate(challenges []Challenge, wallet string) bool {
	if wallet == "" {
		return false
	}

	_, active := ActiveChallengeOf(challenges, wallet)

	return !active
}

// MaxPlayersFor returns the capacity implied by the format.
func MaxPlayersFor(format Format, bracketSize int) int {
	if format == FormatTournament {
		return bracketSize
	}

	return 2
}

// PrizePoolFor is every entry fee minus the platform fee, in base units.
func PrizePoolFor(entryFee int64, maxPlayers int, feeBps int64) int64 {
	total := entryFee * int64(maxPlayers)

	return total - total*feeBps/10_000
}

// NewChallenge validates a create request against the rules and builds the
// record it describes.
func NewChallenge(req *CreateRequest, rules *common.Rules, id string, now time.Time) (*Challenge, error) {
	err := req.Validate()
	if err != nil {
		return nil, err
	}

	format := req.Format
	if format == "" {
		format = FormatStandard
	}

	if format == FormatTournament && !rules.ValidBracketSize(req.BracketSize) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBracketSize, req.BracketSize)
	}

	switch {
	case req.EntryFee == 0:
		if !rules.IsAdmin(req.Creator) {
			return nil, fmt.Errorf("%w: only founder challenges are free", ErrInvalidEntryFee)
		}
	case req.EntryFee < rules.MinEntryFee || req.EntryFee > rules.MaxEntryFee:
		return nil, fmt.Errorf("%w: %d not in [%d, %d]",
			ErrInvalidEntryFee, req.EntryFee, rules.MinEntryFee, rules.MaxEntryFee)
	}

	maxPlayers := MaxPlayersFor(format, req.BracketSize)

	return &Challenge{
		ID:         id,
		Creator:    req.Creator,
		Players:    []string{req.Creator},
		Title:      req.Title,
		Game:       req.Game,
		Category:   CategoryOf(req.Game),
		Platform:   req.Platform,
		Format:     format,
		MaxPlayers: maxPlayers,
		TeamOnly:   req.TeamOnly,
		EntryFee:   req.EntryFee,
		PrizePool:  PrizePoolFor(req.EntryFee, maxPlayers, rules.PlatformFeeBps),
		EscrowRef:  req.EscrowRef,
		Status:     StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(rules.ChallengeTTL.Duration),
	}, nil
}

// CheckJoin reports whether the wallet may join, without mutating anything.
func CheckJoin(c *Challenge, wallet string, now time.Time) error {
	if c.Status != StatusActive {
		return fmt.Errorf("%w: status %s", ErrNotOpen, c.Status)
	}

	if !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt) {
		return fmt.Errorf("%w: expired at %s", ErrNotOpen, c.ExpiresAt.Format(time.RFC3339))
	}

	if c.HasPlayer(wallet) || c.Creator == wallet {
		return ErrAlreadyJoined
	}

	if c.Full() {
		return ErrFull
	}

	return nil
}

// ApplyJoin appends the wallet and starts the match once capacity is reached.
func ApplyJoin(c *Challenge, wallet string, now time.Time, resultWindow time.Duration) error {
	err := CheckJoin(c, wallet, now)
	if err != nil {
		return err
	}

	c.Players = append(c.Players, wallet)
	c.UpdatedAt = now

	if c.Full() {
		deadline := now.Add(resultWindow)
		c.Status = StatusInProgress
		c.ResultDeadline = &deadline
	}

	return nil
}

// Resolve derives the outcome of two main-challenger submissions.
func Resolve(first, second string, a, b Result) (Status, string) {
	switch {
	case a.DidWin && b.DidWin:
		return StatusDisputed, ""
	case !a.DidWin && !b.DidWin:
		return StatusCompleted, WinnerTie
	case a.DidWin:
		return StatusCompleted, first
	default:
		return StatusCompleted, second
	}
}

// RecordResult stores the wallet's report and resolves the challenge when
// both main challengers have reported. A reported loss hands an
// auto-determined win to an opponent who has not reported yet.
func RecordResult(c *Challenge, wallet string, didWin bool, proofID string, now time.Time) error {
	if c.Status != StatusInProgress {
		if _, submitted := c.Results[wallet]; submitted {
			return ErrAlreadySubmitted
		}

		return fmt.Errorf("%w: status %s", ErrNotInProgress, c.Status)
	}

	if !c.IsMainChallenger(wallet) {
		if c.HasPlayer(wallet) {
			return ErrNotMainChallenger
		}

		return ErrNotParticipant
	}

	if _, submitted := c.Results[wallet]; submitted {
		return ErrAlreadySubmitted
	}

	if c.Results == nil {
		c.Results = map[string]Result{}
	}

	c.Results[wallet] = Result{
		DidWin:      didWin,
		ProofID:     proofID,
		SubmittedAt: now,
	}
	c.UpdatedAt = now

	if !didWin {
		opponent, ok := c.Opponent(wallet)
		if _, reported := c.Results[opponent]; ok && !reported {
			c.Results[opponent] = Result{
				DidWin:      true,
				SubmittedAt: now,
				Auto:        true,
			}
		}
	}

	resolveIfComplete(c)

	return nil
}

func resolveIfComplete(c *Challenge) {
	first, second := c.MainChallengers()

	a, okA := c.Results[first]
	b, okB := c.Results[second]

	if !okA || !okB {
		return
	}

	status, winner := Resolve(first, second, a, b)
	if status == StatusCompleted {
		settle(c, winner)

		return
	}

	c.Status = status
}

// settle completes the challenge for winner. A tie owes every entry fee back.
func settle(c *Challenge, winner string) {
	c.Status = StatusCompleted
	c.Winner = winner

	if winner == WinnerTie && c.EntryFee > 0 && !c.Payout.Refunded {
		c.Payout.RefundDue = true
	}
}

// AutoWinAvailable reports whether the opponent reported a loss that the
// wallet has not answered yet. RecordResult settles this case itself, so it
// only holds for records stored without the auto-determined win.
func AutoWinAvailable(c *Challenge, wallet string) bool {
	if c.Status != StatusInProgress || !c.IsMainChallenger(wallet) {
		return false
	}

	if _, submitted := c.Results[wallet]; submitted {
		return false
	}

	opponent, ok := c.Opponent(wallet)
	if !ok {
		return false
	}

	result, reported := c.Results[opponent]

	return reported && !result.DidWin
}

// ApplyAutoWin records an auto-determined win for the wallet whose opponent
// already conceded, completing the challenge without a second report.
func ApplyAutoWin(c *Challenge, wallet string, now time.Time) error {
	if _, submitted := c.Results[wallet]; submitted {
		return ErrAlreadySubmitted
	}

	if c.Status != StatusInProgress {
		return fmt.Errorf("%w: status %s", ErrNotInProgress, c.Status)
	}

	if !AutoWinAvailable(c, wallet) {
		return ErrNoAutoWin
	}

	c.Results[wallet] = Result{
		DidWin:      true,
		SubmittedAt: now,
		Auto:        true,
	}
	c.UpdatedAt = now

	resolveIfComplete(c)

	return nil
}

// CheckClaim gates a prize claim. reviewed tells whether the wallet has
// reviewed its opponent for this challenge.
func CheckClaim(c *Challenge, wallet string, reviewed bool) error {
	if c.Status != StatusCompleted {
		return fmt.Errorf("%w: status %s", ErrNotCompleted, c.Status)
	}

	if !c.HasWinner() {
		return ErrNoWinner
	}

	if c.Winner != wallet {
		return ErrNotWinner
	}

	if c.Payout.Paid {
		return ErrAlreadyPaid
	}

	if !reviewed {
		return ErrReviewRequired
	}

	if c.IsFounder() {
		return ErrFounderManualPayout
	}

	return nil
}

func MarkPaid(c *Challenge, signature string, now time.Time) error {
	if c.Payout.Paid {
		return ErrAlreadyPaid
	}

	c.Payout.Paid = true
	c.Payout.Amount = c.PrizePool
	c.Payout.Signature = signature
	c.Payout.PendingSignature = ""
	c.Payout.PaidAt = &now
	c.UpdatedAt = now

	return nil
}

// ApplyExpire moves an unanswered active challenge past its expiry to expired.
func ApplyExpire(c *Challenge, now time.Time) error {
	if c.Status != StatusActive {
		return fmt.Errorf("%w: status %s", ErrNotOpen, c.Status)
	}

	if len(c.Players) > 1 {
		return fmt.Errorf("%w: challenge has an opponent", ErrNotExpired)
	}

	if c.ExpiresAt.IsZero() || !now.After(c.ExpiresAt) {
		return ErrNotExpired
	}

	c.Status = StatusExpired
	c.UpdatedAt = now

	return nil
}

// ApplyDeadline settles an in-progress challenge whose result window closed.
// A single win report wins, a single loss report hands the win to the
// opponent, and silence forfeits both entry fees.
func ApplyDeadline(c *Challenge, now time.Time) error {
	if c.Status != StatusInProgress {
		return fmt.Errorf("%w: status %s", ErrNotInProgress, c.Status)
	}

	if c.ResultDeadline == nil || !now.After(*c.ResultDeadline) {
		return ErrDeadlineNotPassed
	}

	first, second := c.MainChallengers()
	a, okA := c.Results[first]
	b, okB := c.Results[second]

	switch {
	case okA && okB:
		resolveIfComplete(c)
	case okA:
		settle(c, pick(a.DidWin, first, second))
	case okB:
		settle(c, pick(b.DidWin, second, first))
	default:
		settle(c, WinnerForfeit)
	}

	c.UpdatedAt = now

	return nil
}

func pick(didWin bool, reporter, opponent string) string {
	if didWin {
		return reporter
	}

	return opponent
}

// ApplyCancel handles a cancellation request. It reports whether the
// challenge is now cancelled.
func ApplyCancel(c *Challenge, wallet string, now time.Time) (bool, error) {
	switch c.Status {
	case StatusActive, StatusPending:
		if wallet != c.Creator {
			return false, ErrNotParticipant
		}

		if len(c.Players) > 1 {
			return false, fmt.Errorf("%w: an opponent already joined", ErrCannotCancel)
		}

		c.Status = StatusCancelled
		c.UpdatedAt = now

		return true, nil
	case StatusInProgress:
		if !c.IsMainChallenger(wallet) {
			return false, ErrNotParticipant
		}

		if slices.Contains(c.CancelRequests, wallet) {
			return false, ErrAlreadyRequestedCancel
		}

		c.CancelRequests = append(c.CancelRequests, wallet)
		c.UpdatedAt = now

		first, second := c.MainChallengers()
		if slices.Contains(c.CancelRequests, first) && slices.Contains(c.CancelRequests, second) {
			c.Status = StatusCancelled

			return true, nil
		}

		return false, nil
	default:
		return false, fmt.Errorf("%w: status %s", ErrCannotCancel, c.Status)
	}
}

// ApplyDisputeResolution lets the admin settle a disputed challenge.
func ApplyDisputeResolution(c *Challenge, winner string, now time.Time) error {
	if c.Status != StatusDisputed {
		return fmt.Errorf("%w: status %s", ErrNotDisputed, c.Status)
	}

	if winner != WinnerTie && !c.IsMainChallenger(winner) {
		return ErrInvalidWinner
	}

	settle(c, winner)
	c.UpdatedAt = now

	return nil
}

// ApplyRefund records that a tie's entry fees went back to the players.
func ApplyRefund(c *Challenge, signature string, now time.Time) error {
	if c.Status != StatusCompleted {
		return fmt.Errorf("%w: status %s", ErrNotCompleted, c.Status)
	}

	if c.Payout.Refunded {
		return ErrAlreadyRefunded
	}

	if !c.Payout.RefundDue {
		return ErrNoRefundDue
	}

	c.Payout.RefundDue = false
	c.Payout.Refunded = true
	c.Payout.RefundSignature = signature
	c.Payout.RefundedAt = &now
	c.UpdatedAt = now

	return nil
}

// ApplyFounderPayout records the manual transfer of a founder prize.
func ApplyFounderPayout(c *Challenge, amount int64, signature string, now time.Time) error {
	if !c.IsFounder() {
		return ErrNotFounder
	}

	if c.Status != StatusCompleted {
		return fmt.Errorf("%w: status %s", ErrNotCompleted, c.Status)
	}

	if !c.HasWinner() {
		return ErrNoWinner
	}

	if c.Payout.Paid {
		return ErrAlreadyPaid
	}

	c.PrizePool = amount
	c.Payout = Payout{
		Paid:      true,
		Manual:    true,
		Amount:    amount,
		Signature: signature,
		PaidAt:    &now,
	}
	c.UpdatedAt = now

	return nil
}

// StatusFromChain maps the escrow program's status ordinal.
func StatusFromChain(status escrow.OnChainStatus) (Status, bool) {
	switch status {
	case escrow.StatusOpen:
		return StatusActive, true
	case escrow.StatusInProgress:
		return StatusInProgress, true
	case escrow.StatusCompleted:
		return StatusCompleted, true
	case escrow.StatusCancelled:
		return StatusCancelled, true
	case escrow.StatusDisputed:
		return StatusDisputed, true
	default:
		return "", false
	}
}

// ApplyChainStatus syncs the stored status with the on-chain one. A completed
// record is never moved back to in-progress: the chain stays in progress
// until the winner claims.
func ApplyChainStatus(c *Challenge, status escrow.OnChainStatus, now time.Time) bool {
	mapped, ok := StatusFromChain(status)
	if !ok || mapped == c.Status {
		return false
	}

	if c.Status == StatusCompleted && mapped == StatusInProgress {
		return false
	}

	c.Status = mapped
	c.UpdatedAt = now

	return true
}

// ApplyRepair resets an in-progress challenge that lost its opponent back to
// active. It reports whether anything changed.
func ApplyRepair(c *Challenge, now time.Time) bool {
	if c.Status != StatusInProgress || len(c.Players) >= 2 {
		return false
	}

	c.Status = StatusActive
	c.ResultDeadline = nil
	c.UpdatedAt = now

	return true
}

// Prunable reports whether a finished challenge last touched before cutoff
// can be dropped from the store.
func Prunable(c *Challenge, cutoff time.Time) bool {
	if !c.UpdatedAt.Before(cutoff) {
		return false
	}

	switch c.Status {
	case StatusCancelled, StatusExpired:
		return true
	case StatusCompleted:
		switch c.Winner {
		case WinnerForfeit:
			return true
		case WinnerTie:
			return !c.Payout.RefundDue
		default:
			return c.Payout.Paid
		}
	default:
		return false
	}
}
