package challenge

import (
	"fmt"
	"strings"
)

type CreateRequest struct {
	Creator     string `json:"creator"`
	Title       string `json:"title"`
	Game        string `json:"game"`
	Platform    string `json:"platform"`
	Format      Format `json:"format"`
	BracketSize int    `json:"bracket_size"`
	EntryFee    int64  `json:"entry_fee"`
	TeamOnly    bool   `json:"team_only"`
	EscrowRef   string `json:"escrow_ref"`
}

// Validate checks the fields that do not depend on the rules in force.
func (r *CreateRequest) Validate() error {
	if strings.TrimSpace(r.Creator) == "" {
		return ErrMissingWallet
	}

	if strings.TrimSpace(r.Title) == "" {
		return ErrInvalidTitle
	}

	if strings.TrimSpace(r.Game) == "" {
		return ErrInvalidGame
	}

	if r.EntryFee < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidEntryFee, r.EntryFee)
	}

	switch r.Format {
	case "", FormatStandard, FormatTournament:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFormat, r.Format)
	}

	if r.EntryFee > 0 && r.EscrowRef == "" {
		return ErrMissingEscrowRef
	}

	return nil
}

type JoinRequest struct {
	ChallengeID string `json:"challenge_id"`
	Wallet      string `json:"wallet"`
	FreeEntry   bool   `json:"free_entry"`
	// DepositSignature is the confirmed entry-fee transfer into escrow.
	DepositSignature string `json:"deposit_signature"`
}

func (r *JoinRequest) Validate() error {
	if r.ChallengeID == "" {
		return ErrMissingChallengeID
	}

	if r.Wallet == "" {
		return ErrMissingWallet
	}

	if !r.FreeEntry && r.DepositSignature == "" {
		return ErrMissingSignature
	}

	return nil
}

type SubmitResultRequest struct {
	ChallengeID string `json:"challenge_id"`
	Wallet      string `json:"wallet"`
	DidWin      bool   `json:"did_win"`
	ProofID     string `json:"proof_id"`
}

func (r *SubmitResultRequest) Validate() error {
	if r.ChallengeID == "" {
		return ErrMissingChallengeID
	}

	if r.Wallet == "" {
		return ErrMissingWallet
	}

	return nil
}

type AutoWinRequest struct {
	ChallengeID string `json:"challenge_id"`
	Wallet      string `json:"wallet"`
}

func (r *AutoWinRequest) Validate() error {
	if r.ChallengeID == "" {
		return ErrMissingChallengeID
	}

	if r.Wallet == "" {
		return ErrMissingWallet
	}

	return nil
}

type ClaimRequest struct {
	ChallengeID string `json:"challenge_id"`
	Wallet      string `json:"wallet"`
	// SignedTransaction is the winner-signed release instruction, base64.
	SignedTransaction string `json:"signed_transaction"`
}

func (r *ClaimRequest) Validate() error {
	if r.ChallengeID == "" {
		return ErrMissingChallengeID
	}

	if r.Wallet == "" {
		return ErrMissingWallet
	}

	return nil
}

type CancelRequest struct {
	ChallengeID string `json:"challenge_id"`
	Wallet      string `json:"wallet"`
}

func (r *CancelRequest) Validate() error {
	if r.ChallengeID == "" {
		return ErrMissingChallengeID
	}

	if r.Wallet == "" {
		return ErrMissingWallet
	}

	return nil
}

type ResolveDisputeRequest struct {
	ChallengeID string `json:"challenge_id"`
	Admin       string `json:"admin"`
	// Winner is a main challenger or WinnerTie.
	Winner string `json:"winner"`
}

func (r *ResolveDisputeRequest) Validate() error {
	if r.ChallengeID == "" {
		return ErrMissingChallengeID
	}

	if r.Admin == "" {
		return ErrMissingWallet
	}

	if r.Winner == "" {
		return ErrInvalidWinner
	}

	return nil
}

type FounderPayoutRequest struct {
	ChallengeID string `json:"challenge_id"`
	Admin       string `json:"admin"`
	Amount      int64  `json:"amount"`
	Signature   string `json:"signature"`
}

func (r *FounderPayoutRequest) Validate() error {
	if r.ChallengeID == "" {
		return ErrMissingChallengeID
	}

	if r.Admin == "" {
		return ErrMissingWallet
	}

	if r.Amount <= 0 {
		return ErrInvalidAmount
	}

	return nil
}

type RefundRequest struct {
	ChallengeID string `json:"challenge_id"`
	Admin       string `json:"admin"`
	Signature   string `json:"signature"`
}

func (r *RefundRequest) Validate() error {
	if r.ChallengeID == "" {
		return ErrMissingChallengeID
	}

	if r.Admin == "" {
		return ErrMissingWallet
	}

	return nil
}

type TeamRequest struct {
	// Key is the wallet that owns the team.
	Key  string `json:"key"`
	Name string `json:"name"`
}

func (r *TeamRequest) Validate() error {
	if r.Key == "" {
		return ErrMissingWallet
	}

	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidTeamName
	}

	return nil
}

type TeamMemberRequest struct {
	TeamID string `json:"team_id"`
	Key    string `json:"key"`
	Member string `json:"member"`
}

func (r *TeamMemberRequest) Validate() error {
	if r.Key == "" || r.Member == "" {
		return ErrMissingWallet
	}

	return nil
}
