package challenge

import "errors"

var (
	ErrMissingWallet      = errors.New("wallet is required")
	ErrMissingChallengeID = errors.New("challenge id is required")
	ErrInvalidTitle       = errors.New("title is required")
	ErrInvalidGame        = errors.New("game is required")
	ErrInvalidEntryFee    = errors.New("entry fee out of range")
	ErrInvalidFormat      = errors.New("unknown challenge format")
	ErrInvalidBracketSize = errors.New("invalid bracket size")
	ErrMissingEscrowRef   = errors.New("paid challenges need an escrow reference")
	ErrMissingSignature   = errors.New("signature is required")
	ErrInvalidWinner      = errors.New("winner must be a main challenger or tie")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrInvalidTeamName    = errors.New("team name is required")
)

var (
	ErrNotFound              = errors.New("challenge not found")
	ErrActiveChallengeExists = errors.New("wallet already has an active challenge")
	ErrNotOpen               = errors.New("challenge is not open")
	ErrFull                  = errors.New("challenge is full")
	ErrAlreadyJoined         = errors.New("wallet already joined this challenge")
	ErrTeamRequired          = errors.New("challenge is only open to teams")
	ErrEntryFeeNotConfirmed  = errors.New("entry fee transfer not confirmed")
	ErrNotInProgress         = errors.New("challenge is not in progress")
	ErrNotMainChallenger     = errors.New("only the two main challengers can submit results")
	ErrNotParticipant        = errors.New("wallet is not part of this challenge")
	ErrNotCompleted          = errors.New("challenge is not completed")
	ErrNotWinner             = errors.New("only the winner can claim the prize")
	ErrNoWinner              = errors.New("challenge has no winner to pay out")
	ErrReviewRequired        = errors.New("review your opponent before claiming")
	ErrFounderManualPayout   = errors.New("founder challenge prizes are transferred manually")
	ErrNotFounder            = errors.New("challenge is not a founder challenge")
	ErrAlreadyPaid           = errors.New("prize already paid")
	ErrPayoutPending         = errors.New("payout transaction is pending confirmation")
	ErrNotExpired            = errors.New("challenge has not expired")
	ErrDeadlineNotPassed     = errors.New("result deadline has not passed")
	ErrNotDisputed           = errors.New("challenge is not disputed")
	ErrNotAdmin              = errors.New("admin wallet required")
	ErrCannotCancel          = errors.New("challenge cannot be cancelled")
	ErrNoAutoWin             = errors.New("opponent has not reported a loss")
	ErrUnknownProof          = errors.New("unknown proof reference")
	ErrOperationInFlight     = errors.New("another operation on this challenge is in flight")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrEscrowExpired         = errors.New("escrow has expired")
	ErrNotTerminal           = errors.New("challenge is still open")
	ErrAlreadyInTeam         = errors.New("wallet already belongs to a team")
	ErrNotTeamOwner          = errors.New("only the team key holder can add members")
	ErrNoRefundDue           = errors.New("challenge owes no refund")
	ErrProofMismatch         = errors.New("proof was uploaded for another challenge or wallet")
)

var ErrEscrowUnavailable = errors.New("escrow unavailable, retry later")

// Idempotency conflicts: the effect already holds.
var (
	ErrAlreadySubmitted       = errors.New("result already submitted")
	ErrAlreadyRequestedCancel = errors.New("cancellation already requested")
	ErrAlreadyProcessed       = errors.New("transaction already processed")
	ErrAlreadyRefunded        = errors.New("entry fees already refunded")
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindPrecondition
	KindIdempotent
	KindTransient
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPrecondition:
		return "precondition"
	case KindIdempotent:
		return "idempotent"
	case KindTransient:
		return "transient"
	case KindNotFound:
		return "not-found"
	default:
		return "internal"
	}
}

var validationErrors = []error{
	ErrMissingWallet,
	ErrMissingChallengeID,
	ErrInvalidTitle,
	ErrInvalidGame,
	ErrInvalidEntryFee,
	ErrInvalidFormat,
	ErrInvalidBracketSize,
	ErrMissingEscrowRef,
	ErrMissingSignature,
	ErrInvalidWinner,
	ErrInvalidAmount,
	ErrInvalidTeamName,
}

var idempotentErrors = []error{
	ErrAlreadySubmitted,
	ErrAlreadyRequestedCancel,
	ErrAlreadyProcessed,
	ErrAlreadyRefunded,
}

var transientErrors = []error{
	ErrEscrowUnavailable,
}

var preconditionErrors = []error{
	ErrActiveChallengeExists,
	ErrNotOpen,
	ErrFull,
	ErrAlreadyJoined,
	ErrTeamRequired,
	ErrEntryFeeNotConfirmed,
	ErrNotInProgress,
	ErrNotMainChallenger,
	ErrNotParticipant,
	ErrNotCompleted,
	ErrNotWinner,
	ErrNoWinner,
	ErrReviewRequired,
	ErrFounderManualPayout,
	ErrNotFounder,
	ErrAlreadyPaid,
	ErrPayoutPending,
	ErrNotExpired,
	ErrDeadlineNotPassed,
	ErrNotDisputed,
	ErrNotAdmin,
	ErrCannotCancel,
	ErrNoAutoWin,
	ErrUnknownProof,
	ErrProofMismatch,
	ErrNoRefundDue,
	ErrOperationInFlight,
	ErrInsufficientFunds,
	ErrEscrowExpired,
	ErrNotTerminal,
	ErrAlreadyInTeam,
	ErrNotTeamOwner,
}

// KindOf classifies an error returned by this package.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}

	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}

	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return KindValidation
		}
	}

	for _, target := range idempotentErrors {
		if errors.Is(err, target) {
			return KindIdempotent
		}
	}

	for _, target := range transientErrors {
		if errors.Is(err, target) {
			return KindTransient
		}
	}

	for _, target := range preconditionErrors {
		if errors.Is(err, target) {
			return KindPrecondition
		}
	}

	return KindInternal
}
