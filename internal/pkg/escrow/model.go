package escrow

import (
	"errors"
	"fmt"
)

// OnChainStatus is the status byte of the escrow program's challenge account.
type OnChainStatus uint8

const (
	StatusOpen OnChainStatus = iota
	StatusInProgress
	StatusCompleted
	StatusCancelled
	StatusDisputed
)

func (s OnChainStatus) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusInProgress:
		return "in-progress"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusDisputed:
		return "disputed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// StatusOffset is where the status byte sits in the account data:
// discriminator, creator, optional challenger, entry fee.
const StatusOffset = 8 + 32 + 33 + 8

type Kind int

const (
	KindUnknown Kind = iota
	KindInsufficientFunds
	KindAlreadyProcessed
	KindExpired
	KindNotOpen
	KindNotFound
	KindTimeout
	KindUnconfirmed
	KindPending
)

func (k Kind) String() string {
	switch k {
	case KindInsufficientFunds:
		return "insufficient-funds"
	case KindAlreadyProcessed:
		return "already-processed"
	case KindExpired:
		return "expired"
	case KindNotOpen:
		return "not-open"
	case KindNotFound:
		return "not-found"
	case KindTimeout:
		return "timeout"
	case KindUnconfirmed:
		return "unconfirmed"
	case KindPending:
		return "pending"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Op   string
	// Signature is set for KindPending.
	Signature string
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("escrow %s: %s", e.Op, e.Kind)
	}

	return fmt.Sprintf("escrow %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of an escrow error, KindUnknown for anything else.
func KindOf(err error) Kind {
	var escrowErr *Error
	if errors.As(err, &escrowErr) {
		return escrowErr.Kind
	}

	return KindUnknown
}

func newError(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
