package challenge

import (
	"context"

	"github.com/usdfg/arena/internal/pkg/escrow"
	"github.com/usdfg/arena/internal/pkg/notify"
	"github.com/usdfg/arena/internal/pkg/receiver"
)

// Repository is the challenge record store.
type Repository interface {
	Create(ctx context.Context, c *Challenge) error
	Get(ctx context.Context, id string) (*Challenge, error)
	// Update applies fn atomically. When fn fails nothing is written and the
	// stored record is returned along with the error.
	Update(ctx context.Context, id string, fn func(c *Challenge) error) (*Challenge, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Challenge, error)
}

type TeamStore interface {
	CreateTeam(ctx context.Context, team *Team) error
	AddTeamMember(ctx context.Context, teamID, member string) (*Team, error)
	// TeamOf returns nil when the wallet is in no team.
	TeamOf(ctx context.Context, wallet string) (*Team, error)
}

// Escrow moves and verifies funds held by the on-chain program.
type Escrow interface {
	VerifyDeposit(ctx context.Context, ref, wallet, signature string) error
	Release(ctx context.Context, ref, winner, signedTx string) (string, error)
	Status(ctx context.Context, ref string) (escrow.OnChainStatus, error)
}

type Notifier interface {
	Notify(ctx context.Context, n notify.Notification) (bool, error)
}

type ReviewChecker interface {
	HasReviewed(ctx context.Context, reviewer, opponent, challengeID string) (bool, error)
}

// ProofChecker looks up uploaded result proofs. Unknown ids fail with
// receiver.ErrProofNotFound or receiver.ErrInvalidProofID.
type ProofChecker interface {
	Proof(ctx context.Context, proofID string) (*receiver.ProofIndex, error)
}
