package notify

import "time"

type Kind string

const (
	KindLock      Kind = "lock"
	KindChallenge Kind = "challenge"
)

// Lock notification statuses. Challenge notifications carry the challenge
// status instead.
const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

// Notification is a one-shot event record keyed by a deterministic id (a
// friendly match id or a challenge id); rewriting the same status is a no-op.
type Notification struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Status    string    `json:"status"`
	Wallets   []string  `json:"wallets"`
	Detail    string    `json:"detail,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (n *Notification) Concerns(wallet string) bool {
	for _, w := range n.Wallets {
		if w == wallet {
			return true
		}
	}

	return false
}
