package receiver

import "time"

// ProofIndex describes one upload of result evidence.
type ProofIndex struct {
	ProofID     string    `json:"proof_id"`
	ChallengeID string    `json:"challenge_id"`
	Wallet      string    `json:"wallet"`
	Timestamp   time.Time `json:"timestamp"`
	Files       []string  `json:"files"`
}
