package matchmaker

import "time"

type State string

const (
	StateNone    State = "NONE"
	StateALocked State = "A_LOCKED"
	StateBLocked State = "B_LOCKED"
	StateMutual  State = "MUTUAL"
)

type ToggleRequest struct {
	Initiator string `json:"initiator"`
	Target    string `json:"target"`
}

type ToggleResult struct {
	Initiator string `json:"initiator"`
	Target    string `json:"target"`
	// Locked is false when the toggle cleared the lock.
	Locked  bool   `json:"locked"`
	Mutual  bool   `json:"mutual"`
	MatchID string `json:"match_id"`
}

type ResolveRequest struct {
	MatchID  string `json:"match_id"`
	Reporter string `json:"reporter"`
	Opponent string `json:"opponent"`
	DidWin   bool   `json:"did_win"`
}

type FriendlyResult struct {
	MatchID    string    `json:"match_id"`
	Reporter   string    `json:"reporter"`
	Opponent   string    `json:"opponent"`
	Winner     string    `json:"winner"`
	ReportedAt time.Time `json:"reported_at"`
}
