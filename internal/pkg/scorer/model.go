package scorer

// Outcome is a resolved match with a single winner, sent by the challenge and
// matchmaker services.
type Outcome struct {
	ChallengeID string `json:"challenge_id"`
	Winner      string `json:"winner"`
	Loser       string `json:"loser"`
	Prize       int64  `json:"prize"`
	Game        string `json:"game,omitempty"`
	Category    string `json:"category,omitempty"`
	Friendly    bool   `json:"friendly,omitempty"`
}

type Scorecard struct {
	Wallet string  `json:"wallet"`
	Rating float64 `json:"rating"`
	Count  int64   `json:"count"`
	Wins   int64   `json:"wins"`
	Losses int64   `json:"losses"`
	// Earned is the sum of prizes won, in token base units.
	Earned int64 `json:"earned"`
}

type GameStats struct {
	Game     string `json:"game"`
	Category string `json:"category,omitempty"`
	Matches  int64  `json:"matches"`
	Friendly int64  `json:"friendly"`
}
