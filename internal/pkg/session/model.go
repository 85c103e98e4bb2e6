package session

import (
	"sync"

	"github.com/usdfg/arena/internal/pkg/challenge"
	"github.com/usdfg/arena/internal/pkg/matchmaker"
)

// View is what a connected wallet sees, derived from the latest challenge
// and lock snapshots.
type View struct {
	Wallet    string `json:"wallet,omitempty"`
	Connected bool   `json:"connected"`

	HasActiveChallenge bool   `json:"has_active_challenge"`
	ActiveChallengeID  string `json:"active_challenge_id,omitempty"`

	LockedTarget  string `json:"locked_target,omitempty"`
	MutualPartner string `json:"mutual_partner,omitempty"`
	MatchID       string `json:"match_id,omitempty"`

	// AutoWinChallenges lists challenges where the opponent conceded and the
	// wallet has not reported yet.
	AutoWinChallenges []string `json:"auto_win_challenges,omitempty"`

	Balance int64 `json:"balance"`
}

// Session is the explicit per-connection context: the connected wallet and
// the view derived for it. Every update recomputes the view from scratch.
type Session struct {
	mu sync.RWMutex

	wallet     string
	challenges []challenge.Challenge
	locks      map[string]string
	view       View
}

func NewSession() *Session {
	return &Session{
		locks: map[string]string{},
	}
}

func (s *Session) Connect(wallet string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.wallet = wallet
	s.recompute()
}

func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.wallet = ""
	s.recompute()
}

func (s *Session) ApplyChallenges(snapshot []challenge.Challenge) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenges = snapshot
	s.recompute()
}

func (s *Session) ApplyLocks(snapshot map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.locks = snapshot
	s.recompute()
}

func (s *Session) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view := s.view
	view.AutoWinChallenges = append([]string(nil), s.view.AutoWinChallenges...)

	return view
}

func (s *Session) Wallet() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wallet
}

func (s *Session) recompute() {
	view := View{
		Wallet:    s.wallet,
		Connected: s.wallet != "",
	}

	if view.Connected {
		view.ActiveChallengeID, view.HasActiveChallenge = challenge.ActiveChallengeOf(s.challenges, s.wallet)

		for i := range s.challenges {
			if challenge.AutoWinAvailable(&s.challenges[i], s.wallet) {
				view.AutoWinChallenges = append(view.AutoWinChallenges, s.challenges[i].ID)
			}
		}

		target := s.locks[s.wallet]
		view.LockedTarget = target

		if matchmaker.IsMutual(s.locks, s.wallet, target) {
			view.MutualPartner = target
			view.MatchID = matchmaker.MatchID(s.wallet, target)
		}
	}

	s.view = view
}
