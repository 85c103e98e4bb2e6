package common

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// TokenDecimals is the number of decimals of the arena token; amounts are
// stored in base units.
const TokenDecimals = 9

const OneToken int64 = 1_000_000_000

// Rules holds the game rules of the arena.
type Rules struct {
	AdminWallet string `toml:"admin_wallet"`

	MinEntryFee    int64 `toml:"min_entry_fee"`
	MaxEntryFee    int64 `toml:"max_entry_fee"`
	PlatformFeeBps int64 `toml:"platform_fee_bps"`

	BracketSizes []int `toml:"bracket_sizes"`

	ChallengeTTL   Duration `toml:"challenge_ttl"`
	ResultWindow   Duration `toml:"result_window"`
	BalanceTimeout Duration `toml:"balance_timeout"`
}

// Duration is a time.Duration that reads "2h" style strings from TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}

	d.Duration = parsed

	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadRules reads rules from a TOML file. An empty path yields the defaults.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var rules Rules
	if err := toml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}

	rules.SetDefaults()

	return &rules, nil
}

func DefaultRules() *Rules {
	rules := &Rules{}
	rules.SetDefaults()

	return rules
}

func (r *Rules) SetDefaults() {
	if r.MinEntryFee == 0 {
		r.MinEntryFee = OneToken
	}
	if r.MaxEntryFee == 0 {
		r.MaxEntryFee = 1000 * OneToken
	}
	if r.PlatformFeeBps == 0 {
		r.PlatformFeeBps = 500 // 5%
	}
	if len(r.BracketSizes) == 0 {
		r.BracketSizes = []int{4, 8, 16}
	}
	if r.ChallengeTTL.Duration == 0 {
		r.ChallengeTTL.Duration = 24 * time.Hour
	}
	if r.ResultWindow.Duration == 0 {
		r.ResultWindow.Duration = 2 * time.Hour
	}
	if r.BalanceTimeout.Duration == 0 {
		r.BalanceTimeout.Duration = 5 * time.Second
	}
}

func (r *Rules) IsAdmin(wallet string) bool {
	return r.AdminWallet != "" && strings.EqualFold(r.AdminWallet, wallet)
}

func (r *Rules) ValidBracketSize(size int) bool {
	for _, s := range r.BracketSizes {
		if s == size {
			return true
		}
	}

	return false
}
