package common_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/usdfg/arena/internal/pkg/common"
)

func TestLoadRulesDefaults(t *testing.T) {
	t.Parallel()

	rules, err := common.LoadRules("")
	require.NoError(t, err)

	assert.Equal(t, common.OneToken, rules.MinEntryFee)
	assert.Equal(t, 1000*common.OneToken, rules.MaxEntryFee)
	assert.Equal(t, int64(500), rules.PlatformFeeBps)
	assert.Equal(t, 24*time.Hour, rules.ChallengeTTL.Duration)
	assert.Equal(t, 2*time.Hour, rules.ResultWindow.Duration)
	assert.True(t, rules.ValidBracketSize(8))
	assert.False(t, rules.ValidBracketSize(3))
}

func TestLoadRulesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.toml")

	err := os.WriteFile(path, []byte(`
admin_wallet = "AdminWallet111"
platform_fee_bps = 250
bracket_sizes = [4, 8]
result_window = "30m"
`), 0600)
	require.NoError(t, err)

	rules, err := common.LoadRules(path)
	require.NoError(t, err)

	assert.Equal(t, int64(250), rules.PlatformFeeBps)
	assert.Equal(t, 30*time.Minute, rules.ResultWindow.Duration)
	assert.Equal(t, 24*time.Hour, rules.ChallengeTTL.Duration)
	assert.False(t, rules.ValidBracketSize(16))
	assert.True(t, rules.IsAdmin("adminwallet111"))
	assert.False(t, rules.IsAdmin("someone"))
}

func TestLoadRulesBadDuration(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.toml")

	err := os.WriteFile(path, []byte(`challenge_ttl = "soon"`), 0600)
	require.NoError(t, err)

	_, err = common.LoadRules(path)
	assert.Error(t, err)
}
