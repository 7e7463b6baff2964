package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.HTTP.Port)
	assert.True(t, cfg.Trading.DryRun)
	assert.Equal(t, "auto", cfg.Trading.LeveragePolicy)
	assert.Equal(t, 5, cfg.Trading.DefaultLeverage)
	assert.InDelta(t, 50.0, cfg.Trading.AllocationPct, 1e-9)
	assert.InDelta(t, 10.0, cfg.Trading.PerTradePct, 1e-9)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[trading]
allocation_pct = 30.0
per_trade_pct = 20.0
leverage_policy = "per_symbol"
leverage_per_symbol = "BTCUSDT:7, ethusdt:6, bogus, XRPUSDT:0"
whitelist = " btcusdt , ETHUSDT ,"
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.InDelta(t, 30.0, cfg.Trading.AllocationPct, 1e-9)
	assert.Equal(t, "per_symbol", cfg.Trading.LeveragePolicy)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Trading.WhitelistSymbols())
	// 非法与非正条目被跳过
	assert.Equal(t, map[string]int{"BTCUSDT": 7, "ETHUSDT": 6}, cfg.Trading.LeverageMap())
}

func TestValidateRejections(t *testing.T) {
	write := func(t *testing.T, body string) string {
		path := filepath.Join(t.TempDir(), "config.toml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0644))
		return path
	}

	t.Run("bad policy", func(t *testing.T) {
		_, err := Load(write(t, "[trading]\nleverage_policy = \"random\"\n"))
		assert.Error(t, err)
	})

	t.Run("allocation out of range", func(t *testing.T) {
		_, err := Load(write(t, "[trading]\nallocation_pct = 150.0\n"))
		assert.Error(t, err)
	})

	t.Run("live mode requires credentials", func(t *testing.T) {
		_, err := Load(write(t, "[trading]\ndry_run = false\n"))
		assert.Error(t, err)
	})
}

func TestEmptyWhitelistMeansUnrestricted(t *testing.T) {
	var tc TradingConfig
	assert.Nil(t, tc.WhitelistSymbols())
}
