package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	values := map[string]string{
		"VICTORIA_URL":                "https://victoriaex.example",
		"DISCOUNT_MIN":                "0.5",
		"DISCOUNT_MAX":                "1.5",
		"MM_LEVELS":                   "15",
		"MM_REBASE_INTERVAL_SEC":      "600",
		"MM_TOPUP_INTERVAL_SEC":       "30",
		"MM_STEP_PERCENT":             "0.2",
		"MM_CANCEL_ROW_TIMEOUT_SEC":   "10",
		"MM_MAX_CANCEL_OPS_PER_CYCLE": "5",
		"MM_BUY_BUDGET_RATIO":         "0.5",
		"MM_SELL_QTY_RATIO":           "0.8",
	}
	for k, v := range values {
		t.Setenv(k, v)
	}
}

func emptyEnvFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.env")
	require.NoError(t, os.WriteFile(path, []byte("# no overrides\n"), 0o600))
	return path
}

func TestLoad_FromEnvironment(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load(emptyEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "https://victoriaex.example", cfg.App.VictoriaURL)
	assert.Equal(t, 15, cfg.Ladder.Levels)
	assert.Equal(t, 600*time.Second, cfg.Ladder.RebaseInterval())
	assert.Equal(t, 30*time.Second, cfg.Ladder.TopupInterval())
	assert.Equal(t, 10*time.Second, cfg.Ladder.CancelTimeout())
	assert.InDelta(t, 0.2, cfg.Ladder.StepPercent, 1e-12)
	assert.InDelta(t, 0.5, cfg.Discount.MinPercent, 1e-12)
	assert.InDelta(t, 1.5, cfg.Discount.MaxPercent, 1e-12)
	assert.Equal(t, 5, cfg.Ladder.MaxCancelOpsPerCycle)
	assert.Equal(t, time.Duration(0), cfg.Ladder.ToastWait())

	assert.Equal(t, "binance", cfg.Reference.Provider)
	assert.Equal(t, 10*time.Second, cfg.Reference.Timeout)
	assert.Equal(t, 20*time.Second, cfg.Browser.ReadyTimeout)
	assert.Equal(t, 10*time.Second, cfg.Modes.OrderbookRefresh())
	assert.False(t, cfg.Database.Enabled())
	assert.Equal(t, "logs", cfg.Logging.Dir)
}

func TestLoad_MissingRequiredIsFatal(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MM_LEVELS", "")
	t.Setenv("MM_STEP_PERCENT", "")

	_, err := Load(emptyEnvFile(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "MM_LEVELS")
	assert.Contains(t, err.Error(), "MM_STEP_PERCENT")
}

func TestLoad_EnvFileDoesNotOverrideEnvironment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MM_TOAST_WAIT_SEC", "")
	t.Setenv("JOURNAL_PATH", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "bot.env")
	content := "MM_LEVELS=3\nMM_TOAST_WAIT_SEC=0.25\nJOURNAL_PATH=" + filepath.Join(dir, "journal.db") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	// gotenv 只设置尚未存在的变量，因此先清除 t.Setenv 留下的空值。
	require.NoError(t, os.Unsetenv("MM_TOAST_WAIT_SEC"))
	require.NoError(t, os.Unsetenv("JOURNAL_PATH"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.Ladder.Levels, "existing environment must win over the env file")
	assert.Equal(t, 250*time.Millisecond, cfg.Ladder.ToastWait())
	assert.True(t, cfg.Database.Enabled())
}

func TestLoad_DefaultEnvFileMissingIsIgnored(t *testing.T) {
	setRequiredEnv(t)
	t.Chdir(t.TempDir())

	for _, path := range []string{"", defaultEnvFile} {
		cfg, err := Load(path)
		require.NoError(t, err, "env file %q", path)
		assert.Equal(t, 15, cfg.Ladder.Levels)
	}
}

func TestLoad_ExplicitEnvFileMissing(t *testing.T) {
	setRequiredEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.env"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate_CollectsAllViolations(t *testing.T) {
	cfg := Config{
		App:       AppConfig{VictoriaURL: "not a url"},
		Ladder:    LadderConfig{Levels: 0, StepPercent: 0, BuyBudgetRatio: 1.5, SellQtyRatio: 0},
		Discount:  DiscountConfig{MinPercent: 2, MaxPercent: 1},
		Reference: ReferenceConfig{Provider: "kraken"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	for _, fragment := range []string{
		"VICTORIA_URL",
		"MM_LEVELS",
		"MM_STEP_PERCENT",
		"MM_BUY_BUDGET_RATIO",
		"MM_SELL_QTY_RATIO",
		"DISCOUNT_MIN 不能大于 DISCOUNT_MAX",
		"REFERENCE_PROVIDER",
	} {
		assert.Contains(t, err.Error(), fragment)
	}
}
