package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/multierr"
)

const defaultEnvFile = ".env"

type envBinding struct {
	key      string
	env      string
	required bool
}

// 配置项与环境变量的对应关系，required 为 true 的项缺失即启动失败。
var envBindings = []envBinding{
	{key: "app.victoria_url", env: "VICTORIA_URL", required: true},
	{key: "app.password", env: "APP_PASSWORD"},

	{key: "discount.min", env: "DISCOUNT_MIN", required: true},
	{key: "discount.max", env: "DISCOUNT_MAX", required: true},

	{key: "ladder.levels", env: "MM_LEVELS", required: true},
	{key: "ladder.rebase_interval_sec", env: "MM_REBASE_INTERVAL_SEC", required: true},
	{key: "ladder.topup_interval_sec", env: "MM_TOPUP_INTERVAL_SEC", required: true},
	{key: "ladder.step_percent", env: "MM_STEP_PERCENT", required: true},
	{key: "ladder.cancel_row_timeout_sec", env: "MM_CANCEL_ROW_TIMEOUT_SEC", required: true},
	{key: "ladder.max_cancel_ops_per_cycle", env: "MM_MAX_CANCEL_OPS_PER_CYCLE", required: true},
	{key: "ladder.buy_budget_ratio", env: "MM_BUY_BUDGET_RATIO", required: true},
	{key: "ladder.sell_qty_ratio", env: "MM_SELL_QTY_RATIO", required: true},
	{key: "ladder.toast_wait_sec", env: "MM_TOAST_WAIT_SEC"},

	{key: "reference.provider", env: "REFERENCE_PROVIDER"},
	{key: "reference.base_url", env: "REFERENCE_BASE_URL"},
	{key: "reference.exchange", env: "REFERENCE_EXCHANGE"},
	{key: "reference.timeout", env: "REFERENCE_TIMEOUT"},

	{key: "browser.bin", env: "CHROME_BIN"},
	{key: "browser.headless", env: "CHROME_HEADLESS"},
	{key: "browser.remote_url", env: "CHROME_REMOTE_URL"},

	{key: "modes.follow_update_sec", env: "FOLLOW_UPDATE_SEC"},
	{key: "modes.orderbook_refresh_sec", env: "ORDERBOOK_REFRESH_SEC"},

	{key: "database.path", env: "JOURNAL_PATH"},

	{key: "logging.level", env: "LOG_LEVEL"},
	{key: "logging.encoding", env: "LOG_ENCODING"},
	{key: "logging.dir", env: "LOG_DIR"},

	{key: "monitor.addr", env: "MONITOR_ADDR"},
}

// Load 先加载 .env 文件（已存在的环境变量优先），再从环境变量构建 Config。
// envFile 为空或为 ".env" 时尝试读取当前目录的 .env，文件不存在则忽略。
func Load(envFile string) (*Config, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	v := viper.New()
	for _, b := range envBindings {
		if err := v.BindEnv(b.key, b.env); err != nil {
			return nil, fmt.Errorf("绑定环境变量 %s 失败: %w", b.env, err)
		}
	}

	setDefaults(v)

	if err := checkRequired(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("%w: 解析配置失败: %w", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadEnvFile(path string) error {
	// 默认路径的 .env 可有可无，只有显式指定的其他文件缺失才报错
	explicit := path != "" && path != defaultEnvFile
	if !explicit {
		path = defaultEnvFile
	}

	if err := gotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: 读取环境文件 %q 失败: %w", ErrInvalidConfig, path, err)
	}
	return nil
}

func checkRequired(v *viper.Viper) error {
	var err error
	for _, b := range envBindings {
		if !b.required {
			continue
		}
		if !v.IsSet(b.key) || strings.TrimSpace(os.Getenv(b.env)) == "" {
			err = multierr.Append(err, fmt.Errorf("%s 未设置", b.env))
		}
	}
	if err != nil {
		return fmt.Errorf("%w: 缺少必要配置: %w", ErrInvalidConfig, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ladder.toast_wait_sec", 0.0)

	v.SetDefault("reference.provider", "binance")
	v.SetDefault("reference.base_url", "")
	v.SetDefault("reference.exchange", "binance")
	v.SetDefault("reference.timeout", "10s")

	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.ready_timeout", "20s")
	v.SetDefault("browser.read_timeout", "10s")

	v.SetDefault("modes.follow_update_sec", 1.0)
	v.SetDefault("modes.orderbook_refresh_sec", 10.0)

	v.SetDefault("database.path", "")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.dir", "logs")
	v.SetDefault("logging.max_size_mb", 5)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("monitor.addr", "")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
