package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// ErrInvalidConfig 表示缺失或非法的必要配置，启动阶段即视为致命错误。
var ErrInvalidConfig = errors.New("invalid configuration")

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Ladder    LadderConfig    `mapstructure:"ladder"`
	Discount  DiscountConfig  `mapstructure:"discount"`
	Reference ReferenceConfig `mapstructure:"reference"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Modes     ModesConfig     `mapstructure:"modes"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	VictoriaURL string `mapstructure:"victoria_url"`
	Password    string `mapstructure:"password"`
}

// LadderConfig 描述做市阶梯引擎参数。
type LadderConfig struct {
	Levels               int     `mapstructure:"levels"`
	RebaseIntervalSec    int     `mapstructure:"rebase_interval_sec"`
	TopupIntervalSec     int     `mapstructure:"topup_interval_sec"`
	StepPercent          float64 `mapstructure:"step_percent"`
	CancelRowTimeoutSec  int     `mapstructure:"cancel_row_timeout_sec"`
	MaxCancelOpsPerCycle int     `mapstructure:"max_cancel_ops_per_cycle"`
	BuyBudgetRatio       float64 `mapstructure:"buy_budget_ratio"`
	SellQtyRatio         float64 `mapstructure:"sell_qty_ratio"`
	ToastWaitSec         float64 `mapstructure:"toast_wait_sec"`
}

// RebaseInterval 返回重置周期。
func (l LadderConfig) RebaseInterval() time.Duration {
	return time.Duration(l.RebaseIntervalSec) * time.Second
}

// TopupInterval 返回补单周期。
func (l LadderConfig) TopupInterval() time.Duration {
	return time.Duration(l.TopupIntervalSec) * time.Second
}

// CancelTimeout 返回撤单确认超时。
func (l LadderConfig) CancelTimeout() time.Duration {
	return time.Duration(l.CancelRowTimeoutSec) * time.Second
}

// ToastWait 返回每次下单/撤单后的额外等待。
func (l LadderConfig) ToastWait() time.Duration {
	return time.Duration(l.ToastWaitSec * float64(time.Second))
}

// DiscountConfig 为每个周期随机折扣的上下限（百分比）。
type DiscountConfig struct {
	MinPercent float64 `mapstructure:"min"`
	MaxPercent float64 `mapstructure:"max"`
}

// ReferenceConfig 描述参考价格来源。
type ReferenceConfig struct {
	Provider string        `mapstructure:"provider"`
	BaseURL  string        `mapstructure:"base_url"`
	Exchange string        `mapstructure:"exchange"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// BrowserConfig 控制浏览器会话。
type BrowserConfig struct {
	Bin          string        `mapstructure:"bin"`
	Headless     bool          `mapstructure:"headless"`
	RemoteURL    string        `mapstructure:"remote_url"`
	ReadyTimeout time.Duration `mapstructure:"ready_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
}

// ModesConfig 控制只读模式的刷新节奏。
type ModesConfig struct {
	FollowUpdateSec     float64 `mapstructure:"follow_update_sec"`
	OrderbookRefreshSec float64 `mapstructure:"orderbook_refresh_sec"`
}

// FollowUpdate 返回参考价打印间隔。
func (m ModesConfig) FollowUpdate() time.Duration {
	return time.Duration(m.FollowUpdateSec * float64(time.Second))
}

// OrderbookRefresh 返回盘口刷新间隔。
func (m ModesConfig) OrderbookRefresh() time.Duration {
	return time.Duration(m.OrderbookRefreshSec * float64(time.Second))
}

// DatabaseConfig 管理活动日志数据库，Path 为空表示不启用。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// Enabled 判断是否启用活动日志。
func (d DatabaseConfig) Enabled() bool {
	return d.InMemory || strings.TrimSpace(d.Path) != ""
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	Dir              string   `mapstructure:"dir"`
	MaxSizeMB        int      `mapstructure:"max_size_mb"`
	MaxBackups       int      `mapstructure:"max_backups"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// MonitorConfig 控制监控接口，Addr 为空表示不启动。
type MonitorConfig struct {
	Addr string `mapstructure:"addr"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.VictoriaURL == "" {
		err = multierr.Append(err, errors.New("VICTORIA_URL 不能为空"))
	} else if u, parseErr := url.Parse(c.App.VictoriaURL); parseErr != nil || u.Scheme == "" || u.Host == "" {
		err = multierr.Append(err, fmt.Errorf("VICTORIA_URL 格式非法: %q", c.App.VictoriaURL))
	}

	if c.Ladder.Levels < 1 {
		err = multierr.Append(err, errors.New("MM_LEVELS 必须大于等于1"))
	}
	if c.Ladder.RebaseIntervalSec <= 0 {
		err = multierr.Append(err, errors.New("MM_REBASE_INTERVAL_SEC 必须大于0"))
	}
	if c.Ladder.TopupIntervalSec <= 0 {
		err = multierr.Append(err, errors.New("MM_TOPUP_INTERVAL_SEC 必须大于0"))
	}
	if c.Ladder.StepPercent <= 0 {
		err = multierr.Append(err, errors.New("MM_STEP_PERCENT 必须大于0"))
	}
	if c.Ladder.CancelRowTimeoutSec <= 0 {
		err = multierr.Append(err, errors.New("MM_CANCEL_ROW_TIMEOUT_SEC 必须大于0"))
	}
	if c.Ladder.MaxCancelOpsPerCycle < 0 {
		err = multierr.Append(err, errors.New("MM_MAX_CANCEL_OPS_PER_CYCLE 不能为负"))
	}
	if c.Ladder.BuyBudgetRatio <= 0 || c.Ladder.BuyBudgetRatio > 1 {
		err = multierr.Append(err, errors.New("MM_BUY_BUDGET_RATIO 必须位于(0,1]"))
	}
	if c.Ladder.SellQtyRatio <= 0 || c.Ladder.SellQtyRatio > 1 {
		err = multierr.Append(err, errors.New("MM_SELL_QTY_RATIO 必须位于(0,1]"))
	}
	if c.Ladder.ToastWaitSec < 0 {
		err = multierr.Append(err, errors.New("MM_TOAST_WAIT_SEC 不能为负"))
	}
	if c.Discount.MinPercent < 0 || c.Discount.MaxPercent < 0 {
		err = multierr.Append(err, errors.New("DISCOUNT_MIN/DISCOUNT_MAX 不能为负"))
	}
	if c.Discount.MinPercent > c.Discount.MaxPercent {
		err = multierr.Append(err, errors.New("DISCOUNT_MIN 不能大于 DISCOUNT_MAX"))
	}
	if c.Discount.MaxPercent >= 100 {
		err = multierr.Append(err, errors.New("DISCOUNT_MAX 必须小于100"))
	}

	switch strings.ToLower(c.Reference.Provider) {
	case "binance", "ccxt":
	default:
		err = multierr.Append(err, fmt.Errorf("REFERENCE_PROVIDER 仅支持 binance 或 ccxt，当前为 %q", c.Reference.Provider))
	}
	if c.Reference.Timeout <= 0 {
		err = multierr.Append(err, errors.New("REFERENCE_TIMEOUT 必须大于0"))
	}

	if c.Browser.ReadyTimeout <= 0 || c.Browser.ReadTimeout <= 0 {
		err = multierr.Append(err, errors.New("browser 等待超时必须大于0"))
	}
	if c.Modes.FollowUpdateSec <= 0 {
		err = multierr.Append(err, errors.New("FOLLOW_UPDATE_SEC 必须大于0"))
	}
	if c.Modes.OrderbookRefreshSec <= 0 {
		err = multierr.Append(err, errors.New("ORDERBOOK_REFRESH_SEC 必须大于0"))
	}

	if c.Database.Enabled() {
		if c.Database.MaxOpenConns <= 0 {
			err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
		}
		if c.Database.MaxIdleConns < 0 {
			err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
		}
	}

	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("LOG_LEVEL 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("LOG_ENCODING 不能为空"))
	}
	if c.Logging.MaxSizeMB <= 0 {
		err = multierr.Append(err, errors.New("logging.max_size_mb 必须大于0"))
	}

	if err != nil {
		return fmt.Errorf("%w: 配置校验失败: %w", ErrInvalidConfig, err)
	}

	return nil
}
