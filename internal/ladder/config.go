package ladder

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"follow-mm/internal/config"
)

const (
	DefaultTick            = 500 * time.Millisecond
	DefaultPlacementPause  = 150 * time.Millisecond
	DefaultPriceRetryDelay = time.Second
)

// ErrInvalidConfig 表示阶梯参数非法。
var ErrInvalidConfig = errors.New("ladder: 参数非法")

// Config 为单个引擎的不可变参数。
type Config struct {
	Levels               int
	RebaseInterval       time.Duration
	TopupInterval        time.Duration
	StepPercent          float64
	MaxCancelOpsPerCycle int
	CancelTimeout        time.Duration
	BuyBudgetRatio       float64
	SellQtyRatio         float64
	DiscountMinPercent   float64
	DiscountMaxPercent   float64

	Tick            time.Duration
	PlacementPause  time.Duration
	ToastWait       time.Duration
	PriceRetryDelay time.Duration
}

// FromConfig 从应用配置构建引擎参数。
func FromConfig(cfg *config.Config) Config {
	return Config{
		Levels:               cfg.Ladder.Levels,
		RebaseInterval:       cfg.Ladder.RebaseInterval(),
		TopupInterval:        cfg.Ladder.TopupInterval(),
		StepPercent:          cfg.Ladder.StepPercent,
		MaxCancelOpsPerCycle: cfg.Ladder.MaxCancelOpsPerCycle,
		CancelTimeout:        cfg.Ladder.CancelTimeout(),
		BuyBudgetRatio:       cfg.Ladder.BuyBudgetRatio,
		SellQtyRatio:         cfg.Ladder.SellQtyRatio,
		DiscountMinPercent:   cfg.Discount.MinPercent,
		DiscountMaxPercent:   cfg.Discount.MaxPercent,
		Tick:                 DefaultTick,
		PlacementPause:       DefaultPlacementPause,
		ToastWait:            cfg.Ladder.ToastWait(),
		PriceRetryDelay:      DefaultPriceRetryDelay,
	}
}

// StepRatio 将步长百分比转换为比例，例如 0.2 -> 0.002。
func (c Config) StepRatio() float64 {
	return c.StepPercent / 100
}

// Validate 校验全部参数并一次性返回所有问题。
func (c Config) Validate() error {
	var err error
	if c.Levels < 1 {
		err = multierr.Append(err, fmt.Errorf("levels 必须大于等于1，当前为 %d", c.Levels))
	}
	if c.StepPercent <= 0 {
		err = multierr.Append(err, fmt.Errorf("step_percent 必须大于0，当前为 %v", c.StepPercent))
	}
	if c.StepPercent >= 100 {
		err = multierr.Append(err, fmt.Errorf("step_percent 必须小于100，当前为 %v", c.StepPercent))
	}
	if c.BuyBudgetRatio <= 0 || c.BuyBudgetRatio > 1 {
		err = multierr.Append(err, fmt.Errorf("buy_budget_ratio 必须位于(0,1]，当前为 %v", c.BuyBudgetRatio))
	}
	if c.SellQtyRatio <= 0 || c.SellQtyRatio > 1 {
		err = multierr.Append(err, fmt.Errorf("sell_qty_ratio 必须位于(0,1]，当前为 %v", c.SellQtyRatio))
	}
	if c.DiscountMinPercent < 0 || c.DiscountMinPercent > c.DiscountMaxPercent {
		err = multierr.Append(err, fmt.Errorf("折扣区间非法: [%v, %v]", c.DiscountMinPercent, c.DiscountMaxPercent))
	}
	if c.DiscountMaxPercent >= 100 {
		err = multierr.Append(err, fmt.Errorf("折扣上限必须小于100，当前为 %v", c.DiscountMaxPercent))
	}
	if c.MaxCancelOpsPerCycle < 0 {
		err = multierr.Append(err, fmt.Errorf("max_cancel_ops_per_cycle 不能为负，当前为 %d", c.MaxCancelOpsPerCycle))
	}
	if c.RebaseInterval <= 0 || c.TopupInterval <= 0 {
		err = multierr.Append(err, errors.New("rebase/topup 周期必须大于0"))
	}
	if c.CancelTimeout <= 0 {
		err = multierr.Append(err, errors.New("cancel_timeout 必须大于0"))
	}
	if c.Tick <= 0 {
		err = multierr.Append(err, errors.New("tick 必须大于0"))
	}
	if c.PlacementPause < 0 || c.ToastWait < 0 || c.PriceRetryDelay < 0 {
		err = multierr.Append(err, errors.New("等待时间不能为负"))
	}

	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
