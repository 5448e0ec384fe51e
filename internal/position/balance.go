package position

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"follow-mm/internal/book"
	"follow-mm/internal/browser"
)

const (
	// FreeQuoteSelector 为可用于买入的 USDT 余额。
	FreeQuoteSelector = "#user_base_trans"
	// FreeBaseSelector 为可用于卖出的币种余额。
	FreeBaseSelector = "#user_base_coin"

	defaultWaitTimeout = 10 * time.Second
)

// Balances 从交易页面读取可用余额。
type Balances struct {
	driver      browser.Driver
	waitTimeout time.Duration
	logger      *zap.Logger
}

// NewBalances 创建余额读取器。
func NewBalances(driver browser.Driver, waitTimeout time.Duration, logger *zap.Logger) *Balances {
	if waitTimeout <= 0 {
		waitTimeout = defaultWaitTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Balances{driver: driver, waitTimeout: waitTimeout, logger: logger}
}

// FreeQuote 返回可用 USDT。
func (b *Balances) FreeQuote(ctx context.Context) (float64, error) {
	return b.read(ctx, FreeQuoteSelector)
}

// FreeBase 返回可用币种数量。
func (b *Balances) FreeBase(ctx context.Context) (float64, error) {
	return b.read(ctx, FreeBaseSelector)
}

func (b *Balances) read(ctx context.Context, selector string) (float64, error) {
	el, err := b.driver.WaitUntilPresent(ctx, selector, b.waitTimeout)
	if err != nil {
		return 0, fmt.Errorf("position: 等待余额 %s 失败: %w", selector, err)
	}
	text, err := el.Text(ctx)
	if err != nil {
		return 0, fmt.Errorf("position: 读取余额 %s 失败: %w", selector, err)
	}
	v, err := book.ParseNumber(text)
	if err != nil {
		return 0, fmt.Errorf("position: 解析余额 %s 失败: %w", selector, err)
	}
	b.logger.Debug("读取余额", zap.String("selector", selector), zap.Float64("value", v))
	return v, nil
}
