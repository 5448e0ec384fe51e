package exchange

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"follow-mm/internal/config"
)

// PriceSource 提供参考交易所的现货最新价。实现内部不做重试。
type PriceSource interface {
	Name() string
	// Price 返回 symbol（如 BTCUSDT）的最新价，错误包装 ErrNetwork 或 ErrInvalidSymbol。
	Price(ctx context.Context, symbol string) (float64, error)
}

// NewPriceSource 根据配置创建参考价来源。
func NewPriceSource(cfg config.ReferenceConfig, logger *zap.Logger) (PriceSource, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "binance":
		return NewBinanceSource(cfg, logger), nil
	case "ccxt":
		return NewCCXTSource(cfg, logger)
	default:
		return nil, fmt.Errorf("exchange: 不支持的参考价来源 %q", cfg.Provider)
	}
}
