package exchange

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"follow-mm/internal/config"
)

const defaultReferenceTimeout = 10 * time.Second

// BinanceSource 通过 Binance 现货 REST 接口 /api/v3/ticker/price 获取最新价。
type BinanceSource struct {
	client  *binance.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewBinanceSource 创建 Binance 参考价来源，只访问公开行情接口。
func NewBinanceSource(cfg config.ReferenceConfig, logger *zap.Logger) *BinanceSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultReferenceTimeout
	}

	client := binance.NewClient("", "")
	if cfg.BaseURL != "" {
		client.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	client.HTTPClient = &http.Client{Timeout: timeout}

	return &BinanceSource{
		client:  client,
		timeout: timeout,
		logger:  logger,
	}
}

// Name 返回来源名称。
func (s *BinanceSource) Name() string {
	return "Binance"
}

// Price 获取 symbol 的最新价。
func (s *BinanceSource) Price(ctx context.Context, symbol string) (float64, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	prices, err := s.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("exchange: 获取 %s 参考价失败: %w", symbol, classifyBinanceError(err))
	}

	for _, p := range prices {
		if p == nil || p.Symbol != symbol {
			continue
		}
		v, err := decimal.NewFromString(p.Price)
		if err != nil || !v.IsPositive() {
			return 0, fmt.Errorf("%w: %s 返回了非法价格 %q", ErrNetwork, symbol, p.Price)
		}
		s.logger.Debug("获取参考价",
			zap.String("symbol", symbol),
			zap.String("price", p.Price),
			zap.Duration("latency", time.Since(start)),
		)
		return v.InexactFloat64(), nil
	}

	return 0, fmt.Errorf("%w: %s", ErrInvalidSymbol, symbol)
}
