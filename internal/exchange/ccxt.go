package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"follow-mm/internal/config"
)

const quoteAsset = "USDT"

// CCXTSource 通过 ccxt 的 Binance 现货行情获取最新价。
type CCXTSource struct {
	cfg      config.ReferenceConfig
	logger   *zap.Logger
	exchange *ccxt.Binance

	// fetchLast 与 loadMarkets 便于测试替换
	fetchLast   func(symbol string) (float64, error)
	loadMarkets func() error

	marketsMu     sync.Mutex
	marketsLoaded bool
}

// NewCCXTSource 构造 ccxt 参考价来源，仅使用公开接口。
func NewCCXTSource(cfg config.ReferenceConfig, logger *zap.Logger) (*CCXTSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ex := strings.ToLower(cfg.Exchange); ex != "" && ex != "binance" {
		return nil, fmt.Errorf("exchange: ccxt 参考价暂只支持 binance，当前为 %q", cfg.Exchange)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultReferenceTimeout
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"timeout":         timeout.Milliseconds(),
		"options": map[string]interface{}{
			"defaultType": "spot",
		},
	}

	s := &CCXTSource{
		cfg:      cfg,
		logger:   logger,
		exchange: ccxt.NewBinance(userConfig),
	}
	s.fetchLast = s.fetchTickerLast
	s.loadMarkets = func() error {
		_, err := s.exchange.LoadMarkets()
		return err
	}
	return s, nil
}

// Name 返回来源名称。
func (s *CCXTSource) Name() string {
	return "Binance"
}

// Price 获取 symbol（如 BTCUSDT）的最新价。
func (s *CCXTSource) Price(ctx context.Context, symbol string) (float64, error) {
	unified := unifiedSymbol(symbol)

	if err := s.ensureMarketsLoaded(ctx); err != nil {
		return 0, s.failed("load_markets", symbol, err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	price, err := s.fetchLast(unified)
	if err != nil {
		return 0, s.failed("fetch_ticker", symbol, err)
	}
	return price, nil
}

// failed 归类 ccxt 错误并记录一次告警，由调用方决定何时再试。
func (s *CCXTSource) failed(operation, symbol string, err error) error {
	normalized := classifyCCXTError(err)
	msg := "参考价调用失败"
	if errors.Is(normalized, ErrMaintenance) {
		msg = "参考交易所维护中"
	}
	s.logger.Warn(msg,
		zap.String("operation", operation),
		zap.String("symbol", symbol),
		zap.Error(normalized),
	)
	return fmt.Errorf("exchange: 获取 %s 参考价失败: %w", symbol, normalized)
}

func (s *CCXTSource) fetchTickerLast(symbol string) (float64, error) {
	ticker, err := s.exchange.FetchTicker(symbol)
	if err != nil {
		return 0, err
	}
	switch {
	case ticker.Last != nil && *ticker.Last > 0:
		return *ticker.Last, nil
	case ticker.Close != nil && *ticker.Close > 0:
		return *ticker.Close, nil
	default:
		return 0, fmt.Errorf("%w: %s 行情缺少最新价", ErrNetwork, symbol)
	}
}

func (s *CCXTSource) ensureMarketsLoaded(ctx context.Context) error {
	if s.marketsLoaded {
		return nil
	}

	s.marketsMu.Lock()
	defer s.marketsMu.Unlock()

	if s.marketsLoaded {
		return nil
	}

	if err := s.loadMarkets(); err != nil {
		return err
	}

	s.marketsLoaded = true
	s.logger.Info("已完成市场元数据加载", zap.String("exchange", "binance"))
	return nil
}

// unifiedSymbol 将 BTCUSDT 转换为 ccxt 统一格式 BTC/USDT。
func unifiedSymbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if strings.Contains(symbol, "/") {
		return symbol
	}
	if base, ok := strings.CutSuffix(symbol, quoteAsset); ok && base != "" {
		return base + "/" + quoteAsset
	}
	return symbol
}
