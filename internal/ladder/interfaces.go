package ladder

import (
	"context"
	"math/rand/v2"
	"time"

	"follow-mm/internal/market"
)

// PriceSource 提供参考价。
type PriceSource interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

// OrderReader 读取某一方向的当前挂单。
type OrderReader interface {
	OpenOrders(ctx context.Context, side market.Side) ([]market.OrderRow, error)
}

// OrderGateway 负责下单与撤单。
// 返回 false, nil 表示本次未成功但可在下个周期重试；返回错误表示会话级失败。
type OrderGateway interface {
	Place(ctx context.Context, side market.Side, price, qty float64) (bool, error)
	Cancel(ctx context.Context, row market.OrderRow, timeout time.Duration) (bool, error)
}

// BalanceSource 提供可用余额。
type BalanceSource interface {
	FreeQuote(ctx context.Context) (float64, error)
	FreeBase(ctx context.Context) (float64, error)
}

// RandomSource 为每个周期的折扣抽样，测试中可固定返回值。
type RandomSource interface {
	Uniform(lo, hi float64) float64
}

// Clock 抽象时间与等待，测试中可用假时钟驱动主循环。
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration)
}

type uniformRandom struct{}

func (uniformRandom) Uniform(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + rand.Float64()*(hi-lo)
}

// DefaultRandom 返回基于 math/rand/v2 的随机源。
func DefaultRandom() RandomSource {
	return uniformRandom{}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// SystemClock 返回真实时钟。
func SystemClock() Clock {
	return systemClock{}
}
