package ladder

import (
	"math"

	"github.com/shopspring/decimal"

	"follow-mm/internal/market"
)

const (
	pricePlaces = 3
	qtyPlaces   = 8
)

// NormalizePrice 将价格四舍五入到 3 位小数。
func NormalizePrice(price float64) float64 {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0
	}
	return decimal.NewFromFloat(price).Round(pricePlaces).InexactFloat64()
}

// NormalizeQty 将数量向下截断到 8 位小数，保证不超出分配的预算。
func NormalizeQty(qty float64) float64 {
	if qty <= 0 || math.IsNaN(qty) || math.IsInf(qty, 0) {
		return 0
	}
	return decimal.NewFromFloat(qty).RoundDown(qtyPlaces).InexactFloat64()
}

// BuildLadder 根据锚定价、折扣与步长生成完整阶梯价格，由内向外排列。
//
// 第 1 档即锚定价本身，不带折扣；第 k 档（k>=2）：
//
//	bid: P·(1−d)·(1−s)^(k−2)
//	ask: P·(1+d)·(1+s)^(k−2)
//
// 归一化后不满足严格单调或非正的档位会被丢弃。
func BuildLadder(side market.Side, anchor, discount, step float64, levels int) []float64 {
	if levels < 1 || anchor <= 0 {
		return nil
	}

	p1 := NormalizePrice(anchor)
	prices := make([]float64, 0, levels)
	prices = appendMonotonic(prices, side, p1)

	var base, factor float64
	switch side {
	case market.SideBid:
		base, factor = p1*(1-discount), 1-step
	case market.SideAsk:
		base, factor = p1*(1+discount), 1+step
	default:
		return nil
	}

	for k := 2; k <= levels; k++ {
		prices = appendMonotonic(prices, side, NormalizePrice(base*math.Pow(factor, float64(k-2))))
	}
	return prices
}

// ExtendLadder 从现存最外侧的价格继续向外补 need 档：
// bid 从最低价按 (1−s)^i 下移，ask 从最高价按 (1+s)^i 上移。
func ExtendLadder(side market.Side, existing []float64, step float64, need int) []float64 {
	if need <= 0 || len(existing) == 0 {
		return nil
	}

	var outer, factor float64
	switch side {
	case market.SideBid:
		outer, factor = existing[0], 1-step
		for _, p := range existing[1:] {
			outer = math.Min(outer, p)
		}
	case market.SideAsk:
		outer, factor = existing[0], 1+step
		for _, p := range existing[1:] {
			outer = math.Max(outer, p)
		}
	default:
		return nil
	}

	prices := make([]float64, 0, need)
	last := outer
	for i := 1; i <= need; i++ {
		p := NormalizePrice(outer * math.Pow(factor, float64(i)))
		if p <= 0 || !beyond(side, p, last) {
			continue
		}
		prices = append(prices, p)
		last = p
	}
	return prices
}

func appendMonotonic(prices []float64, side market.Side, p float64) []float64 {
	if p <= 0 {
		return prices
	}
	if n := len(prices); n > 0 && !beyond(side, p, prices[n-1]) {
		return prices
	}
	return append(prices, p)
}

// beyond 判断 p 是否比 ref 更靠外侧。
func beyond(side market.Side, p, ref float64) bool {
	if side == market.SideBid {
		return p < ref
	}
	return p > ref
}
