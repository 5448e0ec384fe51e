package ladder

import "follow-mm/internal/market"

// PyramidWeights 返回 1..n 归一化后的权重，越靠外权重越大。
func PyramidWeights(n int) []float64 {
	if n <= 0 {
		return nil
	}
	total := float64(n*(n+1)) / 2
	w := make([]float64, n)
	for i := range w {
		w[i] = float64(i+1) / total
	}
	return w
}

// InversePyramidWeights 返回 n..1 归一化后的权重，越靠内权重越大。
func InversePyramidWeights(n int) []float64 {
	w := PyramidWeights(n)
	for i, j := 0, len(w)-1; i < j; i, j = i+1, j-1 {
		w[i], w[j] = w[j], w[i]
	}
	return w
}

// SizeBids 将报价币预算按金字塔权重分配到各档，数量 = 分配预算 / 档位价格。
func SizeBids(prices []float64, budget float64) []market.Rung {
	weights := PyramidWeights(len(prices))
	rungs := make([]market.Rung, 0, len(prices))
	for i, price := range prices {
		qty := 0.0
		if price > 0 && budget > 0 {
			qty = NormalizeQty(budget * weights[i] / price)
		}
		rungs = append(rungs, market.Rung{Price: price, Qty: qty})
	}
	return rungs
}

// SizeAsks 将可卖数量按倒金字塔权重分配到各档。
func SizeAsks(prices []float64, inventory float64) []market.Rung {
	weights := InversePyramidWeights(len(prices))
	rungs := make([]market.Rung, 0, len(prices))
	for i, price := range prices {
		qty := 0.0
		if inventory > 0 {
			qty = NormalizeQty(inventory * weights[i])
		}
		rungs = append(rungs, market.Rung{Price: price, Qty: qty})
	}
	return rungs
}
