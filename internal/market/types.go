package market

import (
	"fmt"
	"strings"
)

// Side 表示挂单方向。
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// ParseSide 将 bid/ask（大小写不敏感）解析为 Side。
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(SideBid):
		return SideBid, nil
	case string(SideAsk):
		return SideAsk, nil
	default:
		return "", fmt.Errorf("market: 未知方向 %q", s)
	}
}

// Valid 判断方向是否合法。
func (s Side) Valid() bool {
	return s == SideBid || s == SideAsk
}

// Upper 返回大写形式，用于日志展示。
func (s Side) Upper() string {
	return strings.ToUpper(string(s))
}

// Handle 是底层界面元素的不透明句柄，仅供撤单使用。
type Handle interface{}

// OrderRow 表示未成交委托列表中的一行，每次对账都重新读取，不跨周期缓存。
type OrderRow struct {
	Side    Side
	Price   float64
	OrderID string
	Handle  Handle
}

// Rung 为阶梯中的一档。
type Rung struct {
	Price float64
	Qty   float64
}

// NormalizeTicker 将用户输入的币种转为大写并去掉结尾的 USDT。
func NormalizeTicker(input string) string {
	t := strings.ToUpper(strings.TrimSpace(input))
	return strings.TrimSuffix(t, "USDT")
}

// ReferenceSymbol 返回参考交易所上的现货交易对，例如 BTC -> BTCUSDT。
func ReferenceSymbol(ticker string) string {
	return NormalizeTicker(ticker) + "USDT"
}

// SymbolFromUnit 将页面上的 "BTC/USDT" 转换为 "BTCUSDT"。
func SymbolFromUnit(unit string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(unit), "/", ""))
}
