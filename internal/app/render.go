package app

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"follow-mm/internal/book"
)

const bookFrameWidth = 41

// RenderOrderBook 以固定宽度表格输出盘口快照：卖单从高到低，随后是最新价与买单。
func RenderOrderBook(w io.Writer, s book.Snapshot) {
	fmt.Fprintf(w, "┌───────────── %s  %s ─────────────┐\n\n", s.At.Format("15:04:05"), s.Ticker)

	for i, l := range s.Asks {
		fmt.Fprintf(w, " %2d档 │ %s │ %s\n", len(s.Asks)-i, formatBookNumber(l.Price), formatBookNumber(l.Amount))
	}
	fmt.Fprintln(w, "                 🟦 Asks")

	fmt.Fprintf(w, "\n        💎 Last Price │ %s\n", formatBookNumber(s.LastPrice))

	fmt.Fprintln(w, "\n                 🔴 Bids")
	for i, l := range s.Bids {
		fmt.Fprintf(w, " %2d档 │ %s │ %s\n", i+1, formatBookNumber(l.Price), formatBookNumber(l.Amount))
	}

	fmt.Fprintf(w, "\n└%s┘\n\n", strings.Repeat("─", bookFrameWidth))
}

// FormatReferenceLine 生成参考价模式的一行输出，discountPercent 为百分比。
func FormatReferenceLine(at time.Time, provider, symbol string, price, discountPercent float64) string {
	target := price * (1 - discountPercent/100)
	return fmt.Sprintf("[%s] %s %s=%.2f | target(-%.3f%%)=%.2f",
		at.Format("15:04:05"), provider, symbol, price, discountPercent, target)
}

// formatBookNumber 输出 8 位小数、千分位分隔、右对齐 14 列的数字。
func formatBookNumber(v float64) string {
	s := decimal.NewFromFloat(v).StringFixed(8)

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("%14s", sign+b.String()+"."+frac)
}
