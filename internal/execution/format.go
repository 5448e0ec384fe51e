package execution

import "github.com/shopspring/decimal"

const (
	priceInputPlaces = 6
	qtyInputPlaces   = 8
)

// FormatPrice 将价格格式化为输入框文本，最多 6 位小数并去掉末尾的 0。
func FormatPrice(price float64) string {
	return decimal.NewFromFloat(price).Round(priceInputPlaces).String()
}

// FormatQty 将数量格式化为输入框文本，最多 8 位小数并去掉末尾的 0。
func FormatQty(qty float64) string {
	return decimal.NewFromFloat(qty).Round(qtyInputPlaces).String()
}
