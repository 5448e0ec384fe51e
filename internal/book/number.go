package book

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnparsable 表示文本中没有可解析的数字。
var ErrUnparsable = errors.New("book: 无法解析数字")

// ParseNumber 解析页面上的数字文本，例如 "381,629.061"、"90,935\nUSDT"。
// 仅保留数字、负号、逗号与小数点，并去掉千分位逗号。
func ParseNumber(text string) (float64, error) {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == '-' || r == '.' {
			b.WriteRune(r)
		}
	}

	cleaned := b.String()
	switch cleaned {
	case "", "-", ".", "-.":
		return 0, fmt.Errorf("%w: %q", ErrUnparsable, text)
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrUnparsable, text, err)
	}
	return v, nil
}
