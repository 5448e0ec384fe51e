package browser

import (
	"context"
	"time"
)

// Element 是页面元素的抽象。
// 句柄可能随页面刷新失效，失效后的调用返回 ErrTransientUI。
type Element interface {
	Text(ctx context.Context) (string, error)
	Click(ctx context.Context) error
	SendKeys(ctx context.Context, text string) error
	// Clear 全选后删除输入框内容。
	Clear(ctx context.Context) error
	// Attribute 返回属性值，属性不存在时 ok 为 false。
	Attribute(ctx context.Context, name string) (value string, ok bool, err error)
	// Visible 判断元素是否在页面上可见。
	Visible(ctx context.Context) (bool, error)
	// Find 返回第一个匹配的子元素，不等待，缺失时返回 ErrNotFound。
	Find(ctx context.Context, selector string) (Element, error)
	FindAll(ctx context.Context, selector string) ([]Element, error)
}

// Driver 是交易页面的抽象，定位器均为 CSS 选择器。
type Driver interface {
	Navigate(ctx context.Context, url string) error
	// WaitUntilPresent 等待元素出现，超时返回 ErrTransientUI。
	WaitUntilPresent(ctx context.Context, selector string, timeout time.Duration) (Element, error)
	// Find 返回第一个匹配元素，不等待，缺失时返回 ErrNotFound。
	Find(ctx context.Context, selector string) (Element, error)
	FindAll(ctx context.Context, selector string) ([]Element, error)
	// Alive 判断会话是否仍然可用。
	Alive(ctx context.Context) bool
}

// TextOf 读取元素文本的便捷方法。
func TextOf(ctx context.Context, d Driver, selector string) (string, error) {
	el, err := d.Find(ctx, selector)
	if err != nil {
		return "", err
	}
	return el.Text(ctx)
}
