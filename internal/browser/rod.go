package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

const (
	defaultOpTimeout = 10 * time.Second
	navigateTimeout  = 60 * time.Second
	aliveTimeout     = 3 * time.Second
)

// rodDriver 基于 go-rod 的 Driver 实现，所有操作都在单个页面上进行。
type rodDriver struct {
	page      *rod.Page
	opTimeout time.Duration
	logger    *zap.Logger
}

func newRodDriver(page *rod.Page, opTimeout time.Duration, logger *zap.Logger) *rodDriver {
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &rodDriver{page: page, opTimeout: opTimeout, logger: logger}
}

func (d *rodDriver) Navigate(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, navigateTimeout)
	defer cancel()

	p := d.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return d.wrap(ctx, fmt.Errorf("打开页面 %s 失败: %w", url, err))
	}
	if err := p.WaitLoad(); err != nil {
		return d.wrap(ctx, fmt.Errorf("等待页面 %s 加载失败: %w", url, err))
	}
	return nil
}

func (d *rodDriver) WaitUntilPresent(ctx context.Context, selector string, timeout time.Duration) (Element, error) {
	if timeout <= 0 {
		timeout = d.opTimeout
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	el, err := d.page.Context(wctx).Element(selector)
	if err != nil {
		return nil, d.wrap(ctx, fmt.Errorf("等待元素 %s 失败: %w", selector, err))
	}
	return &rodElement{el: el, d: d}, nil
}

func (d *rodDriver) Find(ctx context.Context, selector string) (Element, error) {
	all, err := d.FindAll(ctx, selector)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	return all[0], nil
}

func (d *rodDriver) FindAll(ctx context.Context, selector string) ([]Element, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()

	els, err := d.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, d.wrap(ctx, fmt.Errorf("查询元素 %s 失败: %w", selector, err))
	}
	return wrapElements(els, d), nil
}

func (d *rodDriver) Alive(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), aliveTimeout)
	defer cancel()

	_, err := d.page.Context(ctx).Info()
	return err == nil
}

func (d *rodDriver) wrap(ctx context.Context, err error) error {
	classified, known := classifyError(err)
	if known {
		return classified
	}
	if !d.Alive(ctx) {
		d.logger.Warn("浏览器会话已不可用", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrSessionClosed, err)
	}
	return fmt.Errorf("%w: %w", ErrTransientUI, err)
}

type rodElement struct {
	el *rod.Element
	d  *rodDriver
}

func wrapElements(els rod.Elements, d *rodDriver) []Element {
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el, d: d})
	}
	return out
}

func (e *rodElement) bind(ctx context.Context) (*rod.Element, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, e.d.opTimeout)
	return e.el.Context(ctx), cancel
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	el, cancel := e.bind(ctx)
	defer cancel()

	text, err := el.Text()
	if err != nil {
		return "", e.d.wrap(ctx, fmt.Errorf("读取元素文本失败: %w", err))
	}
	return text, nil
}

func (e *rodElement) Click(ctx context.Context) error {
	el, cancel := e.bind(ctx)
	defer cancel()

	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return e.d.wrap(ctx, fmt.Errorf("点击元素失败: %w", err))
	}
	return nil
}

func (e *rodElement) SendKeys(ctx context.Context, text string) error {
	el, cancel := e.bind(ctx)
	defer cancel()

	if err := el.Input(text); err != nil {
		return e.d.wrap(ctx, fmt.Errorf("输入文本失败: %w", err))
	}
	return nil
}

func (e *rodElement) Clear(ctx context.Context) error {
	el, cancel := e.bind(ctx)
	defer cancel()

	if err := el.SelectAllText(); err != nil {
		return e.d.wrap(ctx, fmt.Errorf("全选输入框失败: %w", err))
	}
	if err := el.Type(input.Backspace); err != nil {
		return e.d.wrap(ctx, fmt.Errorf("清空输入框失败: %w", err))
	}
	return nil
}

func (e *rodElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	el, cancel := e.bind(ctx)
	defer cancel()

	value, err := el.Attribute(name)
	if err != nil {
		return "", false, e.d.wrap(ctx, fmt.Errorf("读取属性 %s 失败: %w", name, err))
	}
	if value == nil {
		return "", false, nil
	}
	return *value, true, nil
}

func (e *rodElement) Visible(ctx context.Context) (bool, error) {
	el, cancel := e.bind(ctx)
	defer cancel()

	visible, err := el.Visible()
	if err != nil {
		return false, e.d.wrap(ctx, fmt.Errorf("读取元素可见性失败: %w", err))
	}
	return visible, nil
}

func (e *rodElement) Find(ctx context.Context, selector string) (Element, error) {
	all, err := e.FindAll(ctx, selector)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	return all[0], nil
}

func (e *rodElement) FindAll(ctx context.Context, selector string) ([]Element, error) {
	el, cancel := e.bind(ctx)
	defer cancel()

	els, err := el.Elements(selector)
	if err != nil {
		return nil, e.d.wrap(ctx, fmt.Errorf("查询子元素 %s 失败: %w", selector, err))
	}
	return wrapElements(els, e.d), nil
}
