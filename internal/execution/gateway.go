package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"follow-mm/internal/book"
	"follow-mm/internal/browser"
	"follow-mm/internal/market"
)

// ErrUnknownSide 表示调用方传入了非法方向。
var ErrUnknownSide = errors.New("execution: 未知方向")

const (
	defaultInputTimeout = 10 * time.Second
	defaultPollInterval = 250 * time.Millisecond
)

type orderForm struct {
	price  string
	qty    string
	submit string
}

var forms = map[market.Side]orderForm{
	market.SideBid: {price: "#bid_price", qty: "#bid_coin", submit: "#btnBuying"},
	market.SideAsk: {price: "#ask_price", qty: "#ask_coin", submit: "#btnSelling"},
}

// Options 控制下单与撤单的等待参数。
type Options struct {
	InputTimeout time.Duration
	PollInterval time.Duration
}

// Gateway 通过交易页面的表单下单与撤单。
type Gateway struct {
	driver       browser.Driver
	inputTimeout time.Duration
	pollInterval time.Duration
	now          func() time.Time
	sleep        func(context.Context, time.Duration)
	logger       *zap.Logger
}

// NewGateway 创建下单网关。
func NewGateway(driver browser.Driver, opts Options, logger *zap.Logger) *Gateway {
	if opts.InputTimeout <= 0 {
		opts.InputTimeout = defaultInputTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		driver:       driver,
		inputTimeout: opts.InputTimeout,
		pollInterval: opts.PollInterval,
		now:          time.Now,
		sleep:        sleepContext,
		logger:       logger,
	}
}

// Place 填写价格与数量并点击下单按钮。
// 返回 false, nil 表示本次未提交（参数非法或界面暂不可用）；仅在会话丢失时返回错误。
func (g *Gateway) Place(ctx context.Context, side market.Side, price, qty float64) (bool, error) {
	if price <= 0 || qty <= 0 {
		return false, nil
	}
	form, ok := forms[side]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownSide, side)
	}

	priceText := FormatPrice(price)
	qtyText := FormatQty(qty)
	if qtyText == "0" || priceText == "0" {
		return false, nil
	}

	if err := g.setInput(ctx, form.price, priceText); err != nil {
		return g.failed("填写价格失败", side, err)
	}
	if err := g.setInput(ctx, form.qty, qtyText); err != nil {
		return g.failed("填写数量失败", side, err)
	}

	btn, err := g.driver.WaitUntilPresent(ctx, form.submit, g.inputTimeout)
	if err != nil {
		return g.failed("查找下单按钮失败", side, err)
	}
	if err := btn.Click(ctx); err != nil {
		return g.failed("点击下单按钮失败", side, err)
	}

	return true, nil
}

// Cancel 点击挂单行的撤单按钮，并在 timeout 内等待该订单的撤单按钮从页面消失或隐藏。
// 超时返回 false, nil，由下一轮对账处理。
func (g *Gateway) Cancel(ctx context.Context, row market.OrderRow, timeout time.Duration) (bool, error) {
	if row.OrderID == "" {
		return false, nil
	}

	if tr, ok := row.Handle.(browser.Element); ok {
		if err := g.clickCancel(ctx, tr); err != nil {
			if browser.IsSessionClosed(err) {
				return false, err
			}
			// 行可能已经消失，继续确认
			g.logger.Debug("点击撤单按钮失败", zap.String("order_id", row.OrderID), zap.Error(err))
		}
	}

	selector := book.CancelButtonFor(row.OrderID)
	deadline := g.now().Add(timeout)
	for {
		gone, err := g.cancelConfirmed(ctx, selector)
		switch {
		case gone:
			return true, nil
		case browser.IsSessionClosed(err):
			return false, err
		case err != nil:
			g.logger.Debug("确认撤单状态失败", zap.String("order_id", row.OrderID), zap.Error(err))
		}

		if !g.now().Before(deadline) {
			g.logger.Warn("撤单确认超时",
				zap.String("order_id", row.OrderID),
				zap.Float64("price", row.Price),
				zap.Duration("timeout", timeout),
			)
			return false, nil
		}
		if ctx.Err() != nil {
			return false, nil
		}
		g.sleep(ctx, g.pollInterval)
	}
}

// cancelConfirmed 撤单按钮已从页面移除或已隐藏时视为撤单完成。
func (g *Gateway) cancelConfirmed(ctx context.Context, selector string) (bool, error) {
	btn, err := g.driver.Find(ctx, selector)
	if errors.Is(err, browser.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	visible, err := btn.Visible(ctx)
	if errors.Is(err, browser.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return !visible, nil
}

func (g *Gateway) clickCancel(ctx context.Context, tr browser.Element) error {
	btn, err := tr.Find(ctx, book.CancelButton)
	if err != nil {
		return err
	}
	return btn.Click(ctx)
}

func (g *Gateway) setInput(ctx context.Context, selector, value string) error {
	el, err := g.driver.WaitUntilPresent(ctx, selector, g.inputTimeout)
	if err != nil {
		return err
	}
	if err := el.Click(ctx); err != nil {
		return err
	}
	if err := el.Clear(ctx); err != nil {
		return err
	}
	return el.SendKeys(ctx, value)
}

func (g *Gateway) failed(msg string, side market.Side, err error) (bool, error) {
	if browser.IsSessionClosed(err) {
		return false, fmt.Errorf("execution: %s: %w", msg, err)
	}
	g.logger.Warn(msg, zap.String("side", string(side)), zap.Error(err))
	return false, nil
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
