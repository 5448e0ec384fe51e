package book

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"follow-mm/internal/browser"
	"follow-mm/internal/market"
)

const (
	OutstandingTable = "tbody#out-standing-list"
	OutstandingRows  = "tbody#out-standing-list > tr"
	CancelButton     = "button.order-cancel[data-orderid]"

	// 列顺序：日期、交易对、类型、价格、数量、未成交数量、撤单按钮
	typeColumn  = 2
	priceColumn = 3

	defaultWaitTimeout = 10 * time.Second
)

// Reconciler 从未成交委托列表中读取某一方向的挂单，每次调用都重新读取页面。
type Reconciler struct {
	driver      browser.Driver
	waitTimeout time.Duration
	logger      *zap.Logger
}

// NewReconciler 创建挂单读取器。
func NewReconciler(driver browser.Driver, waitTimeout time.Duration, logger *zap.Logger) *Reconciler {
	if waitTimeout <= 0 {
		waitTimeout = defaultWaitTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		driver:      driver,
		waitTimeout: waitTimeout,
		logger:      logger,
	}
}

// OpenOrders 返回指定方向的挂单。无法识别方向、价格或订单号的行会被跳过。
func (r *Reconciler) OpenOrders(ctx context.Context, side market.Side) ([]market.OrderRow, error) {
	if _, err := r.driver.WaitUntilPresent(ctx, OutstandingTable, r.waitTimeout); err != nil {
		return nil, fmt.Errorf("book: 等待委托列表失败: %w", err)
	}

	rows, err := r.driver.FindAll(ctx, OutstandingRows)
	if err != nil {
		return nil, fmt.Errorf("book: 读取委托行失败: %w", err)
	}

	out := make([]market.OrderRow, 0, len(rows))
	for idx, tr := range rows {
		row, ok, err := r.parseRow(ctx, tr, side)
		if err != nil {
			if browser.IsSessionClosed(err) {
				return nil, err
			}
			r.logger.Debug("跳过无法解析的委托行", zap.Int("row", idx), zap.Error(err))
			continue
		}
		if ok {
			out = append(out, row)
		}
	}

	return out, nil
}

func (r *Reconciler) parseRow(ctx context.Context, tr browser.Element, want market.Side) (market.OrderRow, bool, error) {
	tds, err := tr.FindAll(ctx, "td")
	if err != nil {
		return market.OrderRow{}, false, err
	}
	if len(tds) <= priceColumn {
		return market.OrderRow{}, false, nil
	}

	typeText, err := tds[typeColumn].Text(ctx)
	if err != nil {
		return market.OrderRow{}, false, err
	}

	side, ok := sideFromType(typeText)
	if !ok {
		side, ok, err = sideFromButton(ctx, tr)
		if err != nil || !ok {
			return market.OrderRow{}, false, err
		}
	}
	if side != want {
		return market.OrderRow{}, false, nil
	}

	priceText, err := tds[priceColumn].Text(ctx)
	if err != nil {
		return market.OrderRow{}, false, err
	}
	price, err := ParseNumber(priceText)
	if err != nil {
		return market.OrderRow{}, false, err
	}

	btn, err := tr.Find(ctx, CancelButton)
	if err != nil {
		return market.OrderRow{}, false, err
	}
	orderID, found, err := btn.Attribute(ctx, "data-orderid")
	if err != nil {
		return market.OrderRow{}, false, err
	}
	if !found || strings.TrimSpace(orderID) == "" {
		return market.OrderRow{}, false, nil
	}

	return market.OrderRow{
		Side:    side,
		Price:   price,
		OrderID: strings.TrimSpace(orderID),
		Handle:  tr,
	}, true, nil
}

func sideFromType(text string) (market.Side, bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "buy":
		return market.SideBid, true
	case "sell":
		return market.SideAsk, true
	default:
		return "", false
	}
}

func sideFromButton(ctx context.Context, tr browser.Element) (market.Side, bool, error) {
	btn, err := tr.Find(ctx, CancelButton)
	if err != nil {
		return "", false, err
	}
	tradeType, _, err := btn.Attribute(ctx, "data-tradetype")
	if err != nil {
		return "", false, err
	}
	switch strings.ToLower(strings.TrimSpace(tradeType)) {
	case "bid":
		return market.SideBid, true, nil
	case "ask":
		return market.SideAsk, true, nil
	default:
		return "", false, nil
	}
}

// CancelButtonFor 返回指定订单撤单按钮的定位器。
func CancelButtonFor(orderID string) string {
	return fmt.Sprintf(`button.order-cancel[data-orderid="%s"]`, orderID)
}
