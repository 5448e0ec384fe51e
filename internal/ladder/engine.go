package ladder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"follow-mm/internal/browser"
	"follow-mm/internal/market"
)

// Deps 汇总引擎依赖的外部协作者。Random、Clock、Recorder 可为空，使用默认实现。
type Deps struct {
	Prices   PriceSource
	Orders   OrderReader
	Gateway  OrderGateway
	Balances BalanceSource
	Random   RandomSource
	Clock    Clock
	Recorder Recorder
}

// Engine 维护单一交易对单一方向的挂单阶梯。
// 每个周期都重新读取页面上的挂单，不缓存任何单笔订单的重试状态。
type Engine struct {
	cfg    Config
	side   market.Side
	ticker string
	symbol string

	prices   PriceSource
	orders   OrderReader
	gateway  OrderGateway
	balances BalanceSource
	random   RandomSource
	clock    Clock
	recorder Recorder
	logger   *zap.Logger

	anchor         float64
	hasAnchor      bool
	discount       float64
	lastRebase     time.Time
	lastTopup      time.Time
	nextPriceRetry time.Time
	inRebase       atomic.Bool
}

// NewEngine 创建阶梯引擎。
func NewEngine(cfg Config, side market.Side, ticker string, deps Deps, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !side.Valid() {
		return nil, fmt.Errorf("ladder: 未知方向 %q", side)
	}
	ticker = market.NormalizeTicker(ticker)
	if ticker == "" {
		return nil, errors.New("ladder: 币种不能为空")
	}
	if deps.Prices == nil || deps.Orders == nil || deps.Gateway == nil || deps.Balances == nil {
		return nil, errors.New("ladder: 缺少必要的依赖")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Random == nil {
		deps.Random = DefaultRandom()
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	if deps.Recorder == nil {
		deps.Recorder = NopRecorder{}
	}

	return &Engine{
		cfg:      cfg,
		side:     side,
		ticker:   ticker,
		symbol:   market.ReferenceSymbol(ticker),
		prices:   deps.Prices,
		orders:   deps.Orders,
		gateway:  deps.Gateway,
		balances: deps.Balances,
		random:   deps.Random,
		clock:    deps.Clock,
		recorder: deps.Recorder,
		logger:   logger.With(zap.String("ticker", ticker), zap.String("side", side.Upper())),
	}, nil
}

// Anchor 返回当前锚定价，首次重置成功前 ok 为 false。
func (e *Engine) Anchor() (price float64, ok bool) {
	return e.anchor, e.hasAnchor
}

// Discount 返回本周期抽取的折扣比例。
func (e *Engine) Discount() float64 {
	return e.discount
}

// RunForever 运行引擎主循环，直到 ctx 取消或会话失效。
// 进行中的重置或补单会完整执行后才响应取消。
func (e *Engine) RunForever(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	work := context.WithoutCancel(ctx)

	e.logger.Info("跟随做市启动",
		zap.Int("levels", e.cfg.Levels),
		zap.Float64("step_percent", e.cfg.StepPercent),
		zap.Duration("rebase_interval", e.cfg.RebaseInterval),
		zap.Duration("topup_interval", e.cfg.TopupInterval),
	)

	if err := e.Rebase(work); err != nil {
		return fmt.Errorf("ladder: 初始重置失败，引擎终止: %w", err)
	}

	for {
		if ctx.Err() != nil {
			e.logger.Info("收到退出信号，引擎停止")
			return nil
		}
		if err := e.step(work); err != nil {
			return fmt.Errorf("ladder: 引擎终止: %w", err)
		}
		e.clock.Sleep(ctx, e.cfg.Tick)
	}
}

func (e *Engine) step(ctx context.Context) error {
	now := e.clock.Now()
	if e.rebaseDue(now) {
		if err := e.Rebase(ctx); err != nil {
			return err
		}
		now = e.clock.Now()
	}
	if e.hasAnchor && now.Sub(e.lastTopup) >= e.cfg.TopupInterval {
		return e.Topup(ctx)
	}
	return nil
}

func (e *Engine) rebaseDue(now time.Time) bool {
	if now.Before(e.nextPriceRetry) {
		return false
	}
	return !e.hasAnchor || now.Sub(e.lastRebase) >= e.cfg.RebaseInterval
}

// Rebase 重新采样参考价与折扣，裁剪多余挂单并补满阶梯。
// 只有会话级错误会返回，其余失败都留给下个周期。
func (e *Engine) Rebase(ctx context.Context) error {
	if !e.inRebase.CompareAndSwap(false, true) {
		return nil
	}
	defer e.inRebase.Store(false)

	start := e.clock.Now()
	price, err := e.prices.Price(ctx, e.symbol)
	if err == nil && price <= 0 {
		err = fmt.Errorf("ladder: 参考价非法: %v", price)
	}
	if err != nil {
		e.nextPriceRetry = start.Add(e.cfg.PriceRetryDelay)
		e.logger.Warn("获取参考价失败，稍后重试",
			zap.String("symbol", e.symbol),
			zap.Duration("retry_in", e.cfg.PriceRetryDelay),
			zap.Error(err),
		)
		e.recorder.RecordError(ctx, "price", err)
		return nil
	}

	e.anchor, e.hasAnchor = price, true
	e.discount = e.random.Uniform(e.cfg.DiscountMinPercent, e.cfg.DiscountMaxPercent) / 100
	e.nextPriceRetry = time.Time{}

	report := CycleReport{
		Kind:     CycleRebase,
		Side:     e.side,
		Ticker:   e.ticker,
		Anchor:   e.anchor,
		Discount: e.discount,
	}
	e.logger.Info("阶梯重置",
		zap.Float64("anchor", e.anchor),
		zap.Float64("discount", e.discount),
	)

	if err := e.prune(ctx, &report); err != nil {
		return err
	}
	if err := e.fill(ctx, &report); err != nil {
		return err
	}

	now := e.clock.Now()
	e.lastRebase, e.lastTopup = now, now
	report.At, report.Duration = now, now.Sub(start)
	e.recorder.RecordCycle(ctx, report)
	return nil
}

// Topup 在不重新采样参考价的情况下，从现存最外侧挂单继续向外补档。
// 尚无锚定价时转为 Rebase。
func (e *Engine) Topup(ctx context.Context) error {
	if e.inRebase.Load() {
		return nil
	}
	if !e.hasAnchor {
		if e.clock.Now().Before(e.nextPriceRetry) {
			return nil
		}
		return e.Rebase(ctx)
	}

	start := e.clock.Now()
	report := CycleReport{
		Kind:     CycleTopup,
		Side:     e.side,
		Ticker:   e.ticker,
		Anchor:   e.anchor,
		Discount: e.discount,
	}
	if err := e.fill(ctx, &report); err != nil {
		return err
	}

	now := e.clock.Now()
	e.lastTopup = now
	report.At, report.Duration = now, now.Sub(start)
	if report.PlaceAttempts > 0 {
		e.recorder.RecordCycle(ctx, report)
	}
	return nil
}

// prune 撤销超出档位数的挂单：bid 撤最低价，ask 撤最高价，由最外侧向内，
// 每个周期最多尝试 MaxCancelOpsPerCycle 次。
func (e *Engine) prune(ctx context.Context, report *CycleReport) error {
	rows, err := e.readOrders(ctx)
	if err != nil || rows == nil {
		return err
	}
	report.OpenBefore = len(rows)
	if len(rows) <= e.cfg.Levels {
		return nil
	}

	sortInnerFirst(e.side, rows)
	excess := rows[e.cfg.Levels:]
	e.logger.Info("挂单超出档位，开始撤单",
		zap.Int("open", len(rows)),
		zap.Int("excess", len(excess)),
		zap.Int("cap", e.cfg.MaxCancelOpsPerCycle),
	)

	for i := len(excess) - 1; i >= 0; i-- {
		if report.CancelAttempts >= e.cfg.MaxCancelOpsPerCycle {
			break
		}
		row := excess[i]
		report.CancelAttempts++
		ok, err := e.gateway.Cancel(ctx, row, e.cfg.CancelTimeout)
		if err != nil {
			return err
		}
		if ok {
			report.Cancelled++
		} else {
			e.logger.Warn("撤单未确认，留待下个周期",
				zap.String("order_id", row.OrderID),
				zap.Float64("price", row.Price),
			)
		}
		e.recorder.RecordCancel(ctx, Cancellation{
			Side:    e.side,
			Ticker:  e.ticker,
			OrderID: row.OrderID,
			Price:   row.Price,
			OK:      ok,
			At:      e.clock.Now(),
		})
		e.clock.Sleep(ctx, e.cfg.ToastWait)
	}
	return nil
}

// fill 重新读取挂单并补足缺少的档位：无挂单时按锚定价生成完整阶梯，
// 否则从现存最外侧价格向外延伸。
func (e *Engine) fill(ctx context.Context, report *CycleReport) error {
	rows, err := e.readOrders(ctx)
	if err != nil || rows == nil {
		return err
	}
	need := e.cfg.Levels - len(rows)
	if need <= 0 {
		return nil
	}

	var prices []float64
	if len(rows) == 0 {
		prices = BuildLadder(e.side, e.anchor, e.discount, e.cfg.StepRatio(), e.cfg.Levels)
	} else {
		existing := make([]float64, 0, len(rows))
		for _, r := range rows {
			existing = append(existing, r.Price)
		}
		prices = ExtendLadder(e.side, existing, e.cfg.StepRatio(), need)
	}
	if len(prices) == 0 {
		return nil
	}

	rungs, err := e.size(ctx, prices)
	if err != nil || rungs == nil {
		return err
	}
	return e.place(ctx, rungs, report)
}

func (e *Engine) size(ctx context.Context, prices []float64) ([]market.Rung, error) {
	var (
		available float64
		err       error
	)
	if e.side == market.SideBid {
		available, err = e.balances.FreeQuote(ctx)
	} else {
		available, err = e.balances.FreeBase(ctx)
	}
	if err != nil {
		if browser.IsSessionClosed(err) {
			return nil, err
		}
		e.logger.Warn("读取可用余额失败，跳过本次挂单", zap.Error(err))
		e.recorder.RecordError(ctx, "balance", err)
		return nil, nil
	}

	if e.side == market.SideBid {
		return SizeBids(prices, available*e.cfg.BuyBudgetRatio), nil
	}
	return SizeAsks(prices, available*e.cfg.SellQtyRatio), nil
}

func (e *Engine) place(ctx context.Context, rungs []market.Rung, report *CycleReport) error {
	for _, r := range rungs {
		if r.Qty <= 0 || r.Price <= 0 {
			e.logger.Debug("数量非正，跳过该档", zap.Float64("price", r.Price), zap.Float64("qty", r.Qty))
			continue
		}

		e.logger.Info("提交挂单",
			zap.String("ticker", e.ticker),
			zap.String("side", e.side.Upper()),
			zap.Float64("price", r.Price),
			zap.Float64("qty", r.Qty),
		)
		report.PlaceAttempts++
		ok, err := e.gateway.Place(ctx, e.side, r.Price, r.Qty)
		if err != nil {
			return err
		}
		if ok {
			report.Placed++
		}
		e.recorder.RecordPlacement(ctx, Placement{
			Side:   e.side,
			Ticker: e.ticker,
			Price:  r.Price,
			Qty:    r.Qty,
			OK:     ok,
			At:     e.clock.Now(),
		})
		e.clock.Sleep(ctx, e.cfg.PlacementPause+e.cfg.ToastWait)
	}
	return nil
}

// readOrders 读取本方向挂单。瞬时失败返回 nil, nil 表示跳过本步。
func (e *Engine) readOrders(ctx context.Context) ([]market.OrderRow, error) {
	rows, err := e.orders.OpenOrders(ctx, e.side)
	if err != nil {
		if browser.IsSessionClosed(err) {
			return nil, err
		}
		e.logger.Warn("读取挂单失败，跳过本步", zap.Error(err))
		e.recorder.RecordError(ctx, "orders", err)
		return nil, nil
	}
	if rows == nil {
		rows = []market.OrderRow{}
	}
	return rows, nil
}

// sortInnerFirst 按距离市价由近到远排序：ask 升序，bid 降序。
func sortInnerFirst(side market.Side, rows []market.OrderRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if side == market.SideBid {
			return rows[i].Price > rows[j].Price
		}
		return rows[i].Price < rows[j].Price
	})
}
