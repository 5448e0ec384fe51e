package ladder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"follow-mm/internal/browser"
	"follow-mm/internal/exchange"
	"follow-mm/internal/market"
)

type fakeClock struct {
	now        time.Time
	sleeps     []time.Duration
	afterSleep func(d time.Duration)
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) {
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	if c.afterSleep != nil {
		c.afterSleep(d)
	}
}

type fixedRandom float64

func (r fixedRandom) Uniform(lo, hi float64) float64 { return float64(r) }

type scriptedPrices struct {
	errs  []error
	price float64
	calls int
	seen  []string
}

func (p *scriptedPrices) Price(_ context.Context, symbol string) (float64, error) {
	p.calls++
	p.seen = append(p.seen, symbol)
	if p.calls <= len(p.errs) {
		return 0, p.errs[p.calls-1]
	}
	return p.price, nil
}

// fakeBook 同时模拟挂单列表、下单/撤单与余额。
type fakeBook struct {
	rows    []market.OrderRow
	nextID  int
	quote   float64
	base    float64
	readErr error
	balErr  error

	cancelFails bool
	placeFails  bool

	reads     int
	placed    []market.Rung
	cancelled []string
}

func (b *fakeBook) seed(side market.Side, prices ...float64) {
	for _, p := range prices {
		b.nextID++
		b.rows = append(b.rows, market.OrderRow{Side: side, Price: p, OrderID: fmt.Sprintf("o%d", b.nextID)})
	}
}

func (b *fakeBook) OpenOrders(_ context.Context, side market.Side) ([]market.OrderRow, error) {
	b.reads++
	if b.readErr != nil {
		return nil, b.readErr
	}
	var out []market.OrderRow
	for _, r := range b.rows {
		if r.Side == side {
			out = append(out, r)
		}
	}
	return out, nil
}

func (b *fakeBook) Place(_ context.Context, side market.Side, price, qty float64) (bool, error) {
	b.placed = append(b.placed, market.Rung{Price: price, Qty: qty})
	if b.placeFails {
		return false, nil
	}
	b.seed(side, price)
	return true, nil
}

func (b *fakeBook) Cancel(_ context.Context, row market.OrderRow, _ time.Duration) (bool, error) {
	b.cancelled = append(b.cancelled, row.OrderID)
	if b.cancelFails {
		return false, nil
	}
	for i, r := range b.rows {
		if r.OrderID == row.OrderID {
			b.rows = append(b.rows[:i], b.rows[i+1:]...)
			break
		}
	}
	return true, nil
}

func (b *fakeBook) FreeQuote(context.Context) (float64, error) { return b.quote, b.balErr }
func (b *fakeBook) FreeBase(context.Context) (float64, error)  { return b.base, b.balErr }

func (b *fakeBook) priceOf(id string) float64 {
	for _, r := range b.rows {
		if r.OrderID == id {
			return r.Price
		}
	}
	return math.NaN()
}

type countingRecorder struct {
	NopRecorder
	cycles     []CycleReport
	placements int
	cancels    int
	errs       []string
}

func (r *countingRecorder) RecordCycle(_ context.Context, report CycleReport) {
	r.cycles = append(r.cycles, report)
}
func (r *countingRecorder) RecordPlacement(context.Context, Placement)  { r.placements++ }
func (r *countingRecorder) RecordCancel(context.Context, Cancellation) { r.cancels++ }
func (r *countingRecorder) RecordError(_ context.Context, op string, _ error) {
	r.errs = append(r.errs, op)
}

func testConfig() Config {
	return Config{
		Levels:               3,
		RebaseInterval:       10 * time.Second,
		TopupInterval:        3 * time.Second,
		StepPercent:          0.2,
		MaxCancelOpsPerCycle: 5,
		CancelTimeout:        2 * time.Second,
		BuyBudgetRatio:       0.5,
		SellQtyRatio:         1,
		DiscountMinPercent:   0.5,
		DiscountMaxPercent:   1.5,
		Tick:                 500 * time.Millisecond,
		PlacementPause:       150 * time.Millisecond,
		PriceRetryDelay:      time.Second,
	}
}

type harness struct {
	engine   *Engine
	book     *fakeBook
	prices   *scriptedPrices
	clock    *fakeClock
	recorder *countingRecorder
}

func newHarness(t *testing.T, cfg Config, side market.Side, logger *zap.Logger) *harness {
	t.Helper()
	h := &harness{
		book:     &fakeBook{quote: 1000, base: 10},
		prices:   &scriptedPrices{price: 100},
		clock:    newFakeClock(),
		recorder: &countingRecorder{},
	}
	engine, err := NewEngine(cfg, side, "btc", Deps{
		Prices:   h.prices,
		Orders:   h.book,
		Gateway:  h.book,
		Balances: h.book,
		Random:   fixedRandom(1),
		Clock:    h.clock,
		Recorder: h.recorder,
	}, logger)
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}
	h.engine = engine
	return h
}

func placedPrices(rungs []market.Rung) []float64 {
	out := make([]float64, 0, len(rungs))
	for _, r := range rungs {
		out = append(out, r.Price)
	}
	return out
}

func TestRebaseBuildsBidLadderFromEmptyBook(t *testing.T) {
	h := newHarness(t, testConfig(), market.SideBid, nil)

	if err := h.engine.Rebase(context.Background()); err != nil {
		t.Fatalf("Rebase returned error: %v", err)
	}

	assertPrices(t, placedPrices(h.book.placed), []float64{100, 99, 98.802})
	if got := h.prices.seen[0]; got != "BTCUSDT" {
		t.Fatalf("expected reference symbol BTCUSDT, got %s", got)
	}
	if anchor, ok := h.engine.Anchor(); !ok || anchor != 100 {
		t.Fatalf("expected anchor 100, got %v (%v)", anchor, ok)
	}
	if d := h.engine.Discount(); math.Abs(d-0.01) > 1e-12 {
		t.Fatalf("expected discount 0.01, got %v", d)
	}

	spent := 0.0
	for _, r := range h.book.placed {
		spent += r.Price * r.Qty
	}
	if spent > 1000*0.5+1e-6 {
		t.Fatalf("bid ladder spent %v, above budget", spent)
	}
	if len(h.recorder.cycles) != 1 || h.recorder.cycles[0].Placed != 3 {
		t.Fatalf("expected one rebase cycle with 3 placements, got %+v", h.recorder.cycles)
	}
}

func TestRebaseAskLadderAscending(t *testing.T) {
	cfg := testConfig()
	cfg.Levels = 15
	h := newHarness(t, cfg, market.SideAsk, nil)

	if err := h.engine.Rebase(context.Background()); err != nil {
		t.Fatalf("Rebase returned error: %v", err)
	}

	got := placedPrices(h.book.placed)
	if len(got) != 15 {
		t.Fatalf("expected 15 placements, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Fatalf("ask ladder not ascending at %d: %v", i, got)
		}
	}
	for i := 1; i < len(h.book.placed); i++ {
		if h.book.placed[i].Qty > h.book.placed[i-1].Qty {
			t.Fatalf("ask quantities should shrink outward: %+v", h.book.placed)
		}
	}
}

func TestTopupExtendsAskFromOutermost(t *testing.T) {
	cfg := testConfig()
	cfg.Levels = 4
	h := newHarness(t, cfg, market.SideAsk, nil)
	h.book.seed(market.SideAsk, 101, 103, 105, 107)

	if err := h.engine.Rebase(context.Background()); err != nil {
		t.Fatalf("Rebase returned error: %v", err)
	}
	if len(h.book.placed) != 0 || len(h.book.cancelled) != 0 {
		t.Fatalf("full book should need no work, placed=%v cancelled=%v", h.book.placed, h.book.cancelled)
	}

	// 外侧两档被吃掉后只剩 101 和 103
	h.book.rows = h.book.rows[:2]
	if err := h.engine.Topup(context.Background()); err != nil {
		t.Fatalf("Topup returned error: %v", err)
	}

	assertPrices(t, placedPrices(h.book.placed), []float64{103.206, 103.412})
	if h.book.placed[0].Qty <= h.book.placed[1].Qty {
		t.Fatalf("inner extension rung should carry more inventory: %+v", h.book.placed)
	}
	if h.prices.calls != 1 {
		t.Fatalf("Topup must not resample the reference price, calls=%d", h.prices.calls)
	}
}

func TestTopupBidExtendsDownward(t *testing.T) {
	h := newHarness(t, testConfig(), market.SideBid, nil)
	if err := h.engine.Rebase(context.Background()); err != nil {
		t.Fatalf("Rebase returned error: %v", err)
	}

	// 最内侧一档成交
	h.book.rows = h.book.rows[1:]
	h.book.placed = nil
	if err := h.engine.Topup(context.Background()); err != nil {
		t.Fatalf("Topup returned error: %v", err)
	}
	assertPrices(t, placedPrices(h.book.placed), []float64{98.604})
}

func TestTopupAtFullDepthIsNoop(t *testing.T) {
	h := newHarness(t, testConfig(), market.SideBid, nil)
	if err := h.engine.Rebase(context.Background()); err != nil {
		t.Fatalf("Rebase returned error: %v", err)
	}
	h.book.placed, h.book.cancelled = nil, nil
	cycles := len(h.recorder.cycles)

	if err := h.engine.Topup(context.Background()); err != nil {
		t.Fatalf("Topup returned error: %v", err)
	}
	if len(h.book.placed) != 0 || len(h.book.cancelled) != 0 {
		t.Fatalf("expected no calls, placed=%v cancelled=%v", h.book.placed, h.book.cancelled)
	}
	if len(h.recorder.cycles) != cycles {
		t.Fatal("idle top-up should not be recorded as a cycle")
	}
}

func TestTopupWithoutAnchorDefersToRebase(t *testing.T) {
	h := newHarness(t, testConfig(), market.SideBid, nil)

	if err := h.engine.Topup(context.Background()); err != nil {
		t.Fatalf("Topup returned error: %v", err)
	}
	if h.prices.calls != 1 {
		t.Fatalf("expected Topup to run a rebase, price calls=%d", h.prices.calls)
	}
	if len(h.book.placed) != 3 {
		t.Fatalf("expected full ladder, got %v", h.book.placed)
	}
}

func TestRebasePruneRespectsCapBid(t *testing.T) {
	cfg := testConfig()
	cfg.MaxCancelOpsPerCycle = 2
	h := newHarness(t, cfg, market.SideBid, nil)
	h.book.seed(market.SideBid, 95, 100, 91, 99, 98, 97, 96, 94, 93, 92)
	byID := map[string]float64{}
	for _, r := range h.book.rows {
		byID[r.OrderID] = r.Price
	}

	if err := h.engine.Rebase(context.Background()); err != nil {
		t.Fatalf("Rebase returned error: %v", err)
	}

	if len(h.book.cancelled) != 2 {
		t.Fatalf("expected 2 cancel attempts, got %d", len(h.book.cancelled))
	}
	if byID[h.book.cancelled[0]] != 91 || byID[h.book.cancelled[1]] != 92 {
		t.Fatalf("expected lowest bids cancelled first, got %v / %v",
			byID[h.book.cancelled[0]], byID[h.book.cancelled[1]])
	}
	if len(h.book.placed) != 0 {
		t.Fatalf("book still over depth, expected no placements, got %v", h.book.placed)
	}
	if report := h.recorder.cycles[0]; report.CancelAttempts != 2 || report.OpenBefore != 10 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestRebasePruneCancelsHighestAsksFirst(t *testing.T) {
	cfg := testConfig()
	cfg.Levels = 2
	h := newHarness(t, cfg, market.SideAsk, nil)
	h.book.seed(market.SideAsk, 103, 101, 104, 102)
	h.book.seed(market.SideBid, 90)
	byID := map[string]float64{}
	for _, r := range h.book.rows {
		byID[r.OrderID] = r.Price
	}

	if err := h.engine.Rebase(context.Background()); err != nil {
		t.Fatalf("Rebase returned error: %v", err)
	}

	var got []float64
	for _, id := range h.book.cancelled {
		got = append(got, byID[id])
	}
	assertPrices(t, got, []float64{104, 103})

	var remaining []float64
	for _, r := range h.book.rows {
		if r.Side == market.SideAsk {
			remaining = append(remaining, r.Price)
		}
	}
	sort.Float64s(remaining)
	assertPrices(t, remaining, []float64{101, 102})
}

func TestCancelTimeoutIsNotRetriedInSameCycle(t *testing.T) {
	cfg := testConfig()
	cfg.Levels = 2
	h := newHarness(t, cfg, market.SideBid, nil)
	h.book.cancelFails = true
	h.book.seed(market.SideBid, 100, 99, 98, 97)

	if err := h.engine.Rebase(context.Background()); err != nil {
		t.Fatalf("Rebase returned error: %v", err)
	}

	if len(h.book.cancelled) != 2 {
		t.Fatalf("expected exactly one attempt per excess row, got %v", h.book.cancelled)
	}
	if h.book.cancelled[0] == h.book.cancelled[1] {
		t.Fatalf("same order cancelled twice: %v", h.book.cancelled)
	}
	if len(h.book.rows) != 4 {
		t.Fatalf("timed-out rows should remain, got %d", len(h.book.rows))
	}
	if len(h.book.placed) != 0 {
		t.Fatalf("expected no placements while over depth, got %v", h.book.placed)
	}

	// 下一轮重置重新对账，再次尝试撤单
	h.book.cancelFails = false
	h.clock.now = h.clock.now.Add(cfg.RebaseInterval)
	if err := h.engine.Rebase(context.Background()); err != nil {
		t.Fatalf("second Rebase returned error: %v", err)
	}
	if len(h.book.rows) != 2 {
		t.Fatalf("expected convergence on next pass, got %d rows", len(h.book.rows))
	}
	if p := h.book.priceOf(h.book.rows[0].OrderID); p != 100 && p != 99 {
		t.Fatalf("unexpected survivor %v", p)
	}
}

func TestRebaseSkipsPlacementWhenBalanceUnavailable(t *testing.T) {
	h := newHarness(t, testConfig(), market.SideBid, nil)
	h.book.balErr = browser.ErrNotFound

	if err := h.engine.Rebase(context.Background()); err != nil {
		t.Fatalf("Rebase returned error: %v", err)
	}
	if len(h.book.placed) != 0 {
		t.Fatalf("expected no placements, got %v", h.book.placed)
	}
	if len(h.recorder.errs) != 1 || h.recorder.errs[0] != "balance" {
		t.Fatalf("expected balance error recorded, got %v", h.recorder.errs)
	}
}

func TestRebaseSkipsNonPositiveQuantities(t *testing.T) {
	h := newHarness(t, testConfig(), market.SideAsk, nil)
	h.book.base = 0

	if err := h.engine.Rebase(context.Background()); err != nil {
		t.Fatalf("Rebase returned error: %v", err)
	}
	if len(h.book.placed) != 0 {
		t.Fatalf("expected zero-qty rungs to be skipped, got %v", h.book.placed)
	}
}

func TestRebaseSurvivesTransientOrderRead(t *testing.T) {
	h := newHarness(t, testConfig(), market.SideBid, nil)
	h.book.readErr = fmt.Errorf("wrap: %w", browser.ErrTransientUI)

	if err := h.engine.Rebase(context.Background()); err != nil {
		t.Fatalf("Rebase returned error: %v", err)
	}
	if _, ok := h.engine.Anchor(); !ok {
		t.Fatal("anchor should be set even if the order list was unavailable")
	}
	if len(h.book.placed) != 0 {
		t.Fatalf("expected no placements, got %v", h.book.placed)
	}
}

func TestRebaseFailedPlacementLeftForNextCycle(t *testing.T) {
	h := newHarness(t, testConfig(), market.SideBid, nil)
	h.book.placeFails = true

	if err := h.engine.Rebase(context.Background()); err != nil {
		t.Fatalf("Rebase returned error: %v", err)
	}
	if len(h.book.placed) != 3 {
		t.Fatalf("each rung should be attempted once, got %d", len(h.book.placed))
	}
	if report := h.recorder.cycles[0]; report.PlaceAttempts != 3 || report.Placed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestRunForeverRecoversFromPriceFailures(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := newHarness(t, testConfig(), market.SideBid, zap.New(core))
	h.prices.errs = []error{
		fmt.Errorf("binance: %w", exchange.ErrNetwork),
		fmt.Errorf("binance: %w", exchange.ErrNetwork),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ticks := 0
	h.clock.afterSleep = func(d time.Duration) {
		if d == h.engine.cfg.Tick {
			ticks++
			if ticks == 8 {
				cancel()
			}
		}
	}

	if err := h.engine.RunForever(ctx); err != nil {
		t.Fatalf("RunForever returned error: %v", err)
	}

	if h.prices.calls != 3 {
		t.Fatalf("expected 3 price calls, got %d", h.prices.calls)
	}
	if n := logs.FilterMessage("获取参考价失败，稍后重试").Len(); n != 2 {
		t.Fatalf("expected 2 failure logs, got %d", n)
	}
	if anchor, ok := h.engine.Anchor(); !ok || anchor != 100 {
		t.Fatalf("expected anchor 100 after recovery, got %v (%v)", anchor, ok)
	}
	assertPrices(t, placedPrices(h.book.placed), []float64{100, 99, 98.802})
	if n := logs.FilterMessage("提交挂单").Len(); n != 3 {
		t.Fatalf("expected 3 placement logs, got %d", n)
	}
}

func TestRunForeverTimers(t *testing.T) {
	h := newHarness(t, testConfig(), market.SideBid, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ticks := 0
	h.clock.afterSleep = func(d time.Duration) {
		if d == h.engine.cfg.Tick {
			ticks++
			if ticks == 50 {
				cancel()
			}
		}
	}

	if err := h.engine.RunForever(ctx); err != nil {
		t.Fatalf("RunForever returned error: %v", err)
	}
	// 初始重置 + 约 25 秒内两次定时重置
	if h.prices.calls != 3 {
		t.Fatalf("expected 3 rebases, got %d", h.prices.calls)
	}
	if len(h.book.placed) != 3 {
		t.Fatalf("full ladder should not be re-placed, got %d placements", len(h.book.placed))
	}
}

func TestRunForeverSessionLossIsFatal(t *testing.T) {
	h := newHarness(t, testConfig(), market.SideBid, nil)
	h.book.readErr = fmt.Errorf("book: %w", browser.ErrSessionClosed)

	err := h.engine.RunForever(context.Background())
	if !errors.Is(err, browser.ErrSessionClosed) {
		t.Fatalf("expected session closed error, got %v", err)
	}
}

func TestRunForeverReturnsWhenAlreadyCancelled(t *testing.T) {
	h := newHarness(t, testConfig(), market.SideBid, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.engine.RunForever(ctx); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if h.prices.calls != 0 {
		t.Fatalf("expected no work, got %d price calls", h.prices.calls)
	}
}

func TestNewEngineValidates(t *testing.T) {
	book := &fakeBook{}
	deps := Deps{Prices: &scriptedPrices{}, Orders: book, Gateway: book, Balances: book}

	cfg := testConfig()
	cfg.Levels = 0
	if _, err := NewEngine(cfg, market.SideBid, "BTC", deps, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := NewEngine(testConfig(), market.Side("both"), "BTC", deps, nil); err == nil {
		t.Fatal("expected error for unknown side")
	}
	if _, err := NewEngine(testConfig(), market.SideBid, "USDT", deps, nil); err == nil {
		t.Fatal("expected error for empty ticker")
	}
	if _, err := NewEngine(testConfig(), market.SideBid, "BTC", Deps{}, nil); err == nil {
		t.Fatal("expected error for missing deps")
	}
}
