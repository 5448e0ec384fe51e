package book

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/btree"
	"go.uber.org/zap"

	"follow-mm/internal/browser"
)

const (
	AskRows       = "#mCSB_2_container > a.bidding-table-rows"
	BidRows       = "#mCSB_3_container > a.bidding-table-rows"
	AnyBookRow    = "a.bidding-table-rows"
	PairTitle     = "b.pair-title"
	PairUnit      = "span.unit"
	LastPriceCell = "div.overturn-cell.col-price span.contrast"

	rowPriceCell  = ".col-price"
	rowAmountCell = ".col-amount"

	// DisplayDepth 为盘口每侧展示的档位数。
	DisplayDepth    = 10
	btreeDegree     = 8
	quoteUnitSuffix = "/USDT"
)

// Level 为盘口中的一档。
type Level struct {
	Price  float64
	Amount float64
}

func levelLess(a, b Level) bool {
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	return a.Amount < b.Amount
}

// Depth 按价格有序保存一侧盘口。
type Depth struct {
	tree *btree.BTreeG[Level]
}

// NewDepth 创建空的一侧盘口。
func NewDepth() *Depth {
	return &Depth{tree: btree.NewG[Level](btreeDegree, levelLess)}
}

// Add 插入一档。
func (d *Depth) Add(l Level) {
	d.tree.ReplaceOrInsert(l)
}

// Len 返回档位数量。
func (d *Depth) Len() int {
	return d.tree.Len()
}

// Lowest 返回价格最低的 n 档，按价格升序。
func (d *Depth) Lowest(n int) []Level {
	out := make([]Level, 0, n)
	d.tree.Ascend(func(l Level) bool {
		out = append(out, l)
		return len(out) < n
	})
	return out
}

// Highest 返回价格最高的 n 档，按价格降序。
func (d *Depth) Highest(n int) []Level {
	out := make([]Level, 0, n)
	d.tree.Descend(func(l Level) bool {
		out = append(out, l)
		return len(out) < n
	})
	return out
}

// Snapshot 是交易页面的盘口快照。
type Snapshot struct {
	CoinName  string
	Ticker    string
	LastPrice float64
	At        time.Time

	// Asks 为最低的卖单档位，按价格从高到低排列（最优卖价在最后）。
	Asks []Level
	// Bids 为最高的买单档位，按价格从高到低排列。
	Bids []Level
}

// Snapshotter 读取交易页面的盘口。
type Snapshotter struct {
	driver browser.Driver
	depth  int
	now    func() time.Time
	logger *zap.Logger
}

// NewSnapshotter 创建盘口读取器。
func NewSnapshotter(driver browser.Driver, logger *zap.Logger) *Snapshotter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Snapshotter{
		driver: driver,
		depth:  DisplayDepth,
		now:    time.Now,
		logger: logger,
	}
}

// Snapshot 读取当前盘口。任一侧不足展示深度时 ok 为 false。
func (s *Snapshotter) Snapshot(ctx context.Context) (Snapshot, bool, error) {
	asks, err := s.readSide(ctx, AskRows)
	if err != nil {
		return Snapshot{}, false, err
	}
	bids, err := s.readSide(ctx, BidRows)
	if err != nil {
		return Snapshot{}, false, err
	}

	coinName, err := browser.TextOf(ctx, s.driver, PairTitle)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("book: 读取币种名称失败: %w", err)
	}
	unit, err := browser.TextOf(ctx, s.driver, PairUnit)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("book: 读取交易对失败: %w", err)
	}

	if asks.Len() < s.depth || bids.Len() < s.depth {
		s.logger.Debug("盘口档位不足",
			zap.Int("asks", asks.Len()),
			zap.Int("bids", bids.Len()),
		)
		return Snapshot{}, false, nil
	}

	lastText, err := browser.TextOf(ctx, s.driver, LastPriceCell)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("book: 读取最新价失败: %w", err)
	}
	last, err := ParseNumber(lastText)
	if err != nil {
		return Snapshot{}, false, err
	}

	lowAsks := asks.Lowest(s.depth)
	reverse(lowAsks)

	return Snapshot{
		CoinName:  strings.TrimSpace(coinName),
		Ticker:    strings.TrimSuffix(strings.TrimSpace(unit), quoteUnitSuffix),
		LastPrice: last,
		Asks:      lowAsks,
		Bids:      bids.Highest(s.depth),
		At:        s.now(),
	}, true, nil
}

func (s *Snapshotter) readSide(ctx context.Context, selector string) (*Depth, error) {
	rows, err := s.driver.FindAll(ctx, selector)
	if err != nil {
		return nil, fmt.Errorf("book: 读取盘口行失败: %w", err)
	}

	depth := NewDepth()
	for _, row := range rows {
		level, ok, err := parseLevel(ctx, row)
		if err != nil {
			if browser.IsSessionClosed(err) {
				return nil, err
			}
			continue
		}
		if ok {
			depth.Add(level)
		}
	}
	return depth, nil
}

func parseLevel(ctx context.Context, row browser.Element) (Level, bool, error) {
	priceEl, err := row.Find(ctx, rowPriceCell)
	if err != nil {
		return Level{}, false, err
	}
	amountEl, err := row.Find(ctx, rowAmountCell)
	if err != nil {
		return Level{}, false, err
	}
	priceText, err := priceEl.Text(ctx)
	if err != nil {
		return Level{}, false, err
	}
	amountText, err := amountEl.Text(ctx)
	if err != nil {
		return Level{}, false, err
	}

	price, err := ParseNumber(priceText)
	if err != nil {
		return Level{}, false, nil
	}
	amount, err := ParseNumber(amountText)
	if err != nil {
		return Level{}, false, nil
	}
	return Level{Price: price, Amount: amount}, true, nil
}

func reverse(levels []Level) {
	for i, j := 0, len(levels)-1; i < j; i, j = i+1, j-1 {
		levels[i], levels[j] = levels[j], levels[i]
	}
}
