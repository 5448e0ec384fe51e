package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"follow-mm/internal/book"
	"follow-mm/internal/browser"
	"follow-mm/internal/exchange"
	"follow-mm/internal/market"
)

const (
	bookRetryDelay   = 500 * time.Millisecond
	modeErrorBackoff = time.Second
)

// RunOrderBook 持续打印交易页面的盘口，直到 ctx 取消或会话失效。
func (a *App) RunOrderBook(ctx context.Context) error {
	sess, err := a.openMode(ctx, "/trade", book.AnyBookRow)
	if err != nil {
		return err
	}
	defer a.closeSession(sess)

	fmt.Fprintln(a.out, "\n[Mode 1] Show VictoriaEX Order Book")
	snapshotter := book.NewSnapshotter(sess.Driver(), a.logger)
	refresh := a.cfg.Modes.OrderbookRefresh()

	for ctx.Err() == nil {
		snap, ok, err := snapshotter.Snapshot(ctx)
		switch {
		case err != nil:
			if browser.IsSessionClosed(err) {
				return err
			}
			fmt.Fprintf(a.out, "[WARN] Order book error: %v\n", err)
			a.sleep(ctx, modeErrorBackoff)
		case !ok:
			a.sleep(ctx, bookRetryDelay)
		default:
			a.clearConsole()
			RenderOrderBook(a.out, snap)
			a.sleep(ctx, refresh)
		}
	}
	return nil
}

// RunReferencePrice 读取当前交易对，打印参考价与随机折扣后的目标价。
func (a *App) RunReferencePrice(ctx context.Context) error {
	src, err := a.priceSource()
	if err != nil {
		return err
	}

	sess, err := a.openMode(ctx, "/trade", book.PairTitle)
	if err != nil {
		return err
	}
	defer a.closeSession(sess)

	fmt.Fprintln(a.out, "\n[Mode 2] Print Binance-Referenced Price Mode Started")
	d := sess.Driver()
	interval := a.cfg.Modes.FollowUpdate()

	for ctx.Err() == nil {
		unit, err := browser.TextOf(ctx, d, book.PairUnit)
		if err != nil {
			if browser.IsSessionClosed(err) {
				return err
			}
			fmt.Fprintf(a.out, "[WARN] Pair unit error: %v\n", err)
			a.sleep(ctx, modeErrorBackoff)
			continue
		}
		symbol := market.SymbolFromUnit(unit)

		price, err := a.fetchReference(ctx, src, symbol)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.logger.Warn("获取参考价失败", zap.String("symbol", symbol), zap.Error(err))
			fmt.Fprintf(a.out, "[WARN] %s API error: %v\n", src.Name(), err)
			a.sleep(ctx, modeErrorBackoff)
			continue
		}

		discount := a.random.Uniform(a.cfg.Discount.MinPercent, a.cfg.Discount.MaxPercent)
		a.clearConsole()
		fmt.Fprintln(a.out, FormatReferenceLine(a.now(), src.Name(), symbol, price, discount))
		a.sleep(ctx, interval)
	}
	return nil
}

// fetchReference 获取参考价，网络错误间隔 priceRetry 重试一次，无效交易对不重试。
func (a *App) fetchReference(ctx context.Context, src exchange.PriceSource, symbol string) (float64, error) {
	return backoff.Retry(ctx, func() (float64, error) {
		price, err := src.Price(ctx, symbol)
		if errors.Is(err, exchange.ErrInvalidSymbol) {
			return 0, backoff.Permanent(err)
		}
		return price, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(a.priceRetry)),
		backoff.WithMaxTries(2),
	)
}
