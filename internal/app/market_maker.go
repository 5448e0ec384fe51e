package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"follow-mm/internal/book"
	"follow-mm/internal/execution"
	"follow-mm/internal/ladder"
	"follow-mm/internal/market"
	"follow-mm/internal/monitor"
	"follow-mm/internal/position"
	"follow-mm/internal/store"
)

// RunMarketMaker 在指定方向上运行跟随做市，直到 ctx 取消或会话失效。
func (a *App) RunMarketMaker(ctx context.Context, side market.Side, ticker string) error {
	ticker = market.NormalizeTicker(ticker)
	if ticker == "" {
		return errors.New("app: 币种不能为空")
	}
	if !side.Valid() {
		return fmt.Errorf("app: 未知方向 %q", side)
	}

	// 参数问题在打开浏览器之前暴露
	lcfg := ladder.FromConfig(a.cfg)
	if err := lcfg.Validate(); err != nil {
		return err
	}

	runID := uuid.NewString()
	logger, closeLog, err := a.newLogger("mm_" + string(side))
	if err != nil {
		return fmt.Errorf("app: 初始化做市日志失败: %w", err)
	}
	defer closeLog()
	logger = logger.With(zap.String("run_id", runID))

	src, err := a.priceSource()
	if err != nil {
		return err
	}

	var journal *store.Store
	if a.cfg.Database.Enabled() {
		journal, err = store.NewSQLite(a.cfg.Database)
		if err != nil {
			return fmt.Errorf("app: 打开活动日志失败: %w", err)
		}
		defer func() {
			if closeErr := journal.Close(); closeErr != nil {
				logger.Warn("关闭活动日志失败", zap.Error(closeErr))
			}
		}()
	}

	monitorSvc, err := monitor.NewService(journal, monitor.NewMetrics(), runID, logger)
	if err != nil {
		return err
	}

	readySelector := position.FreeQuoteSelector
	if side == market.SideAsk {
		readySelector = position.FreeBaseSelector
	}
	sess, err := a.openMode(ctx, "/trade?code=USDT-"+ticker, readySelector)
	if err != nil {
		return err
	}
	defer a.closeSession(sess)

	d := sess.Driver()
	engine, err := ladder.NewEngine(lcfg, side, ticker, ladder.Deps{
		Prices:   src,
		Orders:   book.NewReconciler(d, a.readTimeout(), logger),
		Gateway:  execution.NewGateway(d, execution.Options{}, logger),
		Balances: position.NewBalances(d, a.readTimeout(), logger),
		Random:   a.random,
		Recorder: monitorSvc,
	}, logger)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "\n[Mode %s] Follow MM %s started for %s (run %s)\n", modeNumber(side), side.Upper(), ticker, runID)

	g, gctx := errgroup.WithContext(ctx)
	if addr := a.cfg.Monitor.Addr; addr != "" {
		g.Go(func() error {
			return serveMonitor(gctx, addr, monitorSvc, logger)
		})
	}
	g.Go(func() error {
		return engine.RunForever(gctx)
	})
	return g.Wait()
}

func modeNumber(side market.Side) string {
	if side == market.SideAsk {
		return "4"
	}
	return "3"
}
