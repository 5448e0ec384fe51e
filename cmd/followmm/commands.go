package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"follow-mm/internal/app"
	"follow-mm/internal/config"
	"follow-mm/internal/log"
	"follow-mm/internal/market"
)

const rootLong = `followmm drives a VictoriaEX trading page in Chrome: it can show the live order book,
print a Binance-referenced target price, or keep a bid/ask ladder following the
Binance spot price.

Without a subcommand it opens the interactive menu.`

type runFunc func(ctx context.Context, a *app.App) error

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "followmm",
		Short:         "Browser-driven follow market maker for VictoriaEX",
		Long:          rootLong,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(ccmd *cobra.Command, args []string) error {
			// 菜单模式下 Ctrl+C 由各模式自行捕获，只结束当前模式
			return execute(envFile, false, func(ctx context.Context, a *app.App) error {
				return a.Run(ctx)
			})
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env", "", "path of an env file loaded before the environment (default: ./.env if present)")

	root.AddCommand(&cobra.Command{
		Use:   "book",
		Short: "Show the VictoriaEX order book",
		RunE: func(ccmd *cobra.Command, args []string) error {
			return execute(envFile, true, gated(func(ctx context.Context, a *app.App) error {
				return a.RunOrderBook(ctx)
			}))
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "price",
		Short: "Print the Binance-referenced target price for the current pair",
		RunE: func(ccmd *cobra.Command, args []string) error {
			return execute(envFile, true, gated(func(ctx context.Context, a *app.App) error {
				return a.RunReferencePrice(ctx)
			}))
		},
	})

	var ticker string
	mmCmd := &cobra.Command{
		Use:       "mm bid|ask",
		Short:     "Run the follow market maker on one side",
		Example:   "  followmm mm bid --ticker BTC",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(market.SideBid), string(market.SideAsk)},
		RunE: func(ccmd *cobra.Command, args []string) error {
			side, err := market.ParseSide(args[0])
			if err != nil {
				return err
			}
			return execute(envFile, true, gated(func(ctx context.Context, a *app.App) error {
				return a.RunMarketMaker(ctx, side, ticker)
			}))
		},
	}
	mmCmd.Flags().StringVar(&ticker, "ticker", "", "coin ticker, e.g. BTC (a trailing USDT is stripped)")
	_ = mmCmd.MarkFlagRequired("ticker")
	root.AddCommand(mmCmd)

	return root
}

// gated 在运行模式前校验密码。
func gated(run runFunc) runFunc {
	return func(ctx context.Context, a *app.App) error {
		if err := a.CheckPassword(); err != nil {
			return err
		}
		return run(ctx, a)
	}
}

// execute 加载配置与日志后运行 run。catchInterrupt 为 true 时 Ctrl+C 结束整个命令。
func execute(envFile string, catchInterrupt bool, run runFunc) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	logger, closeLog, err := log.NewLogger(cfg.Logging, "")
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer closeLog()

	signals := []os.Signal{syscall.SIGTERM}
	if catchInterrupt {
		signals = append(signals, os.Interrupt)
	}
	ctx, stop := signal.NotifyContext(context.Background(), signals...)
	defer stop()

	if err := run(ctx, app.New(cfg, logger)); err != nil {
		logger.Error("系统运行异常", zap.Error(err))
		return err
	}
	logger.Info("系统已安全退出")
	return nil
}
