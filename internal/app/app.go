package app

import (
	"bufio"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"

	"follow-mm/internal/browser"
	"follow-mm/internal/config"
	"follow-mm/internal/exchange"
	"follow-mm/internal/ladder"
	"follow-mm/internal/log"
	"follow-mm/internal/market"
)

var (
	// ErrAccessDenied 表示密码校验失败。
	ErrAccessDenied = errors.New("app: 密码错误，拒绝访问")
	// ErrPasswordNotSet 表示未配置 APP_PASSWORD。
	ErrPasswordNotSet = errors.New("app: 未设置 APP_PASSWORD")
)

const (
	defaultReadyTimeout = 20 * time.Second
	defaultReadTimeout  = 10 * time.Second
	clearScreen         = "\033[H\033[2J"
)

// Session 是模式独占的浏览器会话，模式退出时必须关闭。
type Session interface {
	Driver() browser.Driver
	Close() error
}

// App 聚合配置与外部依赖，驱动菜单与各运行模式。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	in     *bufio.Reader
	out    io.Writer

	clear        bool
	priceRetry   time.Duration
	random       ladder.RandomSource
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration)
	readPassword func() (string, error)
	openSession  func(ctx context.Context) (Session, error)
	priceSource  func() (exchange.PriceSource, error)
	newLogger    func(name string) (*zap.Logger, func(), error)
}

// New 创建 App 实例，使用标准输入输出与真实浏览器。
func New(cfg *config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{
		cfg:        cfg,
		logger:     logger,
		in:         bufio.NewReader(os.Stdin),
		out:        os.Stdout,
		clear:      term.IsTerminal(int(os.Stdout.Fd())),
		priceRetry: time.Second,
		random:     ladder.DefaultRandom(),
		now:        time.Now,
		sleep:      sleepContext,
	}
	a.readPassword = a.readTerminalPassword
	a.openSession = func(ctx context.Context) (Session, error) {
		s, err := browser.Open(ctx, cfg.Browser, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	a.priceSource = func() (exchange.PriceSource, error) {
		return exchange.NewPriceSource(cfg.Reference, logger)
	}
	a.newLogger = func(name string) (*zap.Logger, func(), error) {
		return log.NewLogger(cfg.Logging, name)
	}
	return a
}

// Run 校验密码后进入交互菜单，直到用户退出或输入结束。
// 单个模式的失败（包括浏览器会话失效）只会打印并回到菜单。
func (a *App) Run(ctx context.Context) error {
	if err := a.CheckPassword(); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		a.printMenu()
		choice, err := a.prompt("\n👉  Select (1/2/3/4/q): ")
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		switch strings.ToLower(choice) {
		case "1":
			a.report("order book", a.withInterrupt(ctx, a.RunOrderBook))
		case "2":
			a.report("reference price", a.withInterrupt(ctx, a.RunReferencePrice))
		case "3", "4":
			side := market.SideBid
			if choice == "4" {
				side = market.SideAsk
			}
			ticker, err := a.prompt("👉  Coin ticker (e.g. BTC, ETH): ")
			if err != nil {
				return nil
			}
			a.report("follow mm "+string(side), a.withInterrupt(ctx, func(ctx context.Context) error {
				return a.RunMarketMaker(ctx, side, ticker)
			}))
		case "q":
			fmt.Fprintln(a.out, "Bye 👋...")
			return nil
		default:
			fmt.Fprintln(a.out, "Invalid input. Please enter 1, 2, 3, 4 or q.")
		}
	}
}

// CheckPassword 读取用户输入的密码并与 APP_PASSWORD 比较。
func (a *App) CheckPassword() error {
	if a.cfg.App.Password == "" {
		fmt.Fprintln(a.out, "⚠️ APP_PASSWORD is not set.")
		return ErrPasswordNotSet
	}

	fmt.Fprint(a.out, "\n🔒 Enter password to start: ")
	input, err := a.readPassword()
	fmt.Fprintln(a.out)
	if err != nil {
		return fmt.Errorf("app: 读取密码失败: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(input), []byte(a.cfg.App.Password)) != 1 {
		fmt.Fprintln(a.out, "❌ Wrong password. Access denied.")
		return ErrAccessDenied
	}
	fmt.Fprintln(a.out, "✅ Access granted!")
	return nil
}

func (a *App) printMenu() {
	fmt.Fprintln(a.out, "\n\n ⚙️  Select Mode ⚙️")
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, "1) Show Order Book (VictoriaEX)")
	fmt.Fprintln(a.out, "2) Print Binance-Referenced Price")
	fmt.Fprintln(a.out, "3) Run Follow Market Maker (Bid)")
	fmt.Fprintln(a.out, "4) Run Follow Market Maker (Ask)")
	fmt.Fprintln(a.out, "q) Quit")
}

// report 将模式的退出原因展示给用户，不中断菜单循环。
func (a *App) report(mode string, err error) {
	switch {
	case err == nil:
		fmt.Fprintf(a.out, "\n[INFO] %s stopped. Returning to menu...\n", mode)
	case browser.IsSessionClosed(err):
		a.logger.Error("浏览器会话失效，模式终止", zap.String("mode", mode), zap.Error(err))
		fmt.Fprintf(a.out, "\n[ERROR] %s: browser session closed (%v). Returning to menu...\n", mode, err)
	default:
		a.logger.Error("模式异常退出", zap.String("mode", mode), zap.Error(err))
		fmt.Fprintf(a.out, "\n[ERROR] %s crashed: %v\n", mode, err)
	}
}

// withInterrupt 在模式运行期间捕获 Ctrl+C，使其只结束当前模式并回到菜单。
func (a *App) withInterrupt(ctx context.Context, run func(context.Context) error) error {
	modeCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	return run(modeCtx)
}

func (a *App) prompt(label string) (string, error) {
	fmt.Fprint(a.out, label)
	return a.readLine()
}

func (a *App) readLine() (string, error) {
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (a *App) readTerminalPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return a.readLine()
	}
	b, err := term.ReadPassword(fd)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// waitForLogin 打开登录页并等待用户手动登录后按回车。
func (a *App) waitForLogin(ctx context.Context, d browser.Driver) error {
	if err := d.Navigate(ctx, a.url("/account/login")); err != nil {
		return err
	}

	rule := strings.Repeat("=", 45)
	fmt.Fprintln(a.out, "\n"+rule)
	fmt.Fprintln(a.out, "         💎 Connected to VictoriaEX 💎")
	fmt.Fprintln(a.out, "  Press Enter after logging in to continue.")
	fmt.Fprintln(a.out, rule)

	if _, err := a.readLine(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("app: 等待登录确认失败: %w", err)
	}
	return ctx.Err()
}

// openMode 打开浏览器、完成手动登录并进入交易页，等待 readySelector 出现。
func (a *App) openMode(ctx context.Context, path, readySelector string) (Session, error) {
	sess, err := a.openSession(ctx)
	if err != nil {
		return nil, err
	}

	d := sess.Driver()
	if err := a.waitForLogin(ctx, d); err != nil {
		_ = sess.Close()
		return nil, err
	}
	if err := d.Navigate(ctx, a.url(path)); err != nil {
		_ = sess.Close()
		return nil, err
	}
	if _, err := d.WaitUntilPresent(ctx, readySelector, a.readyTimeout()); err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("app: 交易页面未就绪: %w", err)
	}
	return sess, nil
}

func (a *App) closeSession(sess Session) {
	if err := sess.Close(); err != nil {
		a.logger.Warn("关闭浏览器失败", zap.Error(err))
	}
	fmt.Fprintln(a.out, "Driver shutdown complete.")
}

func (a *App) url(path string) string {
	return strings.TrimRight(a.cfg.App.VictoriaURL, "/") + path
}

func (a *App) readyTimeout() time.Duration {
	if a.cfg.Browser.ReadyTimeout > 0 {
		return a.cfg.Browser.ReadyTimeout
	}
	return defaultReadyTimeout
}

func (a *App) readTimeout() time.Duration {
	if a.cfg.Browser.ReadTimeout > 0 {
		return a.cfg.Browser.ReadTimeout
	}
	return defaultReadTimeout
}

func (a *App) clearConsole() {
	if a.clear {
		fmt.Fprint(a.out, clearScreen)
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
