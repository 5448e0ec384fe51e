package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"follow-mm/internal/config"
)

// Session 持有一个浏览器会话，由打开它的模式负责关闭。
type Session struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *rod.Page
	driver   *rodDriver
	logger   *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// Open 启动本地 Chrome（或连接 CHROME_REMOTE_URL 指定的实例）并打开一个空白页面。
func Open(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		controlURL string
		l          *launcher.Launcher
		err        error
	)

	if cfg.RemoteURL != "" {
		controlURL, err = launcher.ResolveURL(cfg.RemoteURL)
		if err != nil {
			return nil, fmt.Errorf("browser: 解析远程调试地址失败: %w", err)
		}
	} else {
		l = launcher.New().
			Context(ctx).
			Headless(cfg.Headless).
			NoSandbox(true).
			Set("disable-dev-shm-usage").
			Leakless(true)
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		controlURL, err = l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: 启动 Chrome 失败: %w", err)
		}
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Kill()
			l.Cleanup()
		}
		return nil, fmt.Errorf("browser: 连接 Chrome 失败: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		if l != nil {
			l.Kill()
			l.Cleanup()
		}
		return nil, fmt.Errorf("browser: 创建页面失败: %w", err)
	}

	logger.Info("浏览器会话已建立",
		zap.Bool("headless", cfg.Headless),
		zap.Bool("remote", cfg.RemoteURL != ""),
	)

	return &Session{
		browser:  b,
		launcher: l,
		page:     page,
		driver:   newRodDriver(page, cfg.ReadTimeout, logger),
		logger:   logger,
	}, nil
}

// Driver 返回会话的页面驱动。
func (s *Session) Driver() Driver {
	return s.driver
}

// Close 关闭页面与浏览器，可重复调用。
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		var err error
		if s.launcher == nil {
			// 远程实例只关闭自己打开的页面
			err = multierr.Append(err, s.page.Close())
		} else {
			err = multierr.Append(err, s.browser.Close())
			s.launcher.Kill()
			s.launcher.Cleanup()
		}
		if err != nil {
			s.logger.Warn("关闭浏览器会话时出现错误", zap.Error(err))
		} else {
			s.logger.Info("浏览器会话已关闭")
		}
		s.closeErr = err
	})
	return s.closeErr
}
