package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
)

var (
	// ErrTransientUI 表示元素缺失、过期或暂不可交互，下个周期重试即可。
	ErrTransientUI = errors.New("browser: 界面暂不可用")
	// ErrNotFound 表示定位器当前没有匹配元素。
	ErrNotFound = fmt.Errorf("%w: 元素不存在", ErrTransientUI)
	// ErrSessionClosed 表示浏览器会话已丢失，当前模式必须退出。
	ErrSessionClosed = errors.New("browser: 浏览器会话已关闭")
)

// IsTransient 判断错误是否为可在下个周期重试的界面错误。
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientUI)
}

// IsSessionClosed 判断错误是否意味着会话丢失。
func IsSessionClosed(err error) bool {
	return errors.Is(err, ErrSessionClosed)
}

// classifyError 将 rod / cdp 的底层错误归类为 ErrTransientUI 或 ErrSessionClosed。
// known 为 false 表示无法判断，需要结合会话存活情况决定。
func classifyError(err error) (classified error, known bool) {
	if err == nil {
		return nil, true
	}
	if errors.Is(err, ErrTransientUI) || errors.Is(err, ErrSessionClosed) {
		return err, true
	}
	if errors.Is(err, context.Canceled) {
		return err, true
	}

	if isSessionLost(err) {
		return fmt.Errorf("%w: %w", ErrSessionClosed, err), true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: 等待超时: %w", ErrTransientUI, err), true
	}

	var (
		notFound      *rod.ElementNotFoundError
		objNotFound   *rod.ObjectNotFoundError
		notInteract   *rod.NotInteractableError
		invisible     *rod.InvisibleShapeError
		covered       *rod.CoveredError
		noPointer     *rod.NoPointerEventsError
		evalErr       *rod.EvalError
		navigationErr *rod.NavigationError
		cdpErr        *cdp.Error
	)
	switch {
	case errors.As(err, &notFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err), true
	case errors.As(err, &objNotFound),
		errors.As(err, &notInteract),
		errors.As(err, &invisible),
		errors.As(err, &covered),
		errors.As(err, &noPointer),
		errors.As(err, &evalErr),
		errors.As(err, &navigationErr),
		errors.As(err, &cdpErr):
		return fmt.Errorf("%w: %w", ErrTransientUI, err), true
	}

	return err, false
}

func isSessionLost(err error) bool {
	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var pageNotFound *rod.PageNotFoundError
	if errors.As(err, &pageNotFound) {
		return true
	}

	var cdpErr *cdp.Error
	if errors.As(err, &cdpErr) {
		if cdpErr.Code == cdp.ErrSessionNotFound.Code {
			return true
		}
		msg := strings.ToLower(cdpErr.Message)
		if strings.Contains(msg, "target closed") || msg == strings.ToLower(cdp.ErrNotAttachedToActivePage.Message) {
			return true
		}
	}

	return false
}
