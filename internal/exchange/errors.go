package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/adshao/go-binance/v2/common"
	ccxt "github.com/ccxt/ccxt/go/v4"
)

var (
	// ErrNetwork 表示网络或上游服务暂时不可用，可稍后重试。
	ErrNetwork = errors.New("exchange: 网络错误")
	// ErrInvalidSymbol 表示参考交易所不存在该交易对。
	ErrInvalidSymbol = errors.New("exchange: 交易对不存在")
	// ErrMaintenance 表示交易所处于维护状态。
	ErrMaintenance = fmt.Errorf("%w: 交易所维护中", ErrNetwork)
)

// binance 对非法交易对返回的错误码
const binanceInvalidSymbolCode = -1121

// classifyCCXTError 将 ccxt 错误归类为 ErrNetwork 或 ErrInvalidSymbol。
func classifyCCXTError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.OnMaintenanceErrType:
			message := strings.TrimSpace(ccxtErr.Message)
			if message == "" {
				message = "exchange under maintenance"
			}
			return fmt.Errorf("%w: %s", ErrMaintenance, message)
		case ccxt.BadSymbolErrType:
			return fmt.Errorf("%w: %w", ErrInvalidSymbol, err)
		default:
			// 超时、限流、交易所不可用等都交给调用方下一轮再试
			return fmt.Errorf("%w: %w", ErrNetwork, err)
		}
	}

	return classifyTransport(err)
}

// classifyBinanceError 将 go-binance 返回的错误归类。
func classifyBinanceError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == binanceInvalidSymbolCode {
			return fmt.Errorf("%w: %s", ErrInvalidSymbol, apiErr.Message)
		}
		return fmt.Errorf("%w: binance code=%d: %s", ErrNetwork, apiErr.Code, apiErr.Message)
	}

	return classifyTransport(err)
}

func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: 请求超时: %w", ErrNetwork, err)
	}
	// 其余传输层错误与无法解析的响应都按网络错误处理
	return fmt.Errorf("%w: %w", ErrNetwork, err)
}
