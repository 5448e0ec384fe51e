package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"follow-mm/internal/config"
)

// NewLogger 根据配置创建 zap.Logger：控制台输出 + 按大小滚动的日志文件 <dir>/<name>.log。
// name 为空时不写文件。返回的 closeFn 刷新缓冲并关闭日志文件，同一文件同一时刻只应有一个未关闭的 logger。
func NewLogger(cfg config.LoggingConfig, name string) (logger *zap.Logger, closeFn func(), err error) {
	level := zapcore.InfoLevel
	if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
		return nil, nil, fmt.Errorf("解析日志级别失败: %w", err)
	}
	atomic := zap.NewAtomicLevelAt(level)

	if len(cfg.OutputPaths) == 0 {
		cfg.OutputPaths = []string{"stdout"}
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	encoderConfig.FunctionKey = zapcore.OmitKey
	encoderConfig.TimeKey = "ts"
	encoderConfig.NameKey = "logger"
	encoderConfig.CallerKey = "caller"

	consoleConfig := encoderConfig
	if cfg.Development {
		consoleConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	sink, closeSink, err := zap.Open(cfg.OutputPaths...)
	if err != nil {
		return nil, nil, fmt.Errorf("打开日志输出失败: %w", err)
	}

	var file *lumberjack.Logger
	cores := []zapcore.Core{
		zapcore.NewCore(newEncoder(cfg.Encoding, consoleConfig), sink, atomic),
	}

	if name != "" && cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			closeSink()
			return nil, nil, fmt.Errorf("创建日志目录 %q 失败: %w", cfg.Dir, err)
		}
		file = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, name+".log"),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		// 文件里不需要颜色码
		cores = append(cores, zapcore.NewCore(newEncoder(cfg.Encoding, encoderConfig), zapcore.AddSync(file), atomic))
	}

	opts := []zap.Option{zap.AddCaller()}
	if len(cfg.ErrorOutputPaths) > 0 {
		errSink, _, err := zap.Open(cfg.ErrorOutputPaths...)
		if err != nil {
			closeSink()
			if file != nil {
				_ = file.Close()
			}
			return nil, nil, fmt.Errorf("打开错误日志输出失败: %w", err)
		}
		opts = append(opts, zap.ErrorOutput(errSink))
	}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	logger = zap.New(zapcore.NewTee(cores...), opts...).With(zap.String("service", "follow-mm"))
	if name != "" {
		logger = logger.Named(name)
	}

	var once sync.Once
	closeFn = func() {
		once.Do(func() {
			_ = logger.Sync()
			if file != nil {
				_ = file.Close()
			}
			closeSink()
		})
	}
	return logger, closeFn, nil
}

func newEncoder(encoding string, cfg zapcore.EncoderConfig) zapcore.Encoder {
	if strings.EqualFold(encoding, "json") {
		return zapcore.NewJSONEncoder(cfg)
	}
	return zapcore.NewConsoleEncoder(cfg)
}
