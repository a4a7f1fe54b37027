package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap with the fields every service emits: service name,
// hostname, request id and an action tag identifying the step that logged.
type Logger struct {
	zl *zap.Logger
}

func NewLogger(service, level string) *Logger {
	lvl := zapcore.InfoLevel
	if parsed, err := zapcore.ParseLevel(level); err == nil {
		lvl = parsed
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.RFC3339TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.Lock(os.Stdout),
		lvl,
	)

	hostname, _ := os.Hostname()
	zl := zap.New(core).With(
		zap.String("service", service),
		zap.String("hostname", hostname),
	)

	return &Logger{zl: zl}
}

// Nop returns a logger that discards everything, for tests.
func Nop() *Logger {
	return &Logger{zl: zap.NewNop()}
}

func (l *Logger) Debug(requestID, action, message string) {
	l.zl.Debug(message, zap.String("request_id", requestID), zap.String("action", action))
}

func (l *Logger) Info(requestID, action, message string) {
	l.zl.Info(message, zap.String("request_id", requestID), zap.String("action", action))
}

func (l *Logger) Warn(requestID, action, message string) {
	l.zl.Warn(message, zap.String("request_id", requestID), zap.String("action", action))
}

func (l *Logger) Error(requestID, action, message string, err error) {
	l.zl.Error(message,
		zap.String("request_id", requestID),
		zap.String("action", action),
		zap.Error(err),
	)
}

func (l *Logger) Sync() {
	_ = l.zl.Sync()
}
