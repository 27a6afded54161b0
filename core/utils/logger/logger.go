package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log global sugared logger, no-op until InitLogger is called
var Log = zap.NewNop().Sugar()

// InitLogger init logger
func InitLogger() {
	lowPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl < zapcore.ErrorLevel
	})
	highPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)
	core := zapcore.NewTee(
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), lowPriority),
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), highPriority),
	)

	logger := zap.New(core, zap.AddCaller())
	defer logger.Sync()

	zap.ReplaceGlobals(logger)
	Log = zap.S()
}
