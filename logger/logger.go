// Package logger provides the global structured logger for Noculars.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/teranos/noculars/errors"
)

var (
	// Logger is the global logger instance
	Logger *zap.SugaredLogger
	// JSONOutput tracks whether JSON output is enabled
	JSONOutput bool
)

func init() {
	// Safe no-op logger at package load time so early callers never panic
	// before Initialize() runs.
	Logger = zap.NewNop().Sugar()
}

// Initialize sets up the global logger.
// With jsonOutput the logger emits machine-readable JSON on stdout;
// otherwise it uses a human-readable console encoder.
func Initialize(jsonOutput bool) error {
	return InitializeWithFile(jsonOutput, "")
}

// InitializeWithFile sets up the global logger, optionally duplicating all
// output to a log file (the pipeline's configured log path).
func InitializeWithFile(jsonOutput bool, logPath string) error {
	JSONOutput = jsonOutput

	cores := []zapcore.Core{consoleCore(jsonOutput)}

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return errors.Wrapf(err, "failed to open log file %s", logPath)
		}
		fileEnc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		cores = append(cores, zapcore.NewCore(fileEnc, zapcore.AddSync(f), zap.InfoLevel))
	}

	Logger = zap.New(zapcore.NewTee(cores...)).Sugar()
	return nil
}

func consoleCore(jsonOutput bool) zapcore.Core {
	if jsonOutput {
		enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		return zapcore.NewCore(enc, zapcore.AddSync(os.Stdout), zap.InfoLevel)
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	return zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(os.Stdout), zap.InfoLevel)
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}
