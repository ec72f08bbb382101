// Package logging builds the single structured logger shared by the
// preprocessor, query engine and transport server.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a named *zap.SugaredLogger writing console-encoded lines to
// stderr. debug raises the level to zapcore.DebugLevel.
func New(name string, debug bool) *zap.SugaredLogger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(os.Stderr), level)

	return zap.New(core).Named(name).Sugar()
}
