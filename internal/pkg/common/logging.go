package common

import (
	"io"
	"log/slog"

	"github.com/ethereum/go-ethereum/log"
)

// SetupLogging installs the process logger. stdout carries progress JSON, so logs
// go to w (stderr in practice).
func SetupLogging(w io.Writer, verbosity int) {
	var lvl slog.Level

	switch {
	case verbosity <= 1:
		lvl = slog.LevelError
	case verbosity == 2:
		lvl = slog.LevelWarn
	case verbosity == 3:
		lvl = slog.LevelInfo
	case verbosity == 4:
		lvl = slog.LevelDebug
	default:
		lvl = log.LevelTrace
	}

	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(w, lvl, false)))
}
