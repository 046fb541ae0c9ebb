package main

import (
	"os"

	"github.com/loykin/apireplay/internal/common"
)

// ExitHandler terminates the process; tests replace it.
type ExitHandler interface {
	Exit(code int)
	LogFatalError(err error, msg string, keyvals ...any)
	LogExit(code int, reason string)
}

// DefaultExitHandler logs through the process logger current at exit time,
// so the configured format applies.
type DefaultExitHandler struct{}

func NewDefaultExitHandler() *DefaultExitHandler { return &DefaultExitHandler{} }

func (h *DefaultExitHandler) logger() *common.Logger {
	return common.GetLogger().WithComponent("main")
}

func (h *DefaultExitHandler) Exit(code int) {
	os.Exit(code)
}

// LogFatalError logs err and exits with 1.
func (h *DefaultExitHandler) LogFatalError(err error, msg string, keyvals ...any) {
	h.logger().Error(msg, append([]any{"error", err}, keyvals...)...)
	h.Exit(1)
}

// LogExit ends a command that finished but reports a non-zero status.
func (h *DefaultExitHandler) LogExit(code int, reason string) {
	h.logger().Warn("exiting with non-zero status", "code", code, "reason", reason)
	h.Exit(code)
}

var exitHandler ExitHandler = NewDefaultExitHandler()
