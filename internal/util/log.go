// Package util provides shared logging, traffic statistics and formatting helpers.
package util

import (
	"fmt"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Leveled logging functions backed by the pterm default logger.
// All output goes to stderr by default (pterm's default).

func LogDebug(format string, args ...any) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...any) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogSuccess(format string, args ...any) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogWarning(format string, args ...any) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...any) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// DebugEnabled reports whether debug messages are currently printed.
func DebugEnabled() bool {
	level := pterm.DefaultLogger.Level
	return level != pterm.LogLevelDisabled && level <= pterm.LogLevelDebug
}

// Scope tags log lines with the name of the component that produced them,
// e.g. "[relay] peer 3k9x0a1bq connected".
type Scope string

func (s Scope) Debugf(format string, args ...any) {
	if !DebugEnabled() {
		return
	}
	LogDebug("[%s] %s", s, fmt.Sprintf(format, args...))
}

func (s Scope) Infof(format string, args ...any) {
	LogInfo("[%s] %s", s, fmt.Sprintf(format, args...))
}

func (s Scope) Warnf(format string, args ...any) {
	LogWarning("[%s] %s", s, fmt.Sprintf(format, args...))
}

func (s Scope) Errorf(format string, args ...any) {
	LogError("[%s] %s", s, fmt.Sprintf(format, args...))
}
