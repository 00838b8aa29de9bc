package transport

import (
	"github.com/pion/logging"

	"github.com/1ureka/peerdrop/internal/util"
)

// loggerFactory routes pion's internal logs into the pterm logger. pion's
// info level is chatty (every ICE state step), so it is demoted to debug.
type loggerFactory struct{}

func (loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return pionLogger{scope: util.Scope("pion/" + scope)}
}

type pionLogger struct {
	scope util.Scope
}

func (l pionLogger) Trace(string)                   {}
func (l pionLogger) Tracef(string, ...any)          {}
func (l pionLogger) Debug(msg string)               { l.scope.Debugf("%s", msg) }
func (l pionLogger) Debugf(format string, a ...any) { l.scope.Debugf(format, a...) }
func (l pionLogger) Info(msg string)                { l.scope.Debugf("%s", msg) }
func (l pionLogger) Infof(format string, a ...any)  { l.scope.Debugf(format, a...) }
func (l pionLogger) Warn(msg string)                { l.scope.Warnf("%s", msg) }
func (l pionLogger) Warnf(format string, a ...any)  { l.scope.Warnf(format, a...) }
func (l pionLogger) Error(msg string)               { l.scope.Errorf("%s", msg) }
func (l pionLogger) Errorf(format string, a ...any) { l.scope.Errorf(format, a...) }

var _ logging.LoggerFactory = loggerFactory{}
