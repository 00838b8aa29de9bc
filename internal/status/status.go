// Package status carries user-facing status and progress reports from the
// negotiation and transfer code to whatever renders them.
package status

import (
	"fmt"
	"sync"

	"github.com/pterm/pterm"
)

// Severity classifies a status line.
type Severity string

const (
	SeverityProgress Severity = "progress"
	SeveritySuccess  Severity = "success"
	SeverityError    Severity = "error"
)

// Direction tells apart the two halves of a transfer.
type Direction string

const (
	Sending   Direction = "Sending"
	Receiving Direction = "Receiving"
)

// Reporter is the UI status collaborator. Implementations must be safe for
// concurrent use: negotiation and transfers report from different goroutines.
type Reporter interface {
	// Status publishes a one-line message with the given severity.
	Status(message string, severity Severity)
	// Progress publishes an integer percentage (0..100) for the named file.
	Progress(dir Direction, fileName string, percent int)
}

// Discard is a Reporter that drops everything.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Status(string, Severity)         {}
func (discard) Progress(Direction, string, int) {}

// Console renders reports on the terminal with pterm printers and one
// progress bar per transfer.
type Console struct {
	mu   sync.Mutex
	bars map[Direction]*consoleBar
}

type consoleBar struct {
	name    string
	printer *pterm.ProgressbarPrinter
	percent int
}

// NewConsole creates a terminal reporter.
func NewConsole() *Console {
	return &Console{bars: make(map[Direction]*consoleBar)}
}

func (c *Console) Status(message string, severity Severity) {
	switch severity {
	case SeveritySuccess:
		pterm.Success.Println(message)
	case SeverityError:
		pterm.Error.Println(message)
	default:
		pterm.Info.Println(message)
	}
}

func (c *Console) Progress(dir Direction, fileName string, percent int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bar := c.bars[dir]
	if bar == nil || bar.name != fileName || percent < bar.percent {
		c.stopLocked(dir)
		printer, err := pterm.DefaultProgressbar.
			WithTotal(100).
			WithTitle(fmt.Sprintf("%s %s", dir, fileName)).
			Start()
		if err != nil {
			return
		}
		bar = &consoleBar{name: fileName, printer: printer}
		c.bars[dir] = bar
	}

	if delta := percent - bar.percent; delta > 0 {
		bar.printer.Add(delta)
		bar.percent = percent
	}

	if percent >= 100 {
		c.stopLocked(dir)
	}
}

func (c *Console) stopLocked(dir Direction) {
	if bar := c.bars[dir]; bar != nil {
		_, _ = bar.printer.Stop()
		delete(c.bars, dir)
	}
}
