package output

import (
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/tdh8316/handlescout/internal/check"
)

var (
	green   = color.New(color.FgHiGreen).SprintFunc()
	red     = color.New(color.FgHiRed).SprintFunc()
	yellow  = color.New(color.FgHiYellow).SprintFunc()
	blue    = color.New(color.FgHiBlue).SprintFunc()
	magenta = color.New(color.FgHiMagenta).SprintFunc()
	white   = color.New(color.FgHiWhite).SprintFunc()
	grey    = color.New(color.FgHiBlack).SprintFunc()
)

type paint func(a ...any) string

type Printer struct {
	noColor bool
	verbose bool

	logger *log.Logger
	stream *log.Logger // optional (available handles, one per line)
}

func NewPrinter(stdout io.Writer, noColor, verbose bool, buf *strings.Builder) *Printer {
	p := &Printer{
		noColor: noColor,
		verbose: verbose,
		logger:  log.New(stdout, "", 0),
	}
	if buf != nil {
		p.stream = log.New(buf, "", 0)
	}
	return p
}

// Event renders one engine event. It has the check.Sink signature.
func (p *Printer) Event(ev check.Event) {
	switch ev.Kind {
	case check.EventResult:
		p.result(ev)
	case check.EventCooldown:
		p.line("!", yellow, ev.Message)
	case check.EventStatus:
		if ev.Category == check.CategoryRateLimit {
			p.line("!", yellow, ev.Message)
			return
		}
		p.line("i", blue, ev.Message)
	case check.EventDebug:
		if p.verbose {
			p.line("*", grey, ev.Message)
		}
	case check.EventDone:
		p.line("i", blue, ev.Message)
	}
}

func (p *Printer) result(ev check.Event) {
	// File output is always plain.
	if p.stream != nil && ev.Verdict == check.Available {
		p.stream.Print(ev.Candidate)
	}

	progress := fmt.Sprintf("%d/%d", ev.Progress, ev.Total)
	if p.noColor {
		p.logger.Printf("[%s] %s %s", marker(ev.Category), progress, ev.Message)
		return
	}

	switch ev.Category {
	case check.CategoryAvailable:
		p.logger.Printf("[%s] %s %s", green("+"), progress, white(ev.Message))
	case check.CategoryTaken:
		p.logger.Printf("[%s] %s %s", red("-"), progress, ev.Message)
	case check.CategoryUnclear:
		p.logger.Printf("[%s] %s %s", yellow("?"), progress, yellow(ev.Message))
	case check.CategoryRateLimit:
		p.logger.Printf("[%s] %s %s", yellow("!"), progress, yellow(ev.Message))
	default:
		p.logger.Printf("[%s] %s %s", red("!"), progress, magenta(ev.Message))
	}
}

func (p *Printer) line(mark string, c paint, msg string) {
	if p.noColor {
		p.logger.Printf("[%s] %s", mark, msg)
		return
	}
	p.logger.Printf("[%s] %s", c(mark), msg)
}

// Summary prints the per-verdict counts of a finished run.
func (p *Printer) Summary(sum check.Summary) {
	order := []check.Verdict{check.Available, check.Taken, check.Unclear, check.RateLimited, check.AuthError, check.TransientError}
	parts := make([]string, 0, len(order))
	for _, v := range order {
		if n := sum.Counts[v]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", v, n))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "nothing checked")
	}
	p.line("i", blue, fmt.Sprintf("%d/%d checked in %s (%s)", sum.Processed, sum.Total, sum.Elapsed.Round(time.Millisecond), strings.Join(parts, ", ")))
}

func marker(c check.Category) string {
	switch c {
	case check.CategoryAvailable:
		return "+"
	case check.CategoryTaken:
		return "-"
	case check.CategoryUnclear:
		return "?"
	default:
		return "!"
	}
}
