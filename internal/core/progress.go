package core

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// Progress receives per-stage row counts while a stage runs.
type Progress interface {
	Start(label string, total int)
	Advance()
	Done()
}

// Progress modes.
const (
	ProgressBar = "bar"
	ProgressLog = "log"
	ProgressOff = "off"
)

// NewProgress returns the reporter for a mode: a redrawn bar on w, a log
// line every 10% on logger, or nothing.
func NewProgress(mode string, w io.Writer, logger *slog.Logger) Progress {
	switch strings.ToLower(mode) {
	case ProgressBar:
		return &barProgress{w: w, bar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40))}
	case ProgressLog:
		if logger == nil {
			logger = slog.Default()
		}
		return &logProgress{logger: logger}
	default:
		return noProgress{}
	}
}

type noProgress struct{}

func (noProgress) Start(string, int) {}
func (noProgress) Advance()          {}
func (noProgress) Done()             {}

var labelStyle = lipgloss.NewStyle().Bold(true).Width(22)

// barProgress redraws one line per stage, at most once per percent.
type barProgress struct {
	w     io.Writer
	bar   progress.Model
	label string
	total int
	done  int
	step  int
}

func (p *barProgress) Start(label string, total int) {
	p.label, p.total, p.done = label, total, 0
	p.step = max(1, total/100)
	p.draw()
}

func (p *barProgress) Advance() {
	p.done++
	if p.done%p.step == 0 || p.done == p.total {
		p.draw()
	}
}

func (p *barProgress) Done() {
	p.draw()
	fmt.Fprintln(p.w)
}

func (p *barProgress) draw() {
	pct := 1.0
	if p.total > 0 {
		pct = float64(p.done) / float64(p.total)
	}
	fmt.Fprintf(p.w, "\r%s %s %d/%d", labelStyle.Render(p.label), p.bar.ViewAs(pct), p.done, p.total)
}

// logProgress logs at each 10% step.
type logProgress struct {
	logger *slog.Logger
	label  string
	total  int
	done   int
	next   int
}

func (p *logProgress) Start(label string, total int) {
	p.label, p.total, p.done, p.next = label, total, 0, 10
	p.logger.Info("stage started", "stage", label, "rows", total)
}

func (p *logProgress) Advance() {
	p.done++
	if p.total == 0 {
		return
	}
	if pct := p.done * 100 / p.total; pct >= p.next {
		p.logger.Info("stage progress", "stage", p.label, "rows", p.done, "percent", pct)
		p.next = (pct/10 + 1) * 10
	}
}

func (p *logProgress) Done() {}
