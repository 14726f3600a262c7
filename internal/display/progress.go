package display

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"revit-server-backup/internal/backup"
)

// ProgressBar draws a single-line bar counting finished models. It is safe
// for concurrent use.
type ProgressBar struct {
	current     int
	total       int
	message     string
	width       int
	writer      io.Writer
	colorSys    ColorSystem
	theme       ColorTheme
	showPercent bool
	unicode     bool
	mu          sync.Mutex
}

// NewProgressBar creates a new progress bar
func NewProgressBar(total int, message string, writer io.Writer, colorSys ColorSystem, theme ColorTheme) *ProgressBar {
	return &ProgressBar{
		total:       total,
		message:     message,
		width:       30,
		writer:      writer,
		colorSys:    colorSys,
		theme:       theme,
		showPercent: true,
		unicode:     true,
	}
}

// Increment advances the bar by one
func (pb *ProgressBar) Increment(message string) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current++
	if message != "" {
		pb.message = message
	}
	pb.render()
}

// Finish completes the bar and ends its line
func (pb *ProgressBar) Finish(finalMessage string) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current = pb.total
	if finalMessage != "" {
		pb.message = finalMessage
	}
	pb.render()
	fmt.Fprintln(pb.writer)
}

// SetWidth sets the width of the bar itself
func (pb *ProgressBar) SetWidth(width int) {
	pb.mu.Lock()
	pb.width = width
	pb.mu.Unlock()
}

// SetShowPercent enables or disables percentage display
func (pb *ProgressBar) SetShowPercent(show bool) {
	pb.mu.Lock()
	pb.showPercent = show
	pb.mu.Unlock()
}

// SetUnicode switches between block characters and '#'/'-'
func (pb *ProgressBar) SetUnicode(unicode bool) {
	pb.mu.Lock()
	pb.unicode = unicode
	pb.mu.Unlock()
}

// render draws the bar. The caller holds mu.
func (pb *ProgressBar) render() {
	if pb.total <= 0 {
		return
	}

	current := min(pb.current, pb.total)
	percentage := float64(current) / float64(pb.total) * 100
	filledWidth := pb.width * current / pb.total

	fill, rest := "█", "░"
	if !pb.unicode {
		fill, rest = "#", "-"
	}
	filled := strings.Repeat(fill, filledWidth)
	empty := strings.Repeat(rest, pb.width-filledWidth)

	if pb.colorSys != nil && pb.colorSys.IsColorSupported() {
		filled = pb.colorSys.Colorize(filled, pb.theme.Success)
		empty = pb.colorSys.Colorize(empty, pb.theme.Muted)
	}

	if pb.showPercent {
		fmt.Fprintf(pb.writer, "\r[%s%s] %5.1f%% (%d/%d) %s", filled, empty, percentage, current, pb.total, pb.message)
	} else {
		fmt.Fprintf(pb.writer, "\r[%s%s] (%d/%d) %s", filled, empty, current, pb.total, pb.message)
	}
}

// RunProgress shows how far a backup run has got on a progress bar. It
// satisfies backup.Progress.
type RunProgress struct {
	writer io.Writer
	colors ColorSystem
	theme  ColorTheme
	icons  IconSystem

	mu     sync.Mutex
	bar    *ProgressBar
	failed int
}

// NewRunProgress creates a run progress display writing to w, usually stderr
// so structured reports on stdout stay clean
func (s *Service) NewRunProgress(w io.Writer) *RunProgress {
	return &RunProgress{
		writer: w,
		colors: s.colors,
		theme:  s.colors.Theme(),
		icons:  s.icons,
	}
}

// Start begins a bar for total models. Runs selecting nothing draw nothing.
func (p *RunProgress) Start(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = 0
	p.bar = nil
	if total == 0 {
		return
	}
	p.bar = NewProgressBar(total, "backing up models", p.writer, p.colors, p.theme)
	p.bar.SetUnicode(p.icons.IsUnicodeSupported())
	p.bar.render()
}

// ModelFinished advances the bar and names the model that just finished
func (p *RunProgress) ModelFinished(outcome backup.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil {
		return
	}
	if outcome.Failed() {
		p.failed++
	}
	p.bar.Increment(p.describe(outcome))
}

// Finish completes the bar with the failure count
func (p *RunProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil {
		return
	}
	message := "done"
	if p.failed > 0 {
		message = fmt.Sprintf("done, %d failed", p.failed)
	}
	p.bar.Finish(message)
	p.bar = nil
}

func (p *RunProgress) describe(outcome backup.Outcome) string {
	icon := "success"
	if outcome.Failed() {
		icon = "failed"
	}
	// pad so a shorter name overwrites the previous one
	return fmt.Sprintf("%s %-40s", p.icons.RenderIconWithColor(icon, p.colors), truncateText(outcome.ModelID, 40))
}

func truncateText(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen-3]) + "..."
}
