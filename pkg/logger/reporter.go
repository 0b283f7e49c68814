package logger

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Reporter prints user-facing results in cargo's style: a coloured label
// followed by the message. Colours are dropped when w is not a terminal.
type Reporter struct {
	mu    sync.Mutex
	w     io.Writer
	quiet bool

	errLabel  lipgloss.Style
	warnLabel lipgloss.Style
	okLabel   lipgloss.Style
	infoLabel lipgloss.Style
	added     lipgloss.Style
	removed   lipgloss.Style
	dim       lipgloss.Style
}

func NewReporter(w io.Writer, quiet bool) *Reporter {
	r := lipgloss.NewRenderer(w)
	return &Reporter{
		w:         w,
		quiet:     quiet,
		errLabel:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		warnLabel: r.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
		okLabel:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		infoLabel: r.NewStyle().Bold(true).Foreground(lipgloss.Color("14")),
		added:     r.NewStyle().Foreground(lipgloss.Color("2")),
		removed:   r.NewStyle().Foreground(lipgloss.Color("1")),
		dim:       r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

func (r *Reporter) Error(format string, args ...any) {
	r.line(r.errLabel.Render("error:"), format, args...)
}

func (r *Reporter) Warning(format string, args ...any) {
	r.line(r.warnLabel.Render("warning:"), format, args...)
}

// Status prints a right-aligned verb, as cargo does for progress lines.
func (r *Reporter) Status(verb, format string, args ...any) {
	if r.quiet {
		return
	}
	r.line(r.infoLabel.Render(fmt.Sprintf("%12s", verb)), format, args...)
}

func (r *Reporter) Success(verb, format string, args ...any) {
	if r.quiet {
		return
	}
	r.line(r.okLabel.Render(fmt.Sprintf("%12s", verb)), format, args...)
}

// List prints indented items below the previous line.
func (r *Reporter) List(items []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range items {
		fmt.Fprintf(r.w, "  - %s\n", item)
	}
}

// Diff prints a unified diff with added and removed lines coloured.
func (r *Reporter) Diff(diff string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
		switch {
		case strings.HasPrefix(l, "+++"), strings.HasPrefix(l, "---"), strings.HasPrefix(l, "@@"):
			l = r.dim.Render(l)
		case strings.HasPrefix(l, "+"):
			l = r.added.Render(l)
		case strings.HasPrefix(l, "-"):
			l = r.removed.Render(l)
		}
		fmt.Fprintf(r.w, "    %s\n", l)
	}
}

// Block prints captured tool output verbatim.
func (r *Reporter) Block(text string) {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, text)
}

func (r *Reporter) line(label, format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "%s %s\n", label, fmt.Sprintf(format, args...))
}
