package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Renderer formats results as fixed-width text lines.
type Renderer struct {
	highlight bool
	pass      lipgloss.Style
	fail      lipgloss.Style
}

// NewRenderer colors PASS/FAIL tags when highlight is set and the terminal
// supports color.
func NewRenderer(highlight bool) Renderer {
	return Renderer{
		highlight: highlight,
		pass:      lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		fail:      lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
}

// Line renders `STATUS  NAME  description [fail: reasons]`.
func (r Renderer) Line(res TestResult) string {
	tag := fmt.Sprintf("%-5s", "FAIL")
	style := r.fail
	if res.Passed {
		tag = fmt.Sprintf("%-5s", "PASS")
		style = r.pass
	}
	if r.highlight {
		tag = style.Render(tag)
	}
	line := fmt.Sprintf("%s  %-25s  %s", tag, res.Name, res.Description())
	if len(res.Reasons) > 0 {
		line += "  [fail: " + strings.Join(res.Reasons, "; ") + "]"
	}
	return line
}

// Text joins one line per result.
func (r Renderer) Text(results []TestResult) string {
	lines := make([]string, 0, len(results))
	for _, res := range results {
		lines = append(lines, r.Line(res))
	}
	return strings.Join(lines, "\n")
}

// Write renders the report and a summary line to w.
func (r Renderer) Write(w io.Writer, results []TestResult) error {
	s := Summarize(results)
	if _, err := fmt.Fprintln(w, r.Text(results)); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", s.Passed, s.Failed, s.Total)
	return err
}
