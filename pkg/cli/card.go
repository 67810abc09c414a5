package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the card colors.
type Theme struct {
	Primary lipgloss.Color
	Dim     lipgloss.Color
	Warn    lipgloss.Color
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Warn:    lipgloss.Color("#ffb86c"),
}

// Styles holds the styles derived from a theme.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Value  lipgloss.Style
	Dim    lipgloss.Style
	Warn   lipgloss.Style
	Border lipgloss.Style
	Bar    lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Label:  lipgloss.NewStyle().Foreground(t.Dim),
		Value:  lipgloss.NewStyle(),
		Dim:    lipgloss.NewStyle().Foreground(t.Dim),
		Warn:   lipgloss.NewStyle().Foreground(t.Warn),
		Border: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(t.Primary).Padding(0, 1),
		Bar:    lipgloss.NewStyle().Foreground(t.Primary),
	}
}

// DefaultStyles returns NewStyles(DefaultTheme).
func DefaultStyles() Styles {
	return NewStyles(DefaultTheme)
}

// Row is one labeled line of a card. A Bar in [0, 1] draws a meter after
// the value; negative hides it.
type Row struct {
	Label string
	Value string
	Bar   float64
	Warn  bool
}

// Card is a bordered block with a title and aligned rows.
type Card struct {
	Title string
	Rows  []Row
}

// barWidth is the meter width in cells.
const barWidth = 20

// Render draws the card.
func (c Card) Render(s Styles) string {
	labelWidth := 0
	for _, r := range c.Rows {
		labelWidth = max(labelWidth, lipgloss.Width(r.Label))
	}

	lines := []string{s.Title.Render(c.Title)}
	for _, r := range c.Rows {
		label := s.Label.Render(r.Label + strings.Repeat(" ", labelWidth-lipgloss.Width(r.Label)))
		value := s.Value.Render(r.Value)
		if r.Warn {
			value = s.Warn.Render(r.Value)
		}
		line := label + "  " + value
		if r.Bar >= 0 {
			line += "  " + meter(s, r.Bar)
		}
		lines = append(lines, line)
	}
	return s.Border.Render(strings.Join(lines, "\n"))
}

func meter(s Styles, v float64) string {
	n := int(min(1, max(0, v))*barWidth + 0.5)
	return s.Bar.Render(strings.Repeat("█", n)) + s.Dim.Render(strings.Repeat("░", barWidth-n))
}
