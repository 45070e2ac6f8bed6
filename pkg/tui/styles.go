package tui

import "github.com/charmbracelet/lipgloss"

// --- Styles ---
var (
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	titleStyle  = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1).
			Bold(true)
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	priceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#2563EB")).Bold(true)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD")).
			Padding(0, 1)
	selectedBoxStyle = boxStyle.
				BorderForeground(lipgloss.Color("#2563EB"))
	buttonStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#2563EB")).
			Padding(0, 1)
	bannerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#DC2626")).
			Padding(0, 1)
)

var badgeColors = map[string]lipgloss.Color{
	"blue":  lipgloss.Color("#3B82F6"),
	"green": lipgloss.Color("#10B981"),
	"red":   lipgloss.Color("#EF4444"),
	"gray":  lipgloss.Color("241"),
}

// colorFor maps a configured network color to a terminal color. Unknown
// names are passed through so hex values work too.
func colorFor(name string) lipgloss.Color {
	if c, ok := badgeColors[name]; ok {
		return c
	}
	return lipgloss.Color(name)
}
