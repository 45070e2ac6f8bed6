package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"mktplace/pkg/utils"
)

func (m model) View() string {
	if m.showHelp {
		return m.viewHelp()
	}

	if m.showNetworkStatus {
		return m.viewNetworkStatus()
	}

	if m.showWallet {
		return m.viewWallet()
	}

	var body string
	if m.showDetail {
		body = m.viewDetail()
	} else {
		body = m.viewGrid()
	}

	parts := []string{m.viewHeader()}
	if banner := m.viewBanner(); banner != "" {
		parts = append(parts, banner)
	}
	parts = append(parts, body, m.viewFooter())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m model) viewHeader() string {
	title := titleStyle.Render("Marketplace")

	var right string
	switch {
	case m.connecting:
		right = m.spinner.View() + " Connecting wallet..."
	case m.address == "":
		right = buttonStyle.Render("L: Login")
	default:
		status := networkBadge(m.store.Network().Networks().Info(m.state.CurrentNetwork))
		if m.state.Loading {
			status = m.spinner.View() + subtleStyle.Render(" Detecting...")
		}
		right = lipgloss.JoinHorizontal(lipgloss.Top,
			status,
			" ",
			subtleStyle.Render(utils.ShortAddress(m.address)),
			subtleStyle.Render(" (w)"),
		)
	}

	gap := m.width - lipgloss.Width(title) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, title, strings.Repeat(" ", gap), right)
}

// viewBanner renders the unsupported network warning, or "" when there is
// nothing to warn about. The switch options are replaced while a detection
// or switch is in flight.
func (m model) viewBanner() string {
	if m.address == "" || !m.state.Warning() {
		return ""
	}
	table := m.store.Network().Networks()
	actions := "Switching..."
	if !m.state.Loading {
		var options []string
		for i, id := range table.IDs() {
			options = append(options, fmt.Sprintf("%d: Switch to %s", i+1, table.Info(id).Name))
		}
		actions = strings.Join(options, " • ")
	}
	text := fmt.Sprintf("⚠ Unsupported Network. Please switch to %s.  %s",
		supportedNames(table), actions)
	if m.width > 0 {
		return bannerStyle.Width(m.width).Render(text)
	}
	return bannerStyle.Render(text)
}

func (m model) viewGrid() string {
	if len(m.listings) == 0 {
		return subtleStyle.Render("No listings available.")
	}

	cols := gridColumns(m.width)
	var rows []string
	for start := 0; start < len(m.listings); start += cols {
		end := start + cols
		if end > len(m.listings) {
			end = len(m.listings)
		}
		var cards []string
		for i := start; i < end; i++ {
			cards = append(cards, m.renderCard(i))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cards...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m model) renderCard(i int) string {
	l := m.listings[i]
	title := utils.TruncateString(l.Title, cardWidth-4)
	if l.Verified {
		title = utils.TruncateString(l.Title, cardWidth-6) + infoStyle.Render(" ✓")
	}
	lines := []string{
		lipgloss.NewStyle().Bold(true).Render(title),
		priceStyle.Render(l.Price),
		subtleStyle.Render(utils.TruncateString(l.Location, cardWidth-4)),
		subtleStyle.Render(l.Time),
	}
	style := boxStyle
	if i == m.cursor {
		style = selectedBoxStyle
	}
	return style.Width(cardWidth).Render(strings.Join(lines, "\n"))
}

func (m model) viewDetail() string {
	header := subtleStyle.Render("← esc: Back to listings")
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, "", m.viewport.View()))
}

func (m model) viewFooter() string {
	var line string
	switch {
	case m.showDetail:
		line = "↑/↓: scroll • b: buy • m: message • o: open image • esc: back • ?: help"
	default:
		line = "←/→/↑/↓: move • enter: view • L: login • w: wallet • N: network • r: refresh • ?: help • q: quit"
	}
	line += fmt.Sprintf(" • v%s", Version)

	footer := subtleStyle.Render(line)
	if m.width > 0 {
		footer = subtleStyle.Width(m.width).Align(lipgloss.Center).Render(line)
	}

	if m.statusMessage != "" {
		style := infoStyle
		if m.statusIsErr {
			style = errStyle
		}
		footer = lipgloss.JoinVertical(lipgloss.Center, style.Render(m.statusMessage), footer)
	}
	return footer
}

func (m model) viewWallet() string {
	table := m.store.Network().Networks()
	info := table.Info(m.state.CurrentNetwork)

	header := titleStyle.Render("Wallet")
	status := networkBadge(info)
	if m.state.Loading {
		status = m.spinner.View() + " Detecting..."
	}
	lines := []string{
		fmt.Sprintf("Address: %s", m.address),
		fmt.Sprintf("Network: %s", status),
	}
	if m.state.Warning() {
		lines = append(lines, errStyle.Render("⚠ Unsupported Network"))
	}
	lines = append(lines, "", subtleStyle.Render("Switch network"))
	for i, id := range table.IDs() {
		entry := fmt.Sprintf("  %d: %s", i+1, table.Info(id).Name)
		if id == m.state.CurrentNetwork {
			entry += infoStyle.Render(" (current)")
		}
		lines = append(lines, entry)
	}

	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, "\n", strings.Join(lines, "\n")))
	footer := subtleStyle.Render("c: copy address • o: log out • w/q/esc: close")
	if m.statusMessage != "" {
		footer = lipgloss.JoinVertical(lipgloss.Center, infoStyle.Render(m.statusMessage), footer)
	}

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer),
	)
}

func (m model) viewNetworkStatus() string {
	info := m.store.Network().Networks().Info(m.state.CurrentNetwork)
	header := titleStyle.Render(fmt.Sprintf("Network Status: %s", info.Name))

	stateLine := fmt.Sprintf("Chain ID: %s • Supported: %t • Loading: %t", m.state.CurrentNetwork, m.state.Supported, m.state.Loading)

	rows := ""
	for _, p := range m.probes {
		status := infoStyle.Render("OK")
		detail := p.ChainID.String()
		if p.Error != "" {
			status = errStyle.Render("FAIL")
			detail = utils.TruncateString(p.Error, 40)
		}
		lat := p.Latency.Round(time.Millisecond)
		rows += fmt.Sprintf("%-10s %s %8s  %s\n", p.Probe, status, lat, detail)
	}
	if rows == "" {
		rows = subtleStyle.Render("No probe results yet. Press r to run the probes.")
	}

	var graph string
	if series := latencySeries(m.latencies); len(series) > 1 {
		width := m.width - 20
		if width < 10 {
			width = 10
		}
		height := m.height - 20
		if height < 3 {
			height = 3
		}
		graph = asciigraph.Plot(series,
			asciigraph.Height(height),
			asciigraph.Width(width),
			asciigraph.Caption("Detection latency (ms)"),
		)
	} else {
		graph = "Not enough data to draw graph."
	}

	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center, header, "\n", stateLine, "\n", rows, "\n", graph))
	footer := subtleStyle.Render("N/q/esc: back • r: refresh")

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer),
	)
}

func (m model) viewHelp() string {
	var title string
	var shortcuts []string

	switch {
	case m.showNetworkStatus:
		title = "Network Status"
		shortcuts = []string{"r: Run probes and refresh", "N/q/esc: Back"}
	case m.showWallet:
		title = "Wallet"
		shortcuts = []string{"1-9: Switch network", "c: Copy Address", "o: Log out", "w/q/esc: Close"}
	case m.showDetail:
		title = "Listing"
		shortcuts = []string{"↑/k: Scroll Up", "↓/j: Scroll Down", "b: Buy Now", "m: Message Seller", "o: Open image", "L: Login", "q/esc: Back"}
	default:
		title = "Listings"
		shortcuts = []string{
			"←/→/↑/↓ or h/j/k/l: Move",
			"enter: View listing",
			"L: Login with wallet",
			"w: Wallet menu",
			"1-9: Switch to supported network",
			"N: Network status",
			"r: Refresh network",
			"c: Copy Address",
			"q: Quit",
			"?: Toggle Help",
		}
	}

	header := titleStyle.Render(fmt.Sprintf("Help: %s", title))
	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, "\n", strings.Join(shortcuts, "\n")))
	footer := subtleStyle.Render("Press '?' or 'esc' to close")

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer),
	)
}
