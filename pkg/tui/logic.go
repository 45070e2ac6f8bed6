package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mktplace/pkg/config"
	"mktplace/pkg/models"
	"mktplace/pkg/network"
	"mktplace/pkg/storefront"
	"mktplace/pkg/utils"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	cardWidth     = 34
	walletTimeout = 30 * time.Second
)

func listenForNetwork(sub network.Subscriber) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-sub
		if !ok {
			return nil
		}
		return ev
	}
}

func loginCmd(store *storefront.Storefront) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), walletTimeout)
		defer cancel()
		s, err := store.Login(ctx)
		if err != nil {
			return loginResultMsg{err: err}
		}
		return loginResultMsg{address: s.Address()}
	}
}

func switchCmd(svc *network.Service, target models.ChainID) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), walletTimeout)
		defer cancel()
		return switchResultMsg{target: target, err: svc.SwitchNetwork(ctx, target)}
	}
}

func refreshCmd(svc *network.Service) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), walletTimeout)
		defer cancel()
		return refreshResultMsg(svc.Refresh(ctx))
	}
}

func reportCmd(svc *network.Service) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), walletTimeout)
		defer cancel()
		return reportMsg(svc.Report(ctx))
	}
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return clearStatusMsg{} })
}

// gridColumns returns how many listing cards fit side by side.
func gridColumns(width int) int {
	cols := width / (cardWidth + 2)
	switch {
	case cols < 1:
		return 1
	case cols > 3:
		return 3
	}
	return cols
}

// moveCursor moves through a grid of n items laid out in cols columns.
func moveCursor(cursor, n, cols int, key string) int {
	if n == 0 {
		return 0
	}
	next := cursor
	switch key {
	case "left", "h":
		next--
	case "right", "l":
		next++
	case "up", "k":
		next -= cols
	case "down", "j":
		next += cols
	}
	if next < 0 || next >= n {
		return cursor
	}
	return next
}

// switchTargetFor maps the digit keys to supported networks in id order.
func switchTargetFor(table config.NetworkTable, key string) (models.ChainID, bool) {
	if len(key) != 1 || key[0] < '1' || key[0] > '9' {
		return models.UnknownChain, false
	}
	ids := table.IDs()
	i := int(key[0] - '1')
	if i >= len(ids) {
		return models.UnknownChain, false
	}
	return ids[i], true
}

// supportedNames joins the supported network names in id order.
func supportedNames(table config.NetworkTable) string {
	return strings.Join(table.Names(), " or ")
}

// switchErrorMessage turns a switch error into the alert shown to the user.
func switchErrorMessage(err error) string {
	switch {
	case errors.Is(err, network.ErrSwitchUnsupported):
		return "Network switching not supported. Please switch manually in your wallet."
	case errors.Is(err, network.ErrSwitchFailed):
		return "Failed to switch network. Please try again."
	}
	return fmt.Sprintf("Error: %v", err)
}

// latencySeries converts detection latencies to milliseconds for plotting.
func latencySeries(history []time.Duration) []float64 {
	out := make([]float64, 0, len(history))
	for _, d := range history {
		out = append(out, float64(d)/float64(time.Millisecond))
	}
	return out
}

func networkBadge(info models.NetworkInfo) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(colorFor(info.Color)).
		Padding(0, 1).
		Render(info.Name)
}

func (m *model) updateDetailViewport() {
	if m.cursor >= len(m.listings) {
		m.viewport.SetContent("Listing Not Found")
		return
	}
	m.viewport.SetContent(detailContent(m.listings[m.cursor], m.address != "", m.viewport.Width))
}

func detailContent(l models.Listing, loggedIn bool, width int) string {
	var sections []string

	badge := ""
	if l.Verified {
		badge = infoStyle.Render(" ✓ Verified")
	}
	sections = append(sections,
		lipgloss.NewStyle().Bold(true).Render(l.Title)+badge,
		priceStyle.Render(l.Price),
		subtleStyle.Render(fmt.Sprintf("%s • %s • %s", l.Location, l.Time, l.Category)),
		"",
	)

	desc := l.Description
	if width > 0 {
		desc = lipgloss.NewStyle().Width(width).Render(desc)
	}
	sections = append(sections, desc, "")

	if len(l.Specifications) > 0 {
		sections = append(sections, subtleStyle.Render("Specifications"))
		for _, s := range l.Specifications {
			sections = append(sections, fmt.Sprintf("  %-16s %s", s.Name, s.Value))
		}
		sections = append(sections, "")
	}

	if l.Seller != nil {
		seller := fmt.Sprintf("Seller: %s ★ %s", l.Seller.Name, utils.FormatFloat(l.Seller.Rating, 1))
		if l.Seller.Verified {
			seller += infoStyle.Render(" ✓")
		}
		sections = append(sections, seller, "")
	}

	if loggedIn {
		sections = append(sections, buttonStyle.Render("b: Buy Now")+"  "+subtleStyle.Render("m: Message Seller"))
	} else {
		sections = append(sections, subtleStyle.Render("L: Login to Buy")+"  "+subtleStyle.Render("m: Message Seller"))
	}
	return strings.Join(sections, "\n")
}
