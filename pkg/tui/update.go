package tui

import (
	"errors"
	"fmt"
	"time"

	"mktplace/pkg/models"
	"mktplace/pkg/network"
	"mktplace/pkg/storefront"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
)

var errLoginToBuy = errors.New("login to buy this item (press L)")

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width - 8
		m.viewport.Height = msg.Height - 8
		if m.showDetail {
			m.updateDetailViewport()
		}

	case network.Event:
		cmds = append(cmds, listenForNetwork(m.sub))
		var cmd tea.Cmd
		m, cmd = m.handleNetworkEvent(msg)
		if cmd != nil {
			cmds = append(cmds, cmd)
		}

	case loginResultMsg:
		m.connecting = false
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("Login failed: %v", msg.err), true)
		} else {
			m.address = msg.address
			m.state = m.store.Network().State()
			m.setStatus("Wallet connected", false)
		}
		if m.showDetail {
			m.updateDetailViewport()
		}
		cmds = append(cmds, clearStatusAfter(3*time.Second))

	case switchResultMsg:
		if msg.err != nil {
			m.setStatus(switchErrorMessage(msg.err), true)
		} else {
			info := m.store.Network().Networks().Info(msg.target)
			m.setStatus(fmt.Sprintf("Switch to %s requested, confirming...", info.Name), false)
		}
		cmds = append(cmds, clearStatusAfter(4*time.Second))

	case refreshResultMsg:
		m.state = models.State(msg)

	case reportMsg:
		m.probes = msg

	case actionResultMsg:
		if msg.err != nil {
			m.setStatus(msg.err.Error(), true)
		} else {
			m.setStatus(msg.message, false)
		}
		cmds = append(cmds, clearStatusAfter(3*time.Second))

	case tea.KeyMsg:
		var cmd tea.Cmd
		m, cmd = m.handleKey(msg)
		if cmd != nil {
			cmds = append(cmds, cmd)
		}

	case uiTickMsg:
		m.latencies = m.store.Network().Latencies()
		cmds = append(cmds, tea.Tick(time.Second, func(t time.Time) tea.Msg { return uiTickMsg(t) }))

	case clearStatusMsg:
		m.statusMessage = ""
		m.statusIsErr = false
	}

	if m.state.Loading || m.connecting {
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// handleNetworkEvent applies a service event. It restarts the spinner when a
// detection starts and schedules the removal of any alert it raised.
func (m model) handleNetworkEvent(ev network.Event) (model, tea.Cmd) {
	switch ev.Type {
	case network.EventStateChanged:
		if st, ok := ev.Data.(models.State); ok {
			wasLoading := m.state.Loading
			m.state = st
			if st.Loading && !wasLoading && !m.connecting {
				return m, m.spinner.Tick
			}
		}
	case network.EventUnsupportedNetwork:
		if info, ok := ev.Data.(models.NetworkInfo); ok {
			m.setStatus(fmt.Sprintf("%s is not supported. Please switch to %s.", info.Name, supportedNames(m.store.Network().Networks())), true)
			return m, clearStatusAfter(4 * time.Second)
		}
	case network.EventSwitchFailed:
		if reason, ok := ev.Data.(string); ok {
			m.setStatus(fmt.Sprintf("Switch failed: %s", reason), true)
			return m, clearStatusAfter(4 * time.Second)
		}
	}
	return m, nil
}

func (m *model) setStatus(text string, isErr bool) {
	m.statusMessage = text
	m.statusIsErr = isErr
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd) {
	key := msg.String()

	if key == "ctrl+c" {
		return m, tea.Quit
	}
	if key == "?" {
		m.showHelp = !m.showHelp
		return m, nil
	}
	if m.showHelp {
		if key == "q" || key == "esc" {
			m.showHelp = false
		}
		return m, nil
	}

	// Switch keys work from every view so the banner is always actionable.
	if target, ok := switchTargetFor(m.store.Network().Networks(), key); ok {
		if m.address == "" {
			m.setStatus("Login first to switch networks", true)
			return m, clearStatusAfter(3 * time.Second)
		}
		if m.state.Loading {
			return m, nil
		}
		return m, switchCmd(m.store.Network(), target)
	}

	switch {
	case m.showWallet:
		return m.handleWalletKey(key)
	case m.showNetworkStatus:
		switch key {
		case "q", "esc", "N":
			m.showNetworkStatus = false
		case "r":
			return m, tea.Batch(refreshCmd(m.store.Network()), reportCmd(m.store.Network()))
		}
		return m, nil
	case m.showDetail:
		return m.handleDetailKey(msg)
	}

	switch key {
	case "q":
		return m, tea.Quit
	case "up", "down", "left", "right", "h", "j", "k", "l":
		m.cursor = moveCursor(m.cursor, len(m.listings), gridColumns(m.width), key)
	case "enter":
		if len(m.listings) > 0 {
			m.showDetail = true
			m.updateDetailViewport()
			m.viewport.YOffset = 0
		}
	case "L":
		if m.address == "" && !m.connecting {
			m.connecting = true
			return m, tea.Batch(loginCmd(m.store), m.spinner.Tick)
		}
	case "w":
		if m.address != "" {
			m.showWallet = true
		}
	case "N":
		m.showNetworkStatus = true
		m.latencies = m.store.Network().Latencies()
		return m, reportCmd(m.store.Network())
	case "r":
		return m, refreshCmd(m.store.Network())
	case "c":
		return m.copyAddress()
	}
	return m, nil
}

func (m model) handleWalletKey(key string) (model, tea.Cmd) {
	switch key {
	case "q", "esc", "w":
		m.showWallet = false
	case "c":
		return m.copyAddress()
	case "o":
		m.store.Logout()
		m.address = ""
		m.state = m.store.Network().State()
		m.showWallet = false
		m.setStatus("Logged out", false)
		return m, clearStatusAfter(2 * time.Second)
	}
	return m, nil
}

func (m model) handleDetailKey(msg tea.KeyMsg) (model, tea.Cmd) {
	if m.cursor >= len(m.listings) {
		m.showDetail = false
		return m, nil
	}
	l := m.listings[m.cursor]

	switch msg.String() {
	case "q", "esc", "backspace":
		m.showDetail = false
		return m, nil
	case "b":
		text, err := m.store.Purchase(l.ID)
		if errors.Is(err, storefront.ErrLoginRequired) {
			err = errLoginToBuy
		}
		return m, func() tea.Msg { return actionResultMsg{message: text, err: err} }
	case "m":
		text, err := m.store.ContactSeller(l.ID)
		return m, func() tea.Msg { return actionResultMsg{message: text, err: err} }
	case "L":
		if m.address == "" && !m.connecting {
			m.connecting = true
			return m, tea.Batch(loginCmd(m.store), m.spinner.Tick)
		}
		return m, nil
	case "o":
		if err := openImage(l.Image); err != nil {
			m.setStatus(fmt.Sprintf("Failed to open image: %v", err), true)
		} else {
			m.setStatus("Opened image in browser", false)
		}
		return m, clearStatusAfter(2 * time.Second)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m model) copyAddress() (model, tea.Cmd) {
	if m.address == "" {
		return m, nil
	}
	if err := clipboard.WriteAll(m.address); err != nil {
		m.setStatus("Failed to copy to clipboard", true)
	} else {
		m.setStatus("Full address copied to clipboard!", false)
	}
	return m, clearStatusAfter(2 * time.Second)
}
