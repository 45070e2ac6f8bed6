package tui

import (
	"time"

	"mktplace/pkg/models"
	"mktplace/pkg/network"
	"mktplace/pkg/storefront"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Version is set by Start()
var Version = "dev"

// --- Messages ---

type clearStatusMsg struct{}
type uiTickMsg time.Time

type loginResultMsg struct {
	address string
	err     error
}

type switchResultMsg struct {
	target models.ChainID
	err    error
}

type refreshResultMsg models.State

type reportMsg []models.ProbeResult

type actionResultMsg struct {
	message string
	err     error
}

// --- Model ---

type model struct {
	store             *storefront.Storefront
	sub               network.Subscriber
	listings          []models.Listing
	cursor            int
	state             models.State
	address           string
	width             int
	height            int
	spinner           spinner.Model
	viewport          viewport.Model
	statusMessage     string
	statusIsErr       bool
	connecting        bool
	showDetail        bool
	showWallet        bool
	showNetworkStatus bool
	showHelp          bool
	latencies         []time.Duration
	probes            []models.ProbeResult
}

func initialModel(store *storefront.Storefront, sub network.Subscriber) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return model{
		store:    store,
		sub:      sub,
		listings: store.Catalog().All(),
		state:    store.Network().State(),
		address:  store.Address(),
		spinner:  s,
		viewport: viewport.New(0, 0),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		listenForNetwork(m.sub),
		m.spinner.Tick,
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return uiTickMsg(t) }),
	)
}
