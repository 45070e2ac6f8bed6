package tui

import (
	"mktplace/pkg/storefront"

	tea "github.com/charmbracelet/bubbletea"
)

func Start(store *storefront.Storefront, version string) error {
	Version = version
	sub := store.Network().Subscribe()
	defer store.Network().Unsubscribe(sub)

	p := tea.NewProgram(
		initialModel(store, sub),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	return err
}
