package config

import (
	"fmt"
	"sort"

	"mktplace/pkg/models"
)

// NetworkConfig holds display settings for a supported chain.
type NetworkConfig struct {
	ChainID uint64 `json:"chain_id" yaml:"chain_id"`
	Name    string `json:"name" yaml:"name"`
	Color   string `json:"color" yaml:"color"`
}

// DefaultNetworks are the chains the marketplace accepts out of the box.
var DefaultNetworks = []NetworkConfig{
	{ChainID: 8453, Name: "Base", Color: "blue"},
	{ChainID: 84532, Name: "Base Sepolia", Color: "green"},
}

// NetworkTable maps supported chain ids to their settings. Membership is the
// only thing that makes a chain supported.
type NetworkTable map[models.ChainID]NetworkConfig

// NewNetworkTable builds a table from a list of network settings.
func NewNetworkTable(networks []NetworkConfig) NetworkTable {
	t := make(NetworkTable, len(networks))
	for _, n := range networks {
		t[models.ChainID(n.ChainID)] = n
	}
	return t
}

// IsSupported reports whether id is a key of the table.
func (t NetworkTable) IsSupported(id models.ChainID) bool {
	_, ok := t[id]
	return ok
}

// Info returns display data for id. Unknown ids render gray, unsupported red.
func (t NetworkTable) Info(id models.ChainID) models.NetworkInfo {
	if !id.Known() {
		return models.NetworkInfo{Name: "Unknown", Color: "gray"}
	}
	if n, ok := t[id]; ok {
		return models.NetworkInfo{ChainID: id, Name: n.Name, Color: n.Color, Supported: true}
	}
	return models.NetworkInfo{ChainID: id, Name: fmt.Sprintf("Chain %d", id), Color: "red"}
}

// IDs returns the supported chain ids in ascending order.
func (t NetworkTable) IDs() []models.ChainID {
	ids := make([]models.ChainID, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Names returns the display names of the supported networks, ordered by id.
func (t NetworkTable) Names() []string {
	var names []string
	for _, id := range t.IDs() {
		names = append(names, t[id].Name)
	}
	return names
}
