package models

import (
	"strconv"
	"time"
)

// ChainID identifies the blockchain network a wallet is connected to.
type ChainID uint64

// UnknownChain is reported when no wallet is connected or no probe could
// read the chain id.
const UnknownChain ChainID = 0

// Known reports whether the id carries a detected chain.
func (c ChainID) Known() bool { return c != UnknownChain }

func (c ChainID) String() string {
	if c == UnknownChain {
		return "unknown"
	}
	return strconv.FormatUint(uint64(c), 10)
}

// State is the published view of the wallet's current network.
type State struct {
	CurrentNetwork ChainID `json:"networkId"`
	Supported      bool    `json:"supported"`
	Loading        bool    `json:"loading"`
}

// Warning is true when a concrete chain was detected that is not supported.
func (s State) Warning() bool {
	return s.CurrentNetwork.Known() && !s.Supported
}

// NetworkInfo is the display data for a chain id.
type NetworkInfo struct {
	ChainID   ChainID `json:"chainId"`
	Name      string  `json:"name"`
	Color     string  `json:"color"`
	Supported bool    `json:"supported"`
}

// ProbeResult holds the outcome of a single detection probe.
type ProbeResult struct {
	Probe   string        `json:"probe"`
	ChainID ChainID       `json:"chain_id,omitempty"`
	Error   string        `json:"error,omitempty"`
	Latency time.Duration `json:"latency_ns"`
}

// DetectionReport holds the results of the wallet detection test.
type DetectionReport struct {
	ConfigPath string        `json:"config_path"`
	WalletURL  string        `json:"wallet_url,omitempty"`
	Address    string        `json:"address,omitempty"`
	ConnectErr string        `json:"connect_error,omitempty"`
	Probes     []ProbeResult `json:"probes,omitempty"`
	Detected   ChainID       `json:"detected"`
	Network    NetworkInfo   `json:"network"`
}

// Seller describes who posted a listing.
type Seller struct {
	Name     string  `json:"name"`
	Rating   float64 `json:"rating"`
	Verified bool    `json:"verified"`
}

// Spec is a single labelled specification row of a listing.
type Spec struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Listing is a marketplace item.
type Listing struct {
	ID             int     `json:"id"`
	Title          string  `json:"title"`
	Price          string  `json:"price"`
	Location       string  `json:"location"`
	Time           string  `json:"time"`
	Image          string  `json:"image"`
	Description    string  `json:"description"`
	Verified       bool    `json:"verified"`
	Category       string  `json:"category,omitempty"`
	Seller         *Seller `json:"seller,omitempty"`
	Specifications []Spec  `json:"specifications,omitempty"`
}
