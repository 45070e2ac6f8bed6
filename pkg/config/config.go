package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const ConfigFileName = ".mktplace.json"

// DefaultWalletURL is the local JSON-RPC port desktop wallets commonly expose.
const DefaultWalletURL = "ws://127.0.0.1:1248"

// WalletConfig holds the wallet endpoints used for login and detection.
type WalletConfig struct {
	RPCURLs           []string `json:"rpc_urls" yaml:"rpc_urls"`
	ProviderURL       string   `json:"provider_url,omitempty" yaml:"provider_url,omitempty"`
	SupportsSwitching bool     `json:"supports_switching" yaml:"supports_switching"`
}

// MonitorConfig holds the network monitor timings in milliseconds.
type MonitorConfig struct {
	PollIntervalMS int `json:"poll_interval_ms" yaml:"poll_interval_ms"`
	SettleDelayMS  int `json:"settle_delay_ms" yaml:"settle_delay_ms"`
	ProbeTimeoutMS int `json:"probe_timeout_ms" yaml:"probe_timeout_ms"`
}

func (m MonitorConfig) PollInterval() time.Duration {
	return time.Duration(m.PollIntervalMS) * time.Millisecond
}

func (m MonitorConfig) SettleDelay() time.Duration {
	return time.Duration(m.SettleDelayMS) * time.Millisecond
}

func (m MonitorConfig) ProbeTimeout() time.Duration {
	return time.Duration(m.ProbeTimeoutMS) * time.Millisecond
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level    string `json:"level" yaml:"level"`
	Encoding string `json:"encoding" yaml:"encoding"`
	Output   string `json:"output" yaml:"output"`
}

// ServerConfig holds API server settings.
type ServerConfig struct {
	Port int `json:"port" yaml:"port"`
}

// Config holds application-wide settings.
type Config struct {
	Wallet   WalletConfig    `json:"wallet" yaml:"wallet"`
	Networks []NetworkConfig `json:"networks" yaml:"networks"`
	Monitor  MonitorConfig   `json:"monitor" yaml:"monitor"`
	Logger   LoggerConfig    `json:"logger" yaml:"logger"`
	Server   ServerConfig    `json:"server" yaml:"server"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	networks := make([]NetworkConfig, len(DefaultNetworks))
	copy(networks, DefaultNetworks)
	return Config{
		Wallet: WalletConfig{
			RPCURLs:           []string{DefaultWalletURL},
			SupportsSwitching: true,
		},
		Networks: networks,
		Monitor: MonitorConfig{
			PollIntervalMS: 2000,
			SettleDelayMS:  1000,
			ProbeTimeoutMS: 5000,
		},
		Logger: LoggerConfig{
			Level:    "info",
			Encoding: "console",
			Output:   "stderr",
		},
		Server: ServerConfig{Port: 8080},
	}
}

// NetworkTable returns the supported network mapping of this config.
func (c Config) NetworkTable() NetworkTable {
	return NewNetworkTable(c.Networks)
}

// ProviderURL returns the endpoint used for direct provider queries.
func (c Config) ProviderURL() string {
	if c.Wallet.ProviderURL != "" {
		return c.Wallet.ProviderURL
	}
	if len(c.Wallet.RPCURLs) > 0 {
		return c.Wallet.RPCURLs[0]
	}
	return ""
}

// Validate checks the structure of the configuration.
func (c Config) Validate() error {
	if len(c.Wallet.RPCURLs) == 0 {
		return fmt.Errorf("validation failed: wallet has no RPC URLs")
	}
	if len(c.Networks) == 0 {
		return fmt.Errorf("validation failed: configuration must have at least one network")
	}
	seen := make(map[uint64]bool)
	for i, n := range c.Networks {
		if n.ChainID == 0 {
			return fmt.Errorf("validation failed: network at index %d has no chain id", i)
		}
		if strings.TrimSpace(n.Name) == "" {
			return fmt.Errorf("validation failed: network %d has no name", n.ChainID)
		}
		if seen[n.ChainID] {
			return fmt.Errorf("validation failed: network %d is listed twice", n.ChainID)
		}
		seen[n.ChainID] = true
	}
	if c.Monitor.PollIntervalMS <= 0 {
		return fmt.Errorf("validation failed: poll interval must be positive")
	}
	return nil
}

func GetConfigPath(customPath string) (string, error) {
	if customPath != "" {
		return customPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigFileName), nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func LoadConfigFromFile(path string) (Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, err
	}
	defer func() { _ = f.Close() }()
	if isYAML(path) {
		return LoadYAMLConfig(f)
	}
	return LoadConfig(f)
}

// rawConfig mirrors Config with pointer fields so unset keys keep defaults.
type rawConfig struct {
	Wallet struct {
		RPCURLs           []string `json:"rpc_urls" yaml:"rpc_urls"`
		RPCURL            string   `json:"rpc_url" yaml:"rpc_url"` // Legacy
		ProviderURL       string   `json:"provider_url" yaml:"provider_url"`
		SupportsSwitching *bool    `json:"supports_switching" yaml:"supports_switching"`
	} `json:"wallet" yaml:"wallet"`
	Networks []NetworkConfig `json:"networks" yaml:"networks"`
	Monitor  struct {
		PollIntervalMS *int `json:"poll_interval_ms" yaml:"poll_interval_ms"`
		SettleDelayMS  *int `json:"settle_delay_ms" yaml:"settle_delay_ms"`
		ProbeTimeoutMS *int `json:"probe_timeout_ms" yaml:"probe_timeout_ms"`
	} `json:"monitor" yaml:"monitor"`
	Logger struct {
		Level    *string `json:"level" yaml:"level"`
		Encoding *string `json:"encoding" yaml:"encoding"`
		Output   *string `json:"output" yaml:"output"`
	} `json:"logger" yaml:"logger"`
	Server struct {
		Port *int `json:"port" yaml:"port"`
	} `json:"server" yaml:"server"`
}

func LoadConfig(r io.Reader) (Config, error) {
	var raw rawConfig
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return Config{}, err
	}
	return raw.resolve(), nil
}

func LoadYAMLConfig(r io.Reader) (Config, error) {
	var raw rawConfig
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && err != io.EOF {
		return Config{}, err
	}
	return raw.resolve(), nil
}

func (raw rawConfig) resolve() Config {
	cfg := Default()

	// Migration for single-URL configs
	if len(raw.Wallet.RPCURLs) == 0 && raw.Wallet.RPCURL != "" {
		raw.Wallet.RPCURLs = []string{raw.Wallet.RPCURL}
	}
	if len(raw.Wallet.RPCURLs) > 0 {
		cfg.Wallet.RPCURLs = raw.Wallet.RPCURLs
	}
	cfg.Wallet.ProviderURL = raw.Wallet.ProviderURL
	if raw.Wallet.SupportsSwitching != nil {
		cfg.Wallet.SupportsSwitching = *raw.Wallet.SupportsSwitching
	}
	if len(raw.Networks) > 0 {
		cfg.Networks = raw.Networks
	}
	if raw.Monitor.PollIntervalMS != nil {
		cfg.Monitor.PollIntervalMS = *raw.Monitor.PollIntervalMS
	}
	if raw.Monitor.SettleDelayMS != nil {
		cfg.Monitor.SettleDelayMS = *raw.Monitor.SettleDelayMS
	}
	if raw.Monitor.ProbeTimeoutMS != nil {
		cfg.Monitor.ProbeTimeoutMS = *raw.Monitor.ProbeTimeoutMS
	}
	if raw.Logger.Level != nil {
		cfg.Logger.Level = *raw.Logger.Level
	}
	if raw.Logger.Encoding != nil {
		cfg.Logger.Encoding = *raw.Logger.Encoding
	}
	if raw.Logger.Output != nil {
		cfg.Logger.Output = *raw.Logger.Output
	}
	if raw.Server.Port != nil {
		cfg.Server.Port = *raw.Server.Port
	}
	return cfg
}

func SaveConfig(cfg Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}

	if len(data) == 0 {
		return fmt.Errorf("validation failed: encoded configuration is empty")
	}

	// Create a backup of the existing file
	if _, err := os.Stat(path); err == nil {
		backupPath := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102-150405"))
		input, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read existing config for backup: %w", err)
		}
		if err := os.WriteFile(backupPath, input, 0644); err != nil {
			return fmt.Errorf("failed to write backup config: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func RestoreLastBackup(configPath string) error {
	matches, err := filepath.Glob(configPath + ".*.bak")
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("no backup files found")
	}
	sort.Strings(matches)
	lastBackup := matches[len(matches)-1]

	data, err := os.ReadFile(lastBackup)
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0644)
}
