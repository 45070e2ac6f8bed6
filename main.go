package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"mktplace/pkg/config"
	"mktplace/pkg/listings"
	"mktplace/pkg/logger"
	"mktplace/pkg/models"
	"mktplace/pkg/network"
	"mktplace/pkg/server"
	"mktplace/pkg/storefront"
	"mktplace/pkg/tui"
	"mktplace/pkg/wallet"

	"go.uber.org/zap"
)

// Version should be set during build
var Version = "dev"

const tuiLogFile = "mktplace.log"

func main() {
	testFlag := flag.Bool("t", false, "Test wallet detection and exit")
	testLongFlag := flag.Bool("test", false, "Test wallet detection and exit")
	jsonFlag := flag.Bool("json", false, "Output test results as JSON")
	configFlag := flag.String("config", "", "Path to configuration file")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	serverFlag := flag.Bool("server", false, "Run in headless server mode")
	portFlag := flag.Int("port", 0, "Port for API server (overrides config)")
	initFlag := flag.Bool("init", false, "Write the default configuration and exit")
	restoreFlag := flag.Bool("restore", false, "Restore the most recent configuration backup and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("mktplace version %s\n", Version)
		os.Exit(0)
	}

	cfgInput := *configFlag
	if cfgInput == "" && len(flag.Args()) > 0 {
		cfgInput = flag.Args()[0]
	}
	path, err := config.GetConfigPath(cfgInput)
	if err != nil {
		fmt.Printf("Error determining config path: %v\n", err)
		os.Exit(1)
	}

	if *initFlag {
		if err := config.SaveConfig(config.Default(), path); err != nil {
			fmt.Printf("Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", path)
		os.Exit(0)
	}

	if *restoreFlag {
		if err := config.RestoreLastBackup(path); err != nil {
			fmt.Printf("Failed to restore config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration restored from the latest backup of %s\n", path)
		os.Exit(0)
	}

	cfg, err := config.LoadConfigFromFile(path)
	if err != nil {
		fmt.Printf("Error loading config from %s: %v\n", path, err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration in %s: %v\n", path, err)
		os.Exit(1)
	}
	if *portFlag > 0 {
		cfg.Server.Port = *portFlag
	}

	interactive := !*serverFlag && !*testFlag && !*testLongFlag
	logCfg := cfg.Logger
	if interactive {
		logCfg = tuiLogConfig(logCfg)
	}
	log, closeLog, err := logger.NewLogger(logCfg)
	if err != nil {
		fmt.Printf("Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *testFlag || *testLongFlag {
		testCtx, cancel := context.WithTimeout(ctx, wallet.ConnectTimeout+10*time.Second)
		report := runDetectionTest(testCtx, cfg, path, log)
		cancel()
		if *jsonFlag {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(report)
		} else {
			printReport(os.Stdout, report)
		}
		if report.ConnectErr != "" || !report.Detected.Known() {
			os.Exit(1)
		}
		return
	}

	provider, closeProvider := dialProvider(ctx, cfg.ProviderURL(), log)
	defer closeProvider()

	svc := network.New(network.OptionsFromConfig(cfg.Monitor), cfg.NetworkTable(), provider, log)
	store := storefront.New(svc, listings.NewCatalog(), walletDialer(cfg.Wallet, log), log)
	defer store.Close()

	srv := server.NewServer(store, log)

	if *serverFlag {
		fmt.Printf("Running in server mode on port %d...\n", cfg.Server.Port)
		if err := srv.Start(ctx, cfg.Server.Port); err != nil {
			log.Error("API server failed", zap.Error(err))
		}
		return
	}

	go func() {
		if err := srv.Start(ctx, cfg.Server.Port); err != nil {
			log.Error("API server failed", zap.Error(err))
		}
	}()

	if err := tui.Start(store, Version); err != nil {
		fmt.Printf("Error running TUI: %v\n", err)
	}
}

// tuiLogConfig moves console logging into a file so it does not draw over
// the terminal UI.
func tuiLogConfig(cfg config.LoggerConfig) config.LoggerConfig {
	switch cfg.Output {
	case "", "stdout", "stderr":
		cfg.Output = filepath.Join(os.TempDir(), tuiLogFile)
	}
	return cfg
}

// dialProvider opens the direct provider handle. Detection still works
// without it, so failures only disable the provider probe.
func dialProvider(ctx context.Context, url string, log *zap.Logger) (wallet.Provider, func()) {
	if url == "" {
		return nil, func() {}
	}
	p, err := wallet.NewProvider(ctx, url)
	if err != nil {
		log.Warn("Provider unavailable, provider probe disabled", zap.String("url", url), zap.Error(err))
		return nil, func() {}
	}
	return p, p.Close
}

func walletDialer(cfg config.WalletConfig, log *zap.Logger) storefront.Dialer {
	return func(ctx context.Context) (wallet.Session, error) {
		s, err := wallet.Connect(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// runDetectionTest logs in with the configured wallet and runs every
// detection probe once.
func runDetectionTest(ctx context.Context, cfg config.Config, path string, log *zap.Logger) models.DetectionReport {
	report := models.DetectionReport{ConfigPath: path}

	session, err := wallet.Connect(ctx, cfg.Wallet, log)
	if err != nil {
		report.ConnectErr = err.Error()
		return report
	}
	defer session.Close()
	report.WalletURL = session.URL()
	report.Address = session.Address()

	provider, closeProvider := dialProvider(ctx, cfg.ProviderURL(), log)
	defer closeProvider()

	svc := network.New(network.OptionsFromConfig(cfg.Monitor), cfg.NetworkTable(), provider, log)
	defer svc.Close()
	svc.SetSession(session)

	report.Probes = svc.Report(ctx)
	report.Detected = svc.Refresh(ctx).CurrentNetwork
	report.Network = svc.Info()
	return report
}

func printReport(w io.Writer, r models.DetectionReport) {
	fmt.Fprintf(w, "Testing wallet detection with config: %s\n", r.ConfigPath)
	if r.ConnectErr != "" {
		fmt.Fprintf(w, "Wallet login failed: %s\n", r.ConnectErr)
		return
	}
	fmt.Fprintf(w, "Wallet: %s (%s)\n", r.WalletURL, r.Address)

	fmt.Fprintln(w, "Probes:")
	for _, p := range r.Probes {
		if p.Error != "" {
			fmt.Fprintf(w, "  %-10s FAIL %s\n", p.Probe, p.Error)
			continue
		}
		fmt.Fprintf(w, "  %-10s OK   %s (%s)\n", p.Probe, p.ChainID, p.Latency.Round(time.Millisecond))
	}

	if !r.Detected.Known() {
		fmt.Fprintln(w, "Detected network: unknown")
		return
	}
	status := "supported"
	if !r.Network.Supported {
		status = "NOT SUPPORTED"
	}
	fmt.Fprintf(w, "Detected network: %s (%s) - %s\n", r.Network.Name, r.Detected, status)
}
