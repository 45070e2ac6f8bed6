package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mktplace/pkg/config"
	"mktplace/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testAddress = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
}

// newWalletServer serves the JSON-RPC calls a browser wallet answers.
func newWalletServer(t *testing.T, chainHex, netVersion string, locked bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "eth_requestAccounts":
			if locked {
				resp["error"] = map[string]interface{}{"code": 4001, "message": "User rejected the request."}
			} else {
				resp["result"] = []string{testAddress}
			}
		case "eth_chainId":
			resp["result"] = chainHex
		case "net_version":
			resp["result"] = netVersion
		default:
			resp["error"] = map[string]interface{}{"code": -32601, "message": "method not found"}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(url string) config.Config {
	cfg := config.Default()
	cfg.Wallet.RPCURLs = []string{url}
	cfg.Monitor.PollIntervalMS = int(time.Hour / time.Millisecond)
	return cfg
}

func TestRunDetectionTest_Supported(t *testing.T) {
	srv := newWalletServer(t, "0x2105", "8453", false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	report := runDetectionTest(ctx, testConfig(srv.URL), "/tmp/cfg.json", zap.NewNop())

	assert.Empty(t, report.ConnectErr)
	assert.Equal(t, srv.URL, report.WalletURL)
	assert.Equal(t, testAddress, report.Address)
	assert.Equal(t, models.ChainID(8453), report.Detected)
	assert.Equal(t, "Base", report.Network.Name)
	assert.True(t, report.Network.Supported)

	require.Len(t, report.Probes, 4)
	for _, p := range report.Probes {
		assert.Empty(t, p.Error, p.Probe)
		assert.Equal(t, models.ChainID(8453), p.ChainID, p.Probe)
	}

	var out bytes.Buffer
	printReport(&out, report)
	assert.Contains(t, out.String(), "Detected network: Base (8453) - supported")
}

func TestRunDetectionTest_UnsupportedNetwork(t *testing.T) {
	srv := newWalletServer(t, "0x89", "137", false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	report := runDetectionTest(ctx, testConfig(srv.URL), "cfg.json", zap.NewNop())

	assert.Equal(t, models.ChainID(137), report.Detected)
	assert.False(t, report.Network.Supported)

	var out bytes.Buffer
	printReport(&out, report)
	assert.Contains(t, out.String(), "NOT SUPPORTED")
}

func TestRunDetectionTest_LoginRejected(t *testing.T) {
	srv := newWalletServer(t, "0x2105", "8453", true)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	report := runDetectionTest(ctx, testConfig(srv.URL), "cfg.json", zap.NewNop())

	assert.Contains(t, report.ConnectErr, "User rejected")
	assert.Empty(t, report.Probes)
	assert.False(t, report.Detected.Known())

	var out bytes.Buffer
	printReport(&out, report)
	assert.Contains(t, out.String(), "Wallet login failed")
}

func TestTUILogConfig(t *testing.T) {
	got := tuiLogConfig(config.LoggerConfig{Level: "debug", Output: "stderr"})
	assert.Equal(t, filepath.Join(os.TempDir(), tuiLogFile), got.Output)
	assert.Equal(t, "debug", got.Level)

	got = tuiLogConfig(config.LoggerConfig{Output: "/var/log/mktplace.log"})
	assert.Equal(t, "/var/log/mktplace.log", got.Output)
}

func TestDialProvider_Empty(t *testing.T) {
	p, closeFn := dialProvider(context.Background(), "", zap.NewNop())
	assert.Nil(t, p)
	closeFn()
}
