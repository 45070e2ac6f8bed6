package wallet

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"mktplace/pkg/config"
	"mktplace/pkg/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

var ConnectTimeout = 15 * time.Second

// Compile-time checks
var (
	_ Session         = (*RPCSession)(nil)
	_ NetworkRecorder = (*RPCSession)(nil)
	_ Connector       = (*RPCConnector)(nil)
	_ NetworkGetter   = (*RPCConnector)(nil)
	_ ChainIDReader   = (*RPCConnector)(nil)
	_ Provider        = (*RPCProvider)(nil)
	_ ChainNotifier   = (*RPCProvider)(nil)
)

// RPCConnector talks to a wallet over its JSON-RPC endpoint.
type RPCConnector struct {
	client    *rpc.Client
	eth       *ethclient.Client
	switching bool
}

// NewRPCConnector wraps an open client.
func NewRPCConnector(client *rpc.Client, supportsSwitching bool) *RPCConnector {
	return &RPCConnector{
		client:    client,
		eth:       ethclient.NewClient(client),
		switching: supportsSwitching,
	}
}

func (c *RPCConnector) SupportsNetworkSwitching() bool {
	return c.switching
}

// ChainID asks the wallet for eth_chainId.
func (c *RPCConnector) ChainID(ctx context.Context) (*big.Int, error) {
	return c.eth.ChainID(ctx)
}

// GetNetwork reads the network through net_version, which wallets answer
// with a decimal string.
func (c *RPCConnector) GetNetwork(ctx context.Context) (models.ChainID, error) {
	var version string
	if err := c.client.CallContext(ctx, &version, "net_version"); err != nil {
		return models.UnknownChain, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(version), 10, 64)
	if err != nil || v == 0 {
		return models.UnknownChain, fmt.Errorf("%w: net_version %q", ErrInvalidChainID, version)
	}
	return models.ChainID(v), nil
}

// RPCSession is a wallet login backed by RPCConnector.
type RPCSession struct {
	url       string
	address   common.Address
	connector *RPCConnector

	mu      sync.RWMutex
	network models.ChainID
}

// Connect tries each configured wallet URL in order until one returns an
// account.
func Connect(ctx context.Context, cfg config.WalletConfig, logger *zap.Logger) (*RPCSession, error) {
	log := logger.Named("wallet")
	var lastErr error

	for _, url := range cfg.RPCURLs {
		dialCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
		client, err := rpc.DialContext(dialCtx, url)
		if err != nil {
			cancel()
			log.Debug("Wallet dial failed", zap.String("url", url), zap.Error(err))
			lastErr = err
			continue
		}

		var accounts []common.Address
		if err := client.CallContext(dialCtx, &accounts, "eth_requestAccounts"); err != nil {
			client.Close()
			cancel()
			log.Debug("Wallet refused accounts", zap.String("url", url), zap.Error(err))
			lastErr = err
			continue
		}
		if len(accounts) == 0 {
			client.Close()
			cancel()
			lastErr = ErrNoAccounts
			continue
		}

		s := &RPCSession{
			url:       url,
			address:   accounts[0],
			connector: NewRPCConnector(client, cfg.SupportsSwitching),
		}

		var hex string
		if err := client.CallContext(dialCtx, &hex, "eth_chainId"); err == nil {
			if id, err := DecodeChainID(hex); err == nil {
				s.network = id
			}
		}
		cancel()

		log.Info("Wallet connected",
			zap.String("url", url),
			zap.String("address", s.Address()),
			zap.Stringer("network", s.network))
		return s, nil
	}

	if lastErr == nil {
		return nil, ErrNoWalletEndpoint
	}
	return nil, fmt.Errorf("%w: %w", ErrNoWalletEndpoint, lastErr)
}

func (s *RPCSession) Address() string {
	return s.address.Hex()
}

func (s *RPCSession) URL() string {
	return s.url
}

func (s *RPCSession) Connector() Connector {
	return s.connector
}

func (s *RPCSession) Network() (models.ChainID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.network, s.network.Known()
}

// SwitchNetwork asks the wallet to change chains (EIP-3326). The session's
// network is cleared until a detection confirms the new chain.
func (s *RPCSession) SwitchNetwork(ctx context.Context, chainID models.ChainID) error {
	param := map[string]string{"chainId": EncodeChainID(chainID)}
	if err := s.connector.client.CallContext(ctx, nil, "wallet_switchEthereumChain", param); err != nil {
		return err
	}
	// The wallet accepted but has not confirmed the new chain yet.
	s.SetNetwork(models.UnknownChain)
	return nil
}

// SetNetwork records a confirmed chain id as the session's network.
func (s *RPCSession) SetNetwork(chainID models.ChainID) {
	s.mu.Lock()
	s.network = chainID
	s.mu.Unlock()
}

func (s *RPCSession) Close() {
	s.connector.client.Close()
}

// RPCProvider is the direct provider handle used for raw chain id queries and
// chainChanged notifications.
type RPCProvider struct {
	client *rpc.Client
}

// NewProvider dials the provider endpoint.
func NewProvider(ctx context.Context, url string) (*RPCProvider, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return &RPCProvider{client: client}, nil
}

func (p *RPCProvider) CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	return p.client.CallContext(ctx, result, method, args...)
}

// SubscribeChainChanged subscribes to chainChanged over eth_subscribe. Only
// websocket and IPC transports support it.
func (p *RPCProvider) SubscribeChainChanged(ctx context.Context, ch chan<- string) (ethereum.Subscription, error) {
	sub, err := p.client.Subscribe(ctx, "eth", ch, "chainChanged")
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (p *RPCProvider) Close() {
	p.client.Close()
}
