package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"mktplace/pkg/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	// ErrLookupUnsupported means the connector offers no chain id lookup.
	ErrLookupUnsupported = errors.New("connector does not expose a chain id")

	// ErrInvalidChainID means a wallet returned a chain id that is not a positive integer.
	ErrInvalidChainID = errors.New("invalid chain id")

	// ErrNoWalletEndpoint means none of the configured wallet URLs answered.
	ErrNoWalletEndpoint = errors.New("no wallet endpoint available")

	// ErrNoAccounts means the wallet connected but exposed no account.
	ErrNoAccounts = errors.New("wallet returned no accounts")
)

// Connector is the wallet-specific adapter behind a session.
type Connector interface {
	SupportsNetworkSwitching() bool
}

// NetworkGetter is implemented by connectors that offer their own network
// lookup method.
type NetworkGetter interface {
	GetNetwork(ctx context.Context) (models.ChainID, error)
}

// ChainIDReader is implemented by connectors backed by an Ethereum client.
// *ethclient.Client satisfies it.
type ChainIDReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// Session is a connected wallet. It is owned by whoever performed the login.
type Session interface {
	Address() string
	Connector() Connector
	// Network returns the chain the session last reported, if any.
	Network() (models.ChainID, bool)
	SwitchNetwork(ctx context.Context, chainID models.ChainID) error
}

// NetworkRecorder is implemented by sessions whose network value is kept
// current by the caller that confirms detections.
type NetworkRecorder interface {
	SetNetwork(chainID models.ChainID)
}

// Provider issues raw JSON-RPC requests to the wallet. *rpc.Client satisfies it.
type Provider interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// ChainNotifier is implemented by providers that push chainChanged events.
// The channel receives hex encoded chain ids.
type ChainNotifier interface {
	SubscribeChainChanged(ctx context.Context, ch chan<- string) (ethereum.Subscription, error)
}

// LookupFunc resolves the chain id through a connector.
type LookupFunc func(ctx context.Context, c Connector) (models.ChainID, error)

// GetNetwork is the default LookupFunc. It reads the chain id from connectors
// that implement ChainIDReader.
func GetNetwork(ctx context.Context, c Connector) (models.ChainID, error) {
	r, ok := c.(ChainIDReader)
	if !ok {
		return models.UnknownChain, ErrLookupUnsupported
	}
	id, err := r.ChainID(ctx)
	if err != nil {
		return models.UnknownChain, err
	}
	if id == nil || id.Sign() <= 0 || !id.IsUint64() {
		return models.UnknownChain, fmt.Errorf("%w: %v", ErrInvalidChainID, id)
	}
	return models.ChainID(id.Uint64()), nil
}

// DecodeChainID decodes a hex chain id such as "0x2105".
func DecodeChainID(hex string) (models.ChainID, error) {
	v, err := hexutil.DecodeUint64(hex)
	if err != nil {
		return models.UnknownChain, fmt.Errorf("%w %q: %v", ErrInvalidChainID, hex, err)
	}
	if v == 0 {
		return models.UnknownChain, fmt.Errorf("%w %q", ErrInvalidChainID, hex)
	}
	return models.ChainID(v), nil
}

// EncodeChainID is the inverse of DecodeChainID.
func EncodeChainID(id models.ChainID) string {
	return hexutil.EncodeUint64(uint64(id))
}
