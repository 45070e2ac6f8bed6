package network

import "errors"

var (
	// ErrSwitchUnsupported means there is no session or its connector cannot
	// switch networks programmatically. The user has to switch in the wallet.
	ErrSwitchUnsupported = errors.New("network switching not supported by this wallet")

	// ErrSwitchFailed means the wallet rejected or failed the switch request.
	ErrSwitchFailed = errors.New("failed to switch network")

	// errNoValue is returned by probes whose source is absent.
	errNoValue = errors.New("source not available")
)
