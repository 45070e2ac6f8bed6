package network

import (
	"context"
	"errors"
	"time"

	"mktplace/pkg/models"
	"mktplace/pkg/wallet"

	"go.uber.org/zap"
)

// Probe is one strategy for reading the wallet's chain id. A probe returns
// UnknownChain (with or without an error) when it has no answer.
type Probe struct {
	Name   string
	Detect func(ctx context.Context) (models.ChainID, error)
}

// LookupProbe asks the wallet SDK lookup for the connector's network.
func LookupProbe(lookup wallet.LookupFunc, s wallet.Session) Probe {
	return Probe{Name: "lookup", Detect: func(ctx context.Context) (models.ChainID, error) {
		return lookup(ctx, s.Connector())
	}}
}

// SessionProbe returns the network the session already knows about.
func SessionProbe(s wallet.Session) Probe {
	return Probe{Name: "session", Detect: func(context.Context) (models.ChainID, error) {
		if id, ok := s.Network(); ok {
			return id, nil
		}
		return models.UnknownChain, errNoValue
	}}
}

// ConnectorProbe calls the connector's own network getter, when it has one.
func ConnectorProbe(s wallet.Session) Probe {
	return Probe{Name: "connector", Detect: func(ctx context.Context) (models.ChainID, error) {
		getter, ok := s.Connector().(wallet.NetworkGetter)
		if !ok {
			return models.UnknownChain, errNoValue
		}
		return getter.GetNetwork(ctx)
	}}
}

// ProviderProbe queries eth_chainId on the provider directly.
func ProviderProbe(p wallet.Provider) Probe {
	return Probe{Name: "provider", Detect: func(ctx context.Context) (models.ChainID, error) {
		if p == nil {
			return models.UnknownChain, errNoValue
		}
		var hex string
		if err := p.CallContext(ctx, &hex, "eth_chainId"); err != nil {
			return models.UnknownChain, err
		}
		return wallet.DecodeChainID(hex)
	}}
}

// Detector runs probes in priority order.
type Detector struct {
	probes  []Probe
	timeout time.Duration
	logger  *zap.Logger
}

func NewDetector(timeout time.Duration, logger *zap.Logger, probes ...Probe) *Detector {
	return &Detector{probes: probes, timeout: timeout, logger: logger}
}

// Detect returns the first known chain id, or UnknownChain when every probe
// fails. Probes after the first success are never called. When ctx ends
// before a probe answers, Detect returns ctx's error instead of a result.
func (d *Detector) Detect(ctx context.Context) (models.ChainID, error) {
	for _, p := range d.probes {
		if err := ctx.Err(); err != nil {
			return models.UnknownChain, err
		}
		id, _, err := d.run(ctx, p)
		if err != nil {
			if !errors.Is(err, errNoValue) {
				d.logger.Debug("Probe failed, trying next", zap.String("probe", p.Name), zap.Error(err))
			}
			continue
		}
		if id.Known() {
			return id, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return models.UnknownChain, err
	}
	return models.UnknownChain, nil
}

// Report runs every probe and returns each outcome.
func (d *Detector) Report(ctx context.Context) []models.ProbeResult {
	results := make([]models.ProbeResult, 0, len(d.probes))
	for _, p := range d.probes {
		id, latency, err := d.run(ctx, p)
		res := models.ProbeResult{Probe: p.Name, ChainID: id, Latency: latency}
		if err != nil {
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results
}

func (d *Detector) run(ctx context.Context, p Probe) (models.ChainID, time.Duration, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	start := time.Now()
	id, err := p.Detect(ctx)
	if err != nil {
		return models.UnknownChain, time.Since(start), err
	}
	return id, time.Since(start), nil
}
