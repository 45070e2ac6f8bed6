package network

import (
	"context"
	"errors"
	"testing"
	"time"

	"mktplace/pkg/models"
	"mktplace/pkg/wallet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockProvider records eth_chainId calls.
type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	ret := m.Called(method)
	if s, ok := ret.Get(0).(string); ok {
		*result.(*string) = s
	}
	return ret.Error(1)
}

func countingProbe(name string, id models.ChainID, err error, calls *int) Probe {
	return Probe{Name: name, Detect: func(context.Context) (models.ChainID, error) {
		*calls++
		return id, err
	}}
}

func detect(t *testing.T, d *Detector) models.ChainID {
	t.Helper()
	id, err := d.Detect(context.Background())
	require.NoError(t, err)
	return id
}

func TestDetect_StopsAtFirstKnown(t *testing.T) {
	var a, b, c int
	d := NewDetector(time.Second, zap.NewNop(),
		countingProbe("a", models.UnknownChain, errors.New("no lookup"), &a),
		countingProbe("b", 8453, nil, &b),
		countingProbe("c", 137, nil, &c),
	)

	assert.Equal(t, models.ChainID(8453), detect(t, d))
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
	assert.Equal(t, 0, c, "probes after the first success must not run")
}

func TestDetect_SkipsUnknownWithoutError(t *testing.T) {
	var a, b int
	d := NewDetector(0, zap.NewNop(),
		countingProbe("a", models.UnknownChain, nil, &a),
		countingProbe("b", 84532, nil, &b),
	)
	assert.Equal(t, models.ChainID(84532), detect(t, d))
	assert.Equal(t, 1, a)
}

func TestDetect_Exhausted(t *testing.T) {
	var a, b int
	d := NewDetector(time.Second, zap.NewNop(),
		countingProbe("a", models.UnknownChain, errors.New("x"), &a),
		countingProbe("b", models.UnknownChain, errNoValue, &b),
	)
	assert.Equal(t, models.UnknownChain, detect(t, d))
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}

func TestDetect_CancelledContext(t *testing.T) {
	var a int
	d := NewDetector(time.Second, zap.NewNop(), countingProbe("a", 8453, nil, &a))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	id, err := d.Detect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.UnknownChain, id)
	assert.Equal(t, 0, a)
}

func TestDetect_CancelledWhileProbing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var b int
	blocking := Probe{Name: "blocking", Detect: func(ctx context.Context) (models.ChainID, error) {
		cancel()
		<-ctx.Done()
		return models.UnknownChain, ctx.Err()
	}}
	d := NewDetector(time.Second, zap.NewNop(), blocking, countingProbe("b", 8453, nil, &b))

	id, err := d.Detect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.UnknownChain, id)
	assert.Equal(t, 0, b)
}

func TestDetect_ProbeTimeout(t *testing.T) {
	slow := Probe{Name: "slow", Detect: func(ctx context.Context) (models.ChainID, error) {
		<-ctx.Done()
		return models.UnknownChain, ctx.Err()
	}}
	var b int
	d := NewDetector(20*time.Millisecond, zap.NewNop(), slow, countingProbe("b", 8453, nil, &b))
	assert.Equal(t, models.ChainID(8453), detect(t, d))
	assert.Equal(t, 1, b)
}

func TestProviderProbe(t *testing.T) {
	p := new(mockProvider)
	p.On("CallContext", "eth_chainId").Return("0x2105", nil).Once()
	id, err := ProviderProbe(p).Detect(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, models.ChainID(8453), id)
	p.AssertExpectations(t)

	p = new(mockProvider)
	p.On("CallContext", "eth_chainId").Return("garbage", nil).Once()
	_, err = ProviderProbe(p).Detect(context.Background())
	assert.ErrorIs(t, err, wallet.ErrInvalidChainID)

	p = new(mockProvider)
	p.On("CallContext", "eth_chainId").Return(nil, errors.New("disconnected")).Once()
	_, err = ProviderProbe(p).Detect(context.Background())
	assert.EqualError(t, err, "disconnected")

	_, err = ProviderProbe(nil).Detect(context.Background())
	assert.ErrorIs(t, err, errNoValue)
}

func TestSessionAndConnectorProbes(t *testing.T) {
	s := &fakeSession{connector: &fakeConnector{}}
	_, err := SessionProbe(s).Detect(context.Background())
	assert.ErrorIs(t, err, errNoValue)
	_, err = ConnectorProbe(s).Detect(context.Background())
	assert.ErrorIs(t, err, errNoValue)

	s.SetNetwork(137)
	id, err := SessionProbe(s).Detect(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, models.ChainID(137), id)

	s = &fakeSession{connector: &getterConnector{id: 84532}}
	id, err = ConnectorProbe(s).Detect(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, models.ChainID(84532), id)
}

func TestReport(t *testing.T) {
	var a, b int
	d := NewDetector(time.Second, zap.NewNop(),
		countingProbe("lookup", models.UnknownChain, wallet.ErrLookupUnsupported, &a),
		countingProbe("session", 8453, nil, &b),
	)
	results := d.Report(context.Background())
	if assert.Len(t, results, 2) {
		assert.Equal(t, "lookup", results[0].Probe)
		assert.Equal(t, wallet.ErrLookupUnsupported.Error(), results[0].Error)
		assert.Equal(t, models.ChainID(8453), results[1].ChainID)
		assert.Empty(t, results[1].Error)
	}
}
