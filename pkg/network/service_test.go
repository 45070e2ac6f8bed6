package network

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mktplace/pkg/config"
	"mktplace/pkg/models"
	"mktplace/pkg/wallet"

	"github.com/ethereum/go-ethereum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type fakeConnector struct {
	switching bool
}

func (c *fakeConnector) SupportsNetworkSwitching() bool { return c.switching }

type getterConnector struct {
	fakeConnector
	id models.ChainID
}

func (c *getterConnector) GetNetwork(context.Context) (models.ChainID, error) { return c.id, nil }

// fakeSession simulates a wallet whose active chain is chain.
type fakeSession struct {
	connector wallet.Connector

	mu        sync.Mutex
	chain     models.ChainID
	hint      models.ChainID
	switchErr error
	switched  []models.ChainID
}

func (s *fakeSession) Address() string { return "0x1111111111111111111111111111111111111111" }
func (s *fakeSession) Connector() wallet.Connector { return s.connector }

func (s *fakeSession) Network() (models.ChainID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hint, s.hint.Known()
}

func (s *fakeSession) SetNetwork(id models.ChainID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hint = id
}

// setChain moves the simulated wallet without telling anyone.
func (s *fakeSession) setChain(id models.ChainID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chain = id
}

func (s *fakeSession) SwitchNetwork(_ context.Context, id models.ChainID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.switched = append(s.switched, id)
	if s.switchErr != nil {
		return s.switchErr
	}
	s.chain = id
	return nil
}

func (s *fakeSession) current() models.ChainID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chain
}

// lookupFor reads the simulated wallet chain through the lookup probe.
func lookupFor(s *fakeSession) wallet.LookupFunc {
	return func(context.Context, wallet.Connector) (models.ChainID, error) {
		return s.current(), nil
	}
}

type fakeSubscription struct {
	errc chan error
	once sync.Once
}

func (s *fakeSubscription) Err() <-chan error { return s.errc }
func (s *fakeSubscription) Unsubscribe() { s.once.Do(func() { close(s.errc) }) }

// fakeNotifier is a provider that pushes chainChanged payloads.
type fakeNotifier struct {
	mu  sync.Mutex
	ch  chan<- string
	sub *fakeSubscription
}

func (n *fakeNotifier) CallContext(context.Context, interface{}, string, ...interface{}) error {
	return errors.New("not implemented")
}

func (n *fakeNotifier) SubscribeChainChanged(_ context.Context, ch chan<- string) (ethereum.Subscription, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ch = ch
	n.sub = &fakeSubscription{errc: make(chan error, 1)}
	return n.sub, nil
}

func (n *fakeNotifier) subscribed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ch != nil
}

func (n *fakeNotifier) emit(hex string) {
	n.mu.Lock()
	ch := n.ch
	n.mu.Unlock()
	ch <- hex
}

func testOptions() Options {
	return Options{
		PollInterval: time.Hour,
		SettleDelay:  50 * time.Millisecond,
		ProbeTimeout: time.Second,
	}
}

func newTestService(provider wallet.Provider) *Service {
	return New(testOptions(), config.NewNetworkTable(config.DefaultNetworks), provider, zap.NewNop())
}

func settledOn(svc *Service, id models.ChainID) func() bool {
	return func() bool {
		st := svc.State()
		return st.CurrentNetwork == id && !st.Loading
	}
}

func TestIdleState(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := newTestService(nil)
	defer svc.Close()

	assert.Equal(t, models.State{}, svc.State())
	assert.Equal(t, models.State{}, svc.Refresh(context.Background()))
	assert.Nil(t, svc.Report(context.Background()))
	assert.ErrorIs(t, svc.SwitchNetwork(context.Background(), 8453), ErrSwitchUnsupported)
	assert.Equal(t, models.State{}, svc.State())
}

func TestSupportedReflectsTable(t *testing.T) {
	defer goleak.VerifyNone(t)

	for _, id := range []models.ChainID{8453, 84532, 1, 137} {
		session := &fakeSession{connector: &fakeConnector{}, chain: id}
		svc := newTestService(nil)
		svc.SetLookup(lookupFor(session))
		svc.SetSession(session)

		require.Eventually(t, settledOn(svc, id), waitFor, tick)
		st := svc.State()
		assert.Equal(t, svc.Networks().IsSupported(id), st.Supported, "chain %d", id)
		assert.Equal(t, !st.Supported, st.Warning())
		svc.Close()
	}
}

func TestUnknownWhenAllProbesFail(t *testing.T) {
	defer goleak.VerifyNone(t)

	session := &fakeSession{connector: &fakeConnector{}}
	svc := newTestService(nil)
	svc.SetSession(session)
	defer svc.Close()

	st := svc.Refresh(context.Background())
	assert.Equal(t, models.UnknownChain, st.CurrentNetwork)
	assert.False(t, st.Supported)
	assert.False(t, st.Warning())
	assert.Equal(t, "Unknown", svc.Info().Name)
}

func TestFallsBackToLaterProbes(t *testing.T) {
	defer goleak.VerifyNone(t)

	session := &fakeSession{connector: &getterConnector{id: 84532}}
	svc := newTestService(nil)
	svc.SetSession(session)
	defer svc.Close()

	require.Eventually(t, settledOn(svc, 84532), waitFor, tick)

	results := svc.Report(context.Background())
	require.Len(t, results, 4)
	assert.Equal(t, []string{"lookup", "session", "connector", "provider"},
		[]string{results[0].Probe, results[1].Probe, results[2].Probe, results[3].Probe})
	assert.Equal(t, wallet.ErrLookupUnsupported.Error(), results[0].Error)
	assert.Equal(t, models.ChainID(84532), results[2].ChainID)
}

func TestSwitchFromUnsupportedNetwork(t *testing.T) {
	defer goleak.VerifyNone(t)

	session := &fakeSession{connector: &fakeConnector{switching: true}, chain: 137}
	svc := newTestService(nil)
	svc.SetLookup(lookupFor(session))
	sub := svc.Subscribe()
	svc.SetSession(session)
	defer svc.Close()

	require.Eventually(t, settledOn(svc, 137), waitFor, tick)
	assert.Equal(t, models.State{CurrentNetwork: 137}, svc.State())
	assert.True(t, svc.State().Warning())

	require.NoError(t, svc.SwitchNetwork(context.Background(), 8453))

	// No optimistic update; only the confirmation cycle writes the state.
	st := svc.State()
	assert.Equal(t, models.ChainID(137), st.CurrentNetwork)
	assert.True(t, st.Loading)

	require.Eventually(t, settledOn(svc, 8453), waitFor, tick)
	assert.Equal(t, models.State{CurrentNetwork: 8453, Supported: true}, svc.State())
	assert.False(t, svc.State().Warning())

	var seen []EventType
	for len(sub) > 0 {
		seen = append(seen, (<-sub).Type)
	}
	assert.Contains(t, seen, EventUnsupportedNetwork)
	assert.Contains(t, seen, EventSwitchRequested)
}

func TestSwitchUnsupportedConnector(t *testing.T) {
	defer goleak.VerifyNone(t)

	session := &fakeSession{connector: &fakeConnector{switching: false}, chain: 137}
	svc := newTestService(nil)
	svc.SetLookup(lookupFor(session))
	svc.SetSession(session)
	defer svc.Close()

	require.Eventually(t, settledOn(svc, 137), waitFor, tick)
	before := svc.State()

	sub := svc.Subscribe()
	err := svc.SwitchNetwork(context.Background(), 8453)
	assert.ErrorIs(t, err, ErrSwitchUnsupported)
	assert.Equal(t, before, svc.State())
	assert.Empty(t, session.switched)

	require.Len(t, sub, 1)
	ev := <-sub
	assert.Equal(t, EventSwitchUnsupported, ev.Type)
	assert.Equal(t, models.ChainID(8453), ev.Data)
}

func TestSwitchRejected(t *testing.T) {
	defer goleak.VerifyNone(t)

	rejected := errors.New("user rejected the request")
	session := &fakeSession{connector: &fakeConnector{switching: true}, chain: 137, switchErr: rejected}
	svc := newTestService(nil)
	svc.SetLookup(lookupFor(session))
	svc.SetSession(session)
	defer svc.Close()

	require.Eventually(t, settledOn(svc, 137), waitFor, tick)

	err := svc.SwitchNetwork(context.Background(), 8453)
	assert.ErrorIs(t, err, ErrSwitchFailed)
	assert.ErrorIs(t, err, rejected)
	assert.Equal(t, models.State{CurrentNetwork: 137}, svc.State())
	assert.Equal(t, []models.ChainID{8453}, session.switched)
}

func TestChainChangedNotification(t *testing.T) {
	defer goleak.VerifyNone(t)

	notifier := &fakeNotifier{}
	session := &fakeSession{connector: &fakeConnector{}, chain: 8453}
	svc := newTestService(notifier)
	svc.SetLookup(lookupFor(session))
	svc.SetSession(session)

	require.Eventually(t, settledOn(svc, 8453), waitFor, tick)
	require.Eventually(t, notifier.subscribed, waitFor, tick)

	// The poll interval is an hour, so only the notification can move the state.
	notifier.emit("0x14a34")
	require.Eventually(t, settledOn(svc, 84532), waitFor, tick)
	assert.True(t, svc.State().Supported)

	notifier.emit("not-hex")
	notifier.emit("0x89")
	require.Eventually(t, settledOn(svc, 137), waitFor, tick)
	assert.False(t, svc.State().Supported)

	svc.Close()
	_, open := <-notifier.sub.errc
	assert.False(t, open, "subscription must be released on teardown")
}

func TestStaleCycleResultDiscarded(t *testing.T) {
	defer goleak.VerifyNone(t)

	notifier := &fakeNotifier{}
	session := &fakeSession{connector: &fakeConnector{}, chain: 8453}

	var mu sync.Mutex
	var gate chan struct{}
	entered := make(chan struct{}, 1)
	lookup := func(ctx context.Context, c wallet.Connector) (models.ChainID, error) {
		mu.Lock()
		g := gate
		mu.Unlock()
		if g == nil {
			return session.current(), nil
		}
		entered <- struct{}{}
		<-g
		return 137, nil
	}

	svc := newTestService(notifier)
	svc.SetLookup(lookup)
	svc.SetSession(session)
	defer svc.Close()

	require.Eventually(t, settledOn(svc, 8453), waitFor, tick)
	require.Eventually(t, notifier.subscribed, waitFor, tick)

	mu.Lock()
	gate = make(chan struct{})
	mu.Unlock()

	done := make(chan models.State)
	go func() { done <- svc.Refresh(context.Background()) }()
	<-entered
	assert.True(t, svc.State().Loading)

	notifier.emit("0x14a34")
	require.Eventually(t, func() bool { return svc.State().CurrentNetwork == 84532 }, waitFor, tick)

	close(gate)
	st := <-done
	assert.Equal(t, models.State{CurrentNetwork: 84532, Supported: true}, st)
}

func TestCancelledRefreshKeepsNetwork(t *testing.T) {
	defer goleak.VerifyNone(t)

	session := &fakeSession{connector: &fakeConnector{}, chain: 137}
	svc := newTestService(nil)
	svc.SetLookup(lookupFor(session))
	svc.SetSession(session)
	defer svc.Close()

	require.Eventually(t, settledOn(svc, 137), waitFor, tick)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st := svc.Refresh(ctx)
	assert.Equal(t, models.State{CurrentNetwork: 137}, st)
	assert.True(t, st.Warning())
	assert.Equal(t, st, svc.State())
}

func TestPollingFollowsWallet(t *testing.T) {
	defer goleak.VerifyNone(t)

	opts := testOptions()
	opts.PollInterval = 20 * time.Millisecond
	session := &fakeSession{connector: &fakeConnector{}, chain: 137}
	svc := New(opts, config.NewNetworkTable(config.DefaultNetworks), nil, zap.NewNop())
	svc.SetLookup(lookupFor(session))
	svc.SetSession(session)
	defer svc.Close()

	require.Eventually(t, settledOn(svc, 137), waitFor, tick)

	// No refresh and no notification: only the ticker can pick this up.
	session.setChain(8453)
	require.Eventually(t, settledOn(svc, 8453), waitFor, tick)
	assert.True(t, svc.State().Supported)
}

func TestSessionNetworkFollowsChainChanges(t *testing.T) {
	defer goleak.VerifyNone(t)

	notifier := &fakeNotifier{}
	session := &fakeSession{connector: &getterConnector{id: 137}, hint: 137}
	svc := newTestService(notifier)
	svc.SetLookup(func(context.Context, wallet.Connector) (models.ChainID, error) {
		return models.UnknownChain, errors.New("lookup unavailable")
	})
	svc.SetSession(session)
	defer svc.Close()

	require.Eventually(t, settledOn(svc, 137), waitFor, tick)
	require.Eventually(t, notifier.subscribed, waitFor, tick)

	notifier.emit("0x2105")
	require.Eventually(t, settledOn(svc, 8453), waitFor, tick)
	require.Eventually(t, func() bool {
		id, _ := session.Network()
		return id == 8453
	}, waitFor, tick)

	// With the lookup still failing, the session value must not fall back
	// to the chain seen at login.
	assert.Equal(t, models.ChainID(8453), svc.Refresh(context.Background()).CurrentNetwork)
}

func TestSwitchWithoutConnector(t *testing.T) {
	defer goleak.VerifyNone(t)

	session := &fakeSession{chain: 137}
	svc := newTestService(nil)
	svc.SetLookup(lookupFor(session))
	svc.SetSession(session)
	defer svc.Close()

	require.Eventually(t, settledOn(svc, 137), waitFor, tick)
	assert.ErrorIs(t, svc.SwitchNetwork(context.Background(), 8453), ErrSwitchUnsupported)
	assert.Empty(t, session.switched)
	assert.Equal(t, models.State{CurrentNetwork: 137}, svc.State())
}

func TestTeardownResetsState(t *testing.T) {
	defer goleak.VerifyNone(t)

	session := &fakeSession{connector: &fakeConnector{switching: true}, chain: 137}
	svc := newTestService(nil)
	svc.SetLookup(lookupFor(session))
	svc.SetSession(session)

	require.Eventually(t, settledOn(svc, 137), waitFor, tick)
	require.NoError(t, svc.SwitchNetwork(context.Background(), 8453))

	// Tear down while the confirmation is still pending.
	svc.SetSession(nil)
	assert.Equal(t, models.State{}, svc.State())

	time.Sleep(3 * testOptions().SettleDelay)
	assert.Equal(t, models.State{}, svc.State())
	assert.Nil(t, svc.Session())

	svc.Close()
	assert.Equal(t, models.State{}, svc.State())
}

func TestRelogin(t *testing.T) {
	defer goleak.VerifyNone(t)

	first := &fakeSession{connector: &fakeConnector{}, hint: 137}
	second := &fakeSession{connector: &fakeConnector{}, hint: 84532}
	svc := newTestService(nil)
	defer svc.Close()

	svc.SetSession(first)
	require.Eventually(t, settledOn(svc, 137), waitFor, tick)

	svc.SetSession(second)
	require.Eventually(t, settledOn(svc, 84532), waitFor, tick)
	assert.Equal(t, second, svc.Session())

	second.SetNetwork(8453)
	assert.Equal(t, models.ChainID(8453), svc.Refresh(context.Background()).CurrentNetwork)
	assert.NotEmpty(t, svc.Latencies())
}

func TestUnsubscribe(t *testing.T) {
	svc := newTestService(nil)
	sub := svc.Subscribe()
	svc.Unsubscribe(sub)

	_, open := <-sub
	assert.False(t, open)

	session := &fakeSession{connector: &fakeConnector{}, hint: 8453}
	svc.SetSession(session)
	require.Eventually(t, settledOn(svc, 8453), waitFor, tick)
	svc.Close()
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.MonitorConfig{PollIntervalMS: 500, SettleDelayMS: 250, ProbeTimeoutMS: 100})
	assert.Equal(t, 500*time.Millisecond, opts.PollInterval)
	assert.Equal(t, 250*time.Millisecond, opts.SettleDelay)
	assert.Equal(t, 100*time.Millisecond, opts.ProbeTimeout)

	assert.Equal(t, DefaultOptions().PollInterval, OptionsFromConfig(config.MonitorConfig{}).PollInterval)
}
