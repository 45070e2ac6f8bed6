package network

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mktplace/pkg/config"
	"mktplace/pkg/models"
	"mktplace/pkg/wallet"

	"go.uber.org/zap"
)

const maxLatencyHistory = 60

// Options holds the monitor timings.
type Options struct {
	PollInterval time.Duration
	SettleDelay  time.Duration
	ProbeTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		PollInterval: 2 * time.Second,
		SettleDelay:  time.Second,
		ProbeTimeout: 5 * time.Second,
	}
}

func OptionsFromConfig(m config.MonitorConfig) Options {
	opts := DefaultOptions()
	if m.PollIntervalMS > 0 {
		opts.PollInterval = m.PollInterval()
	}
	if m.SettleDelayMS >= 0 {
		opts.SettleDelay = m.SettleDelay()
	}
	if m.ProbeTimeoutMS > 0 {
		opts.ProbeTimeout = m.ProbeTimeout()
	}
	return opts
}

// Service keeps an eventually consistent view of the wallet's chain and
// executes switch requests.
//
// Every detection cycle and chain-change event takes a generation number; a
// result is only applied when it is newer than the last applied one. Every
// session gets an epoch; anything that finishes after its session was torn
// down is dropped.
type Service struct {
	opts     Options
	networks config.NetworkTable
	provider wallet.Provider
	lookup   wallet.LookupFunc
	logger   *zap.Logger

	mu          sync.Mutex
	state       models.State
	session     wallet.Session
	detector    *Detector
	ctx         context.Context
	cancel      context.CancelFunc
	epoch       uint64
	generation  uint64
	applied     uint64
	inflight    int
	timers      map[*time.Timer]struct{}
	latencies   []time.Duration
	subscribers []Subscriber

	wg sync.WaitGroup
}

// New creates a Service. provider may be nil when no direct provider handle
// is available.
func New(opts Options, networks config.NetworkTable, provider wallet.Provider, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		opts:     opts,
		networks: networks,
		provider: provider,
		lookup:   wallet.GetNetwork,
		logger:   logger.Named("network"),
		timers:   make(map[*time.Timer]struct{}),
	}
}

// SetLookup overrides the connector lookup used by the first probe. It takes
// effect for the next session.
func (s *Service) SetLookup(fn wallet.LookupFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookup = fn
}

// Subscribe adds a new subscriber and returns a channel to receive events.
func (s *Service) Subscribe() Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(Subscriber, 100)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber.
func (s *Service) Unsubscribe(ch Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

func (s *Service) notifyLocked(event Event) {
	for _, sub := range s.subscribers {
		select {
		case sub <- event:
		default:
			// Slow subscriber, drop the event.
		}
	}
}

// State returns a snapshot of the current state.
func (s *Service) State() models.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Session returns the session being monitored, or nil.
func (s *Service) Session() wallet.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func (s *Service) Networks() config.NetworkTable {
	return s.networks
}

// Info returns display data for the current network.
func (s *Service) Info() models.NetworkInfo {
	return s.networks.Info(s.State().CurrentNetwork)
}

// Latencies returns the duration of the most recent detection cycles.
func (s *Service) Latencies() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]time.Duration, len(s.latencies))
	copy(cp, s.latencies)
	return cp
}

// SetSession starts monitoring session, replacing the previous one. A nil
// session stops monitoring and resets the state.
func (s *Service) SetSession(session wallet.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session == s.session {
		return
	}

	s.teardownLocked()
	if session == nil {
		s.logger.Info("Wallet session closed, network monitor stopped")
		return
	}

	s.session = session
	s.detector = NewDetector(s.opts.ProbeTimeout, s.logger,
		LookupProbe(s.lookup, session),
		SessionProbe(session),
		ConnectorProbe(session),
		ProviderProbe(s.provider),
	)
	ctx, cancel := context.WithCancel(context.Background())
	s.ctx, s.cancel = ctx, cancel

	s.logger.Info("Network monitor started",
		zap.String("address", session.Address()),
		zap.Duration("poll_interval", s.opts.PollInterval))

	s.wg.Add(1)
	go s.pollLoop(ctx, s.epoch, s.detector)

	if n, ok := s.provider.(wallet.ChainNotifier); ok {
		s.wg.Add(1)
		go s.watchChainChanges(ctx, s.epoch, n)
	}
}

// Close stops monitoring and waits for background work to finish.
func (s *Service) Close() {
	s.SetSession(nil)
	s.wg.Wait()
}

func (s *Service) teardownLocked() {
	s.epoch++
	if s.cancel != nil {
		s.cancel()
	}
	s.ctx, s.cancel = nil, nil
	for t := range s.timers {
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.timers, t)
	}
	s.session = nil
	s.detector = nil
	s.inflight = 0
	s.updateLocked(func(st *models.State) { *st = models.State{} })
}

// Refresh runs one reconciliation cycle now and returns the resulting state.
// Without a session it returns the idle state.
func (s *Service) Refresh(ctx context.Context) models.State {
	s.mu.Lock()
	det, epoch := s.detector, s.epoch
	s.mu.Unlock()
	if det == nil {
		return s.State()
	}
	s.reconcile(ctx, epoch, det)
	return s.State()
}

// Report runs every probe against the current session for diagnostics.
func (s *Service) Report(ctx context.Context) []models.ProbeResult {
	s.mu.Lock()
	det := s.detector
	s.mu.Unlock()
	if det == nil {
		return nil
	}
	return det.Report(ctx)
}

// SwitchNetwork asks the wallet to move to target. The state is only updated
// by the confirmation cycle that runs SettleDelay after the wallet accepted.
func (s *Service) SwitchNetwork(ctx context.Context, target models.ChainID) error {
	s.mu.Lock()
	session := s.session
	if session == nil || !supportsSwitching(session.Connector()) {
		s.notifyLocked(Event{Type: EventSwitchUnsupported, Data: target})
		s.mu.Unlock()
		s.logger.Warn("Network switching not supported, switch manually in the wallet",
			zap.Stringer("target", target),
			zap.Bool("has_session", session != nil))
		return ErrSwitchUnsupported
	}
	epoch, det, monitorCtx := s.epoch, s.detector, s.ctx
	s.inflight++
	s.updateLocked(nil)
	s.notifyLocked(Event{Type: EventSwitchRequested, Data: target})
	s.mu.Unlock()

	if err := session.SwitchNetwork(ctx, target); err != nil {
		s.mu.Lock()
		if epoch == s.epoch {
			s.inflight--
			s.updateLocked(nil)
			s.notifyLocked(Event{Type: EventSwitchFailed, Data: err.Error()})
		}
		s.mu.Unlock()
		s.logger.Error("Error switching network", zap.Stringer("target", target), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrSwitchFailed, err)
	}

	s.logger.Info("Switch accepted by wallet, confirming", zap.Stringer("target", target))

	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return nil
	}
	s.scheduleLocked(s.opts.SettleDelay, func() {
		s.reconcile(monitorCtx, epoch, det)
		s.mu.Lock()
		defer s.mu.Unlock()
		if epoch == s.epoch {
			s.inflight--
			s.updateLocked(nil)
		}
	})
	return nil
}

func supportsSwitching(c wallet.Connector) bool {
	return c != nil && c.SupportsNetworkSwitching()
}

// scheduleLocked runs fn after d unless the timer is stopped by teardown.
func (s *Service) scheduleLocked(d time.Duration, fn func()) {
	var t *time.Timer
	s.wg.Add(1)
	t = time.AfterFunc(d, func() {
		defer s.wg.Done()
		s.mu.Lock()
		_, pending := s.timers[t]
		delete(s.timers, t)
		s.mu.Unlock()
		if !pending {
			return
		}
		fn()
	})
	s.timers[t] = struct{}{}
}

func (s *Service) pollLoop(ctx context.Context, epoch uint64, det *Detector) {
	defer s.wg.Done()

	// Initial check
	s.reconcile(ctx, epoch, det)

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reconcile(ctx, epoch, det)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) watchChainChanges(ctx context.Context, epoch uint64, n wallet.ChainNotifier) {
	defer s.wg.Done()

	ch := make(chan string, 8)
	sub, err := n.SubscribeChainChanged(ctx, ch)
	if err != nil {
		s.logger.Info("Chain change notifications unavailable, relying on polling", zap.Error(err))
		return
	}
	defer sub.Unsubscribe()

	for {
		select {
		case hex := <-ch:
			id, err := wallet.DecodeChainID(hex)
			if err != nil {
				s.logger.Warn("Ignoring malformed chainChanged payload", zap.String("payload", hex), zap.Error(err))
				continue
			}
			s.logger.Debug("Chain changed", zap.Stringer("chain_id", id))
			s.applyChainChange(epoch, id)
		case err := <-sub.Err():
			if err != nil {
				s.logger.Warn("Chain change subscription ended", zap.Error(err))
			}
			return
		case <-ctx.Done():
			return
		}
	}
}

// reconcile runs one detection cycle. A cycle whose context ends before
// detection finishes leaves the current network untouched.
func (s *Service) reconcile(ctx context.Context, epoch uint64, det *Detector) {
	gen, ok := s.beginCycle(epoch)
	if !ok {
		return
	}
	start := time.Now()
	id, err := det.Detect(ctx)
	if err != nil {
		s.logger.Debug("Detection cancelled", zap.Uint64("generation", gen), zap.Error(err))
		s.abortCycle(epoch)
		return
	}
	if session, applied := s.finishCycle(epoch, gen, id, time.Since(start)); applied {
		recordNetwork(session, id)
	}
}

func (s *Service) beginCycle(epoch uint64) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return 0, false
	}
	s.generation++
	s.inflight++
	s.updateLocked(nil)
	return s.generation, true
}

func (s *Service) abortCycle(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return
	}
	s.inflight--
	s.updateLocked(nil)
}

// finishCycle applies a detection result and returns the session it was
// applied to.
func (s *Service) finishCycle(epoch, gen uint64, id models.ChainID, latency time.Duration) (wallet.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return nil, false
	}
	s.inflight--
	s.latencies = append(s.latencies, latency)
	if len(s.latencies) > maxLatencyHistory {
		s.latencies = s.latencies[len(s.latencies)-maxLatencyHistory:]
	}

	if gen <= s.applied {
		s.logger.Debug("Discarding stale detection result", zap.Uint64("generation", gen), zap.Uint64("applied", s.applied))
		s.updateLocked(nil)
		return nil, false
	}
	s.applied = gen
	s.updateLocked(func(st *models.State) { st.CurrentNetwork = id })
	return s.session, true
}

func (s *Service) applyChainChange(epoch uint64, id models.ChainID) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	s.generation++
	s.applied = s.generation
	s.updateLocked(func(st *models.State) { st.CurrentNetwork = id })
	session := s.session
	s.mu.Unlock()

	recordNetwork(session, id)
}

// recordNetwork keeps the session's own network value in step with confirmed
// detections.
func recordNetwork(session wallet.Session, id models.ChainID) {
	if r, ok := session.(wallet.NetworkRecorder); ok && id.Known() {
		r.SetNetwork(id)
	}
}

// updateLocked applies mutate and derives Supported and Loading. It publishes
// the state when it changed.
func (s *Service) updateLocked(mutate func(*models.State)) {
	prev := s.state
	next := prev
	if mutate != nil {
		mutate(&next)
	}
	next.Supported = s.networks.IsSupported(next.CurrentNetwork)
	next.Loading = s.inflight > 0
	s.state = next
	if next == prev {
		return
	}

	s.notifyLocked(Event{Type: EventStateChanged, Data: next})

	if next.CurrentNetwork != prev.CurrentNetwork {
		info := s.networks.Info(next.CurrentNetwork)
		s.logger.Info("Detected network",
			zap.Stringer("chain_id", next.CurrentNetwork),
			zap.String("name", info.Name),
			zap.Bool("supported", next.Supported))
		if next.Warning() {
			s.logger.Warn("Unsupported network, please switch to a supported one",
				zap.Stringer("chain_id", next.CurrentNetwork),
				zap.Strings("supported", s.networks.Names()))
			s.notifyLocked(Event{Type: EventUnsupportedNetwork, Data: info})
		}
	}
}
