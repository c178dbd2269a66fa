package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"stsemulator/backend/services/sts-emulator/internal/events"
	"stsemulator/backend/services/sts-emulator/internal/injection"
	"stsemulator/backend/services/sts-emulator/internal/scheduler"
	"stsemulator/backend/services/sts-emulator/internal/settings"
	"stsemulator/backend/services/sts-emulator/internal/stats"
	"stsemulator/backend/services/sts-emulator/internal/tally"
	"stsemulator/backend/services/sts-emulator/internal/tcp"
)

var (
	ErrAlreadyRunning = errors.New("service: server already running")
	ErrNotRunning     = errors.New("service: server not running")
)

// Snapshot is everything the control surface shows at once.
type Snapshot struct {
	Running   bool                    `json:"running"`
	Addr      string                  `json:"addr,omitempty"`
	Config    settings.View           `json:"config"`
	Injection injection.Params        `json:"injection"`
	Channels  map[int]tally.State     `json:"channels"`
	Clients   map[string]tally.State  `json:"clients"`
	Stats     []stats.Record          `json:"stats"`
	IgnoreLog []injection.IgnoreEntry `json:"ignoreLog"`
}

// Emulator is the control facade over the tally emulator: it validates and applies
// control operations and owns the listener lifecycle.
type Emulator struct {
	settings *settings.Settings
	store    *tally.Store
	engine   *injection.Engine
	stats    *stats.Aggregator
	bus      *events.Bus
	logger   *zap.Logger

	mu     sync.Mutex
	server *tcp.Server
	cancel context.CancelFunc
	done   chan struct{}

	// stopping is closed once the last stopped run has drained.
	stopping chan struct{}
}

// NewEmulator builds a stopped emulator around cfg.
func NewEmulator(cfg *settings.Settings, engine *injection.Engine, bus *events.Bus, logger *zap.Logger) *Emulator {
	return &Emulator{
		settings: cfg,
		store:    tally.NewStore(cfg.Channels()),
		engine:   engine,
		stats:    stats.NewAggregator(),
		bus:      bus,
		logger:   logger,
	}
}

// Start binds the configured address, resets statistics and starts the cycler and the
// accept loop. A bind failure is returned and leaves the emulator stopped.
func (e *Emulator) Start(ctx context.Context) error {
	e.mu.Lock()
	stopping := e.stopping
	e.mu.Unlock()
	if stopping != nil {
		select {
		case <-stopping:
		case <-ctx.Done():
			return fmt.Errorf("service: start: %w", ctx.Err())
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runningLocked() {
		return ErrAlreadyRunning
	}

	e.stats.Reset()
	handler := tcp.NewHandler(e.settings, e.store, e.engine, e.stats, e.bus, e.logger)
	srv, err := tcp.Listen(e.settings.Address(), handler, e.logger)
	if err != nil {
		return fmt.Errorf("service: start: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	cycler := scheduler.NewCycler(e.settings, e.store, e.logger)
	done := make(chan struct{})

	go func() {
		defer close(done)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			cycler.Run(runCtx)
		}()

		if err := srv.Serve(runCtx); err != nil {
			e.logger.Error("tally listener failed", zap.Error(err))
		}
		cancel()
		_ = srv.Close()
		wg.Wait()
		srv.Wait()
	}()

	e.server, e.cancel, e.done = srv, cancel, done
	view := e.settings.View()
	e.logger.Info("emulator started",
		zap.String("addr", srv.Addr().String()),
		zap.Stringer("model", view.Model),
		zap.Int("channels", view.Channels))
	return nil
}

// Stop closes the listener, stops the cycler and waits for in-flight connections, which
// are bounded by the read timeout. Pending delayed responses are abandoned. The emulator
// reports stopped as soon as the listener is closed; only Start waits for the drain.
func (e *Emulator) Stop() error {
	e.mu.Lock()
	if e.server == nil {
		e.mu.Unlock()
		return ErrNotRunning
	}
	srv, cancel, done := e.server, e.cancel, e.done
	e.server, e.cancel, e.done = nil, nil, nil
	e.stopping = done
	cancel()
	_ = srv.Close()
	e.mu.Unlock()

	<-done
	e.logger.Info("emulator stopped")
	return nil
}

// Running reports whether the accept loop is live.
func (e *Emulator) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runningLocked()
}

func (e *Emulator) runningLocked() bool {
	if e.server == nil {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

// Addr returns the bound listener address, empty when stopped.
func (e *Emulator) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.runningLocked() {
		return ""
	}
	return e.server.Addr().String()
}

// Config returns the current settings.
func (e *Emulator) Config() settings.View {
	return e.settings.View()
}

// SetPort changes the listen port; it applies on the next start.
func (e *Emulator) SetPort(port int) error {
	return e.settings.SetPort(port)
}

// SetModel switches the emulated switcher. The channel table is resized to the new
// model's channel count.
func (e *Emulator) SetModel(model tally.Model) error {
	if err := e.settings.SetModel(model); err != nil {
		return err
	}
	e.store.Resize(model.Channels())
	return nil
}

// SetCredentials stores the device credentials. Empty values keep the current ones.
func (e *Emulator) SetCredentials(username, password string) {
	e.settings.SetCredentials(username, password)
}

// ChannelStates returns a copy of every channel's state.
func (e *Emulator) ChannelStates() map[int]tally.State {
	return e.store.Channels()
}

// SetChannelState sets one channel. The channel must exist on the active model.
func (e *Emulator) SetChannelState(channel int, state tally.State) error {
	if n := e.settings.Channels(); channel < 1 || channel > n {
		return fmt.Errorf("%w: channel %d outside 1..%d", settings.ErrInvalidSetting, channel, n)
	}
	if !state.Valid() {
		return fmt.Errorf("%w: unknown tally state %d", settings.ErrInvalidSetting, state)
	}
	e.store.SetChannelState(channel, state)
	return nil
}

// ResetChannels sets every channel back to unselected.
func (e *Emulator) ResetChannels() {
	e.store.ResetChannels()
}

// SetAutoCycle toggles channel cycling.
func (e *Emulator) SetAutoCycle(enabled bool) {
	e.settings.SetAutoCycle(enabled)
}

// SetCycleInterval changes the cycle interval from the next wait on.
func (e *Emulator) SetCycleInterval(interval time.Duration) error {
	return e.settings.SetCycleInterval(interval)
}

// SetClientRandom toggles per-client state lookup.
func (e *Emulator) SetClientRandom(enabled bool) {
	e.settings.SetClientRandom(enabled)
}

// SetClientCycle toggles cycling of assigned client states.
func (e *Emulator) SetClientCycle(enabled bool) {
	e.settings.SetClientCycle(enabled)
}

// ClientStates returns a copy of every assigned client state.
func (e *Emulator) ClientStates() map[string]tally.State {
	return e.store.Clients()
}

// SetClientState pins the state reported to one client address.
func (e *Emulator) SetClientState(address string, state tally.State) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("%w: client address is empty", settings.ErrInvalidSetting)
	}
	if !state.Valid() {
		return fmt.Errorf("%w: unknown tally state %d", settings.ErrInvalidSetting, state)
	}
	e.store.SetClientState(address, state)
	return nil
}

// ClearClientStates forgets every assigned client state.
func (e *Emulator) ClearClientStates() {
	e.store.ClearClientStates()
}

// InjectionParams returns the current injection parameters.
func (e *Emulator) InjectionParams() injection.Params {
	return e.engine.Params()
}

// SetResponseDelay sets the injected delay.
func (e *Emulator) SetResponseDelay(delay time.Duration) error {
	return e.engine.SetResponseDelay(delay)
}

// SetJunkProbability sets the junk response probability.
func (e *Emulator) SetJunkProbability(p float64) error {
	return e.engine.SetJunkProbability(p)
}

// SetIgnoreCount sets how many requests per client ignore mode drops. It disarms.
func (e *Emulator) SetIgnoreCount(n int) error {
	return e.engine.SetIgnoreCount(n)
}

// InjectionUpdate carries the injection parameters to change; nil fields are left alone.
type InjectionUpdate struct {
	ResponseDelay   *time.Duration
	JunkProbability *float64
	IgnoreCount     *int
}

// UpdateInjection validates every field of u before applying any of them.
func (e *Emulator) UpdateInjection(u InjectionUpdate) error {
	if u.ResponseDelay != nil {
		if err := injection.ValidateResponseDelay(*u.ResponseDelay); err != nil {
			return err
		}
	}
	if u.JunkProbability != nil {
		if err := injection.ValidateJunkProbability(*u.JunkProbability); err != nil {
			return err
		}
	}
	if u.IgnoreCount != nil {
		if err := injection.ValidateIgnoreCount(*u.IgnoreCount); err != nil {
			return err
		}
	}

	if u.ResponseDelay != nil {
		_ = e.engine.SetResponseDelay(*u.ResponseDelay)
	}
	if u.JunkProbability != nil {
		_ = e.engine.SetJunkProbability(*u.JunkProbability)
	}
	if u.IgnoreCount != nil {
		_ = e.engine.SetIgnoreCount(*u.IgnoreCount)
	}
	return nil
}

// IgnoreLog returns the requests dropped by the current ignore run.
func (e *Emulator) IgnoreLog() []injection.IgnoreEntry {
	return e.engine.IgnoreLog()
}

// ArmIgnore arms ignore mode.
func (e *Emulator) ArmIgnore() error {
	return e.engine.ArmIgnore()
}

// DisarmIgnore disarms ignore mode.
func (e *Emulator) DisarmIgnore() {
	e.engine.DisarmIgnore()
}

// ResetInjection turns every injection off.
func (e *Emulator) ResetInjection() {
	e.engine.Reset()
}

// Stats returns the per-client statistics of the current run.
func (e *Emulator) Stats() []stats.Record {
	return e.stats.Snapshot()
}

// Snapshot returns the full emulator state.
func (e *Emulator) Snapshot() Snapshot {
	e.mu.Lock()
	running := e.runningLocked()
	var addr string
	if running {
		addr = e.server.Addr().String()
	}
	e.mu.Unlock()

	return Snapshot{
		Running:   running,
		Addr:      addr,
		Config:    e.settings.View(),
		Injection: e.engine.Params(),
		Channels:  e.store.Channels(),
		Clients:   e.store.Clients(),
		Stats:     e.stats.Snapshot(),
		IgnoreLog: e.engine.IgnoreLog(),
	}
}
