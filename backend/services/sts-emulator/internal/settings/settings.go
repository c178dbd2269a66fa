package settings

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"stsemulator/backend/services/sts-emulator/internal/tally"
)

// ErrInvalidSetting is returned (wrapped) when a value is rejected. The previous value is
// left untouched.
var ErrInvalidSetting = errors.New("settings: invalid value")

const (
	DefaultHost          = "0.0.0.0"
	DefaultPort          = 8080
	DefaultUsername      = "admin"
	DefaultPassword      = "admin"
	DefaultCycleInterval = 5 * time.Second
)

// Options seeds a Settings value.
type Options struct {
	Host          string
	Port          int
	Model         tally.Model
	Username      string
	Password      string
	AutoCycle     bool
	ClientRandom  bool
	ClientCycle   bool
	CycleInterval time.Duration
}

// DefaultOptions mirrors the factory behaviour of the hardware-less emulator.
func DefaultOptions() Options {
	return Options{
		Host:          DefaultHost,
		Port:          DefaultPort,
		Model:         tally.ModelV60HD,
		Username:      DefaultUsername,
		Password:      DefaultPassword,
		AutoCycle:     true,
		CycleInterval: DefaultCycleInterval,
	}
}

// View is a point-in-time copy of the settings.
type View struct {
	Host          string        `json:"host"`
	Port          int           `json:"port"`
	Model         tally.Model   `json:"model"`
	Channels      int           `json:"channels"`
	Username      string        `json:"username"`
	AutoCycle     bool          `json:"autoCycle"`
	ClientRandom  bool          `json:"clientRandom"`
	ClientCycle   bool          `json:"clientCycle"`
	CycleInterval time.Duration `json:"cycleIntervalNs"`
}

// Settings is the shared, mutable emulator configuration. Handlers and the cycler read it
// on every request or tick, so changes apply immediately.
type Settings struct {
	mu            sync.RWMutex
	host          string
	port          int
	model         tally.Model
	username      string
	password      string
	autoCycle     bool
	clientRandom  bool
	clientCycle   bool
	cycleInterval time.Duration
}

// New validates opts and returns the settings.
func New(opts Options) (*Settings, error) {
	if err := validatePort(opts.Port); err != nil {
		return nil, err
	}
	if !opts.Model.Valid() {
		return nil, fmt.Errorf("%w: unknown model %d", ErrInvalidSetting, opts.Model)
	}
	if err := validateInterval(opts.CycleInterval); err != nil {
		return nil, err
	}
	return &Settings{
		host:          strings.TrimSpace(opts.Host),
		port:          opts.Port,
		model:         opts.Model,
		username:      opts.Username,
		password:      opts.Password,
		autoCycle:     opts.AutoCycle,
		clientRandom:  opts.ClientRandom,
		clientCycle:   opts.ClientCycle,
		cycleInterval: opts.CycleInterval,
	}, nil
}

// View returns a copy of the current settings.
func (s *Settings) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return View{
		Host:          s.host,
		Port:          s.port,
		Model:         s.model,
		Channels:      s.model.Channels(),
		Username:      s.username,
		AutoCycle:     s.autoCycle,
		ClientRandom:  s.clientRandom,
		ClientCycle:   s.clientCycle,
		CycleInterval: s.cycleInterval,
	}
}

// Address returns host:port for the tally listener.
func (s *Settings) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// Port returns the configured listen port. Zero means an OS-assigned port.
func (s *Settings) Port() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.port
}

// SetPort changes the listen port; it applies to the next server start.
func (s *Settings) SetPort(port int) error {
	if err := validatePort(port); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.port = port
	return nil
}

// Model returns the active switcher model.
func (s *Settings) Model() tally.Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// SetModel changes the active switcher model.
func (s *Settings) SetModel(model tally.Model) error {
	if !model.Valid() {
		return fmt.Errorf("%w: unknown model %d", ErrInvalidSetting, model)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = model
	return nil
}

// Channels is the channel count of the active model.
func (s *Settings) Channels() int {
	return s.Model().Channels()
}

// Credentials returns the V-160HD username and password. They are informational only.
func (s *Settings) Credentials() (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username, s.password
}

// SetCredentials updates the V-160HD credentials. Empty values keep the current ones.
func (s *Settings) SetCredentials(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if username = strings.TrimSpace(username); username != "" {
		s.username = username
	}
	if password != "" {
		s.password = password
	}
}

// AutoCycle reports whether channel cycling is on.
func (s *Settings) AutoCycle() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autoCycle
}

// SetAutoCycle turns channel cycling on or off.
func (s *Settings) SetAutoCycle(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoCycle = enabled
}

// CycleInterval returns the time between cycle ticks.
func (s *Settings) CycleInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cycleInterval
}

// SetCycleInterval changes the time between cycle ticks.
func (s *Settings) SetCycleInterval(interval time.Duration) error {
	if err := validateInterval(interval); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycleInterval = interval
	return nil
}

// ClientRandom reports whether per-client states are served instead of channel states.
func (s *Settings) ClientRandom() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientRandom
}

// SetClientRandom switches between channel and per-client mode.
func (s *Settings) SetClientRandom(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientRandom = enabled
}

// ClientCycle reports whether per-client states cycle in client-random mode.
func (s *Settings) ClientCycle() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientCycle
}

// SetClientCycle turns per-client cycling on or off.
func (s *Settings) SetClientCycle(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientCycle = enabled
}

// CycleMode returns the three cycling flags under one lock.
func (s *Settings) CycleMode() (autoCycle, clientRandom, clientCycle bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autoCycle, s.clientRandom, s.clientCycle
}

func validatePort(port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("%w: port %d out of range 0-65535", ErrInvalidSetting, port)
	}
	return nil
}

func validateInterval(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: cycle interval must be positive", ErrInvalidSetting)
	}
	return nil
}
