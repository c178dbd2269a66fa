package injection

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"stsemulator/backend/services/sts-emulator/internal/settings"
)

const (
	// MaxResponseDelay bounds the injected delay.
	MaxResponseDelay = 30 * time.Second
	// MaxJunkLength is the longest junk payload, inclusive.
	MaxJunkLength = 80

	junkAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
)

// ErrIgnoreCountUnset is returned when arming ignore mode with a zero ignore count.
var ErrIgnoreCountUnset = errors.New("injection: ignore count must be set before arming")

// Action is the engine's decision for one request.
type Action string

const (
	ActionProceed Action = "proceed"
	ActionIgnore  Action = "ignore"
	ActionJunk    Action = "junk"
	ActionAbort   Action = "abort"
)

// Verdict is returned by Decide.
type Verdict struct {
	Action Action
	// Delayed is set when the response delay was applied (or started, for ActionAbort).
	Delayed bool
	// Junk holds the unframed junk payload for ActionJunk.
	Junk []byte
	// IgnoreSeq is the client's position within the current ignore run.
	IgnoreSeq int
	// IgnoreCompleted is set on the request that finished the ignore run.
	IgnoreCompleted bool
}

// IgnoreEntry records one dropped request.
type IgnoreEntry struct {
	Time    time.Time `json:"time"`
	Client  string    `json:"client"`
	Request string    `json:"request"`
}

// Params is a copy of the injection parameters.
type Params struct {
	ResponseDelay   time.Duration `json:"responseDelayNs"`
	JunkProbability float64       `json:"junkProbability"`
	IgnoreCount     int           `json:"ignoreCount"`
	IgnoreArmed     bool          `json:"ignoreArmed"`
}

// Source supplies randomness for junk decisions and payloads.
type Source interface {
	Float64() float64
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }
func (globalSource) IntN(n int) int   { return rand.IntN(n) }

// Option customises an Engine.
type Option func(*Engine)

// WithSource replaces the default math/rand/v2 source.
func WithSource(src Source) Option {
	return func(e *Engine) { e.rng = src }
}

// WithClock replaces time.Now for ignore log timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine decides, per request, whether to drop, corrupt or delay the response.
type Engine struct {
	mu              sync.Mutex
	delay           time.Duration
	junkProbability float64
	ignoreCount     int
	armed           bool
	progress        map[string]int
	ignoreLog       []IgnoreEntry

	rngMu sync.Mutex
	rng   Source

	now    func() time.Time
	logger *zap.Logger
}

// NewEngine returns an engine with every injection disabled.
func NewEngine(logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		progress: make(map[string]int),
		rng:      globalSource{},
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decide applies ignore, junk and delay injection in that order. It blocks for the
// configured delay unless ctx is cancelled first.
func (e *Engine) Decide(ctx context.Context, client, requestLine string) Verdict {
	e.mu.Lock()
	if e.armed && e.ignoreCount > 0 {
		e.progress[client]++
		seq := e.progress[client]
		e.ignoreLog = append(e.ignoreLog, IgnoreEntry{Time: e.now(), Client: client, Request: requestLine})
		completed := seq >= e.ignoreCount
		if completed {
			e.armed = false
			e.ignoreLog = nil
			e.progress = make(map[string]int)
		}
		count := e.ignoreCount
		e.mu.Unlock()

		e.logger.Info("ignoring request",
			zap.String("client", client),
			zap.Int("seq", seq),
			zap.String("request", requestLine))
		if completed {
			e.logger.Info("ignore mode complete, resuming normal operation", zap.Int("ignored", count))
		}
		return Verdict{Action: ActionIgnore, IgnoreSeq: seq, IgnoreCompleted: completed}
	}
	probability, delay := e.junkProbability, e.delay
	e.mu.Unlock()

	if probability > 0 && e.roll() < probability {
		junk := e.junk()
		e.logger.Info("sending junk data", zap.String("client", client), zap.Int("length", len(junk)))
		return Verdict{Action: ActionJunk, Junk: junk}
	}

	if delay > 0 {
		e.logger.Info("delaying response", zap.String("client", client), zap.Duration("delay", delay))
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Verdict{Action: ActionAbort, Delayed: true}
		case <-timer.C:
		}
		return Verdict{Action: ActionProceed, Delayed: true}
	}

	return Verdict{Action: ActionProceed}
}

func (e *Engine) roll() float64 {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Float64()
}

func (e *Engine) junk() []byte {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	buf := make([]byte, e.rng.IntN(MaxJunkLength+1))
	for i := range buf {
		buf[i] = junkAlphabet[e.rng.IntN(len(junkAlphabet))]
	}
	return buf
}

// Params returns the current parameters.
func (e *Engine) Params() Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Params{
		ResponseDelay:   e.delay,
		JunkProbability: e.junkProbability,
		IgnoreCount:     e.ignoreCount,
		IgnoreArmed:     e.armed,
	}
}

// SetResponseDelay sets the delay applied to every non-ignored, non-junk response.
func (e *Engine) SetResponseDelay(delay time.Duration) error {
	if err := ValidateResponseDelay(delay); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delay = delay
	return nil
}

// SetJunkProbability sets the probability (0.0-1.0) of answering with junk.
func (e *Engine) SetJunkProbability(p float64) error {
	if err := ValidateJunkProbability(p); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.junkProbability = p
	return nil
}

// SetIgnoreCount sets how many requests per client an armed ignore run drops. Changing
// the count disarms ignore mode.
func (e *Engine) SetIgnoreCount(n int) error {
	if err := ValidateIgnoreCount(n); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ignoreCount = n
	e.armed = false
	return nil
}

// ArmIgnore starts an ignore run. Every client's progress starts from zero.
func (e *Engine) ArmIgnore() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ignoreCount <= 0 {
		return ErrIgnoreCountUnset
	}
	e.armed = true
	e.progress = make(map[string]int)
	e.ignoreLog = nil
	return nil
}

// DisarmIgnore stops an ignore run early.
func (e *Engine) DisarmIgnore() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.armed = false
}

// Reset turns every injection off.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delay = 0
	e.junkProbability = 0
	e.ignoreCount = 0
	e.armed = false
	e.progress = make(map[string]int)
	e.ignoreLog = nil
}

// IgnoreLog returns the requests dropped by the current ignore run.
func (e *Engine) IgnoreLog() []IgnoreEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]IgnoreEntry(nil), e.ignoreLog...)
}

// ValidateResponseDelay checks a delay without applying it.
func ValidateResponseDelay(delay time.Duration) error {
	if delay < 0 || delay > MaxResponseDelay {
		return fmt.Errorf("%w: response delay must be within 0-%s", settings.ErrInvalidSetting, MaxResponseDelay)
	}
	return nil
}

// ValidateJunkProbability checks a probability without applying it.
func ValidateJunkProbability(p float64) error {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return fmt.Errorf("%w: junk probability must be within 0.0-1.0", settings.ErrInvalidSetting)
	}
	return nil
}

// ValidateIgnoreCount checks an ignore count without applying it.
func ValidateIgnoreCount(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: ignore count must not be negative", settings.ErrInvalidSetting)
	}
	return nil
}
