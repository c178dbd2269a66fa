package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Mode says what a tick advanced.
type Mode string

const (
	ModeIdle     Mode = "idle"
	ModeChannels Mode = "channels"
	ModeClients  Mode = "clients"
)

// Flags is the live configuration read on every tick.
type Flags interface {
	CycleMode() (autoCycle, clientRandom, clientCycle bool)
	CycleInterval() time.Duration
}

// Advancer moves tally states one step along the cycle.
type Advancer interface {
	AdvanceChannels() int
	AdvanceClients() int
}

// Cycler periodically advances channel or client tally states.
type Cycler struct {
	flags  Flags
	store  Advancer
	logger *zap.Logger
}

// NewCycler builds a cycler.
func NewCycler(flags Flags, store Advancer, logger *zap.Logger) *Cycler {
	return &Cycler{flags: flags, store: store, logger: logger}
}

// Run ticks until ctx is cancelled. The interval is re-read before every wait.
func (c *Cycler) Run(ctx context.Context) {
	for {
		timer := time.NewTimer(c.flags.CycleInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			c.Tick()
		}
	}
}

// Tick performs one cycle step according to the current flags.
func (c *Cycler) Tick() Mode {
	autoCycle, clientRandom, clientCycle := c.flags.CycleMode()
	switch {
	case autoCycle && !clientRandom:
		n := c.store.AdvanceChannels()
		c.logger.Debug("cycled channel states", zap.Int("channels", n))
		return ModeChannels
	case clientRandom && clientCycle:
		n := c.store.AdvanceClients()
		c.logger.Debug("cycled client states", zap.Int("clients", n))
		return ModeClients
	default:
		return ModeIdle
	}
}
