package service

import (
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"stsemulator/backend/services/sts-emulator/internal/events"
	"stsemulator/backend/services/sts-emulator/internal/injection"
	"stsemulator/backend/services/sts-emulator/internal/settings"
	"stsemulator/backend/services/sts-emulator/internal/tally"
)

func newEmulator(t *testing.T, mutate func(*settings.Options)) *Emulator {
	t.Helper()
	logger := zaptest.NewLogger(t)
	opts := settings.DefaultOptions()
	opts.Host = "127.0.0.1"
	opts.Port = 0
	opts.AutoCycle = false
	if mutate != nil {
		mutate(&opts)
	}
	cfg, err := settings.New(opts)
	require.NoError(t, err)

	bus := events.NewBus()
	em := NewEmulator(cfg, injection.NewEngine(logger), bus, logger)
	t.Cleanup(func() {
		if em.Running() {
			assert.NoError(t, em.Stop())
		}
		bus.Close()
	})
	return em
}

func query(t *testing.T, addr, channelSpec string) string {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err = io.WriteString(conn, "GET /tally/"+channelSpec+"/status HTTP/1.1\r\n\r\n")
	require.NoError(t, err)
	data, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(data)
}

func TestEndToEndScenario(t *testing.T) {
	em := newEmulator(t, nil)
	require.NoError(t, em.SetChannelState(1, tally.OnAir))
	require.NoError(t, em.Start(context.Background()))
	addr := em.Addr()
	require.NotEmpty(t, addr)

	assert.Equal(t, "onair", query(t, addr, "1"))

	require.NoError(t, em.SetChannelState(5, tally.Selected))
	assert.Equal(t, "selected", query(t, addr, "5"))

	em.SetClientRandom(true)
	first := query(t, addr, "1")
	second := query(t, addr, "1")
	third := query(t, addr, "1")
	assert.Equal(t, first, second)
	assert.Equal(t, second, third)
	assert.Contains(t, []string{"unselected", "selected", "onair"}, first)

	stats := em.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, int64(5), stats[0].Normal)
}

func TestStartStopLifecycle(t *testing.T) {
	em := newEmulator(t, nil)
	assert.ErrorIs(t, em.Stop(), ErrNotRunning)
	assert.False(t, em.Running())
	assert.Empty(t, em.Addr())

	require.NoError(t, em.Start(context.Background()))
	assert.True(t, em.Running())
	assert.ErrorIs(t, em.Start(context.Background()), ErrAlreadyRunning)
	addr := em.Addr()
	assert.Equal(t, "unselected", query(t, addr, "2"))
	require.Len(t, em.Stats(), 1)

	require.NoError(t, em.Stop())
	assert.False(t, em.Running())
	assert.Empty(t, em.Addr())
	_, err := net.DialTimeout("tcp", addr, time.Second)
	assert.Error(t, err)

	require.NoError(t, em.Start(context.Background()))
	assert.Empty(t, em.Stats(), "stats are per run")
	assert.Equal(t, "unselected", query(t, em.Addr(), "2"))
}

func TestStopDoesNotBlockReadsWhileDraining(t *testing.T) {
	em := newEmulator(t, nil)
	require.NoError(t, em.Start(context.Background()))

	idle, err := net.Dial("tcp", em.Addr())
	require.NoError(t, err)
	defer idle.Close()
	time.Sleep(100 * time.Millisecond)

	stopped := make(chan error, 1)
	go func() { stopped <- em.Stop() }()
	require.Eventually(t, func() bool { return !em.Running() }, time.Second, 5*time.Millisecond)

	began := time.Now()
	snap := em.Snapshot()
	assert.Less(t, time.Since(began), 500*time.Millisecond)
	assert.False(t, snap.Running)
	assert.Empty(t, em.Addr())
	assert.ErrorIs(t, em.Stop(), ErrNotRunning)

	select {
	case <-stopped:
		t.Fatal("stop returned before the idle connection was released")
	default:
	}

	require.NoError(t, idle.Close())
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("stop did not finish after the idle connection closed")
	}
}

func TestStartWaitsForPreviousDrain(t *testing.T) {
	em := newEmulator(t, nil)
	require.NoError(t, em.Start(context.Background()))

	idle, err := net.Dial("tcp", em.Addr())
	require.NoError(t, err)
	defer idle.Close()
	time.Sleep(100 * time.Millisecond)

	stopped := make(chan error, 1)
	go func() { stopped <- em.Stop() }()
	require.Eventually(t, func() bool { return !em.Running() }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, em.Start(ctx), context.DeadlineExceeded)

	require.NoError(t, idle.Close())
	require.NoError(t, <-stopped)
	require.NoError(t, em.Start(context.Background()))
	assert.True(t, em.Running())
}

func TestStartFailsWhenPortBusy(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	em := newEmulator(t, func(o *settings.Options) { o.Port = port })
	err = em.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), strconv.Itoa(port))
	assert.False(t, em.Running())
}

func TestCancelledParentStopsListener(t *testing.T) {
	em := newEmulator(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, em.Start(ctx))

	cancel()
	assert.Eventually(t, func() bool { return !em.Running() }, 3*time.Second, 20*time.Millisecond)
	assert.NoError(t, em.Stop())
}

func TestAutoCycleAdvancesChannels(t *testing.T) {
	em := newEmulator(t, func(o *settings.Options) {
		o.AutoCycle = true
		o.CycleInterval = 20 * time.Millisecond
	})
	require.NoError(t, em.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return em.ChannelStates()[1] != tally.Unselected
	}, 2*time.Second, 5*time.Millisecond)

	em.SetAutoCycle(false)
	require.NoError(t, em.Stop())
	before := em.ChannelStates()
	for ch := 2; ch <= 8; ch++ {
		assert.Equal(t, before[1], before[ch], "every channel advances together")
	}
}

func TestChannelValidationFollowsModel(t *testing.T) {
	em := newEmulator(t, nil)

	assert.ErrorIs(t, em.SetChannelState(0, tally.OnAir), settings.ErrInvalidSetting)
	assert.ErrorIs(t, em.SetChannelState(9, tally.OnAir), settings.ErrInvalidSetting)
	assert.ErrorIs(t, em.SetChannelState(1, tally.State(7)), settings.ErrInvalidSetting)
	require.NoError(t, em.SetChannelState(8, tally.OnAir))

	require.NoError(t, em.SetModel(tally.ModelV160HD))
	assert.Len(t, em.ChannelStates(), 16)
	require.NoError(t, em.SetChannelState(16, tally.Selected))
	assert.Equal(t, tally.OnAir, em.ChannelStates()[8])

	require.NoError(t, em.SetModel(tally.ModelV60HD))
	assert.Len(t, em.ChannelStates(), 8)
	assert.ErrorIs(t, em.SetChannelState(16, tally.Selected), settings.ErrInvalidSetting)
	assert.ErrorIs(t, em.SetModel(tally.Model(9)), settings.ErrInvalidSetting)

	em.ResetChannels()
	for ch, st := range em.ChannelStates() {
		assert.Equal(t, tally.Unselected, st, "channel %d", ch)
	}
}

func TestClientStateOperations(t *testing.T) {
	em := newEmulator(t, nil)

	assert.ErrorIs(t, em.SetClientState("  ", tally.OnAir), settings.ErrInvalidSetting)
	assert.ErrorIs(t, em.SetClientState("10.0.0.1", tally.State(5)), settings.ErrInvalidSetting)
	require.NoError(t, em.SetClientState("10.0.0.1", tally.OnAir))
	assert.Equal(t, map[string]tally.State{"10.0.0.1": tally.OnAir}, em.ClientStates())

	em.ClearClientStates()
	assert.Empty(t, em.ClientStates())
}

func TestSettingsValidation(t *testing.T) {
	em := newEmulator(t, nil)
	assert.ErrorIs(t, em.SetPort(70000), settings.ErrInvalidSetting)
	assert.ErrorIs(t, em.SetCycleInterval(0), settings.ErrInvalidSetting)
	assert.ErrorIs(t, em.SetResponseDelay(-time.Second), settings.ErrInvalidSetting)
	assert.ErrorIs(t, em.SetJunkProbability(1.5), settings.ErrInvalidSetting)
	assert.ErrorIs(t, em.ArmIgnore(), injection.ErrIgnoreCountUnset)

	require.NoError(t, em.SetPort(9090))
	em.SetCredentials("operator", "")
	view := em.Config()
	assert.Equal(t, 9090, view.Port)
	assert.Equal(t, "operator", view.Username)
}

func TestUpdateInjectionIsAllOrNothing(t *testing.T) {
	em := newEmulator(t, nil)
	delay := 2 * time.Second
	badProbability := 2.0
	count := 4

	err := em.UpdateInjection(InjectionUpdate{ResponseDelay: &delay, JunkProbability: &badProbability, IgnoreCount: &count})
	assert.ErrorIs(t, err, settings.ErrInvalidSetting)
	assert.Equal(t, injection.Params{}, em.InjectionParams())

	probability := 0.25
	require.NoError(t, em.UpdateInjection(InjectionUpdate{ResponseDelay: &delay, JunkProbability: &probability, IgnoreCount: &count}))
	assert.Equal(t, injection.Params{ResponseDelay: delay, JunkProbability: 0.25, IgnoreCount: 4}, em.InjectionParams())

	require.NoError(t, em.UpdateInjection(InjectionUpdate{}))
	assert.Equal(t, 4, em.InjectionParams().IgnoreCount)
}

func TestSnapshot(t *testing.T) {
	em := newEmulator(t, nil)
	require.NoError(t, em.SetChannelState(3, tally.Selected))
	require.NoError(t, em.SetIgnoreCount(2))
	require.NoError(t, em.ArmIgnore())
	require.NoError(t, em.Start(context.Background()))

	assert.Equal(t, "", query(t, em.Addr(), "3"))

	snap := em.Snapshot()
	assert.True(t, snap.Running)
	assert.Equal(t, em.Addr(), snap.Addr)
	assert.Equal(t, tally.Selected, snap.Channels[3])
	assert.True(t, snap.Injection.IgnoreArmed)
	require.Len(t, snap.IgnoreLog, 1)
	assert.Equal(t, "127.0.0.1", snap.IgnoreLog[0].Client)
	require.Len(t, snap.Stats, 1)
	assert.Equal(t, int64(1), snap.Stats[0].Ignored)

	em.DisarmIgnore()
	assert.Equal(t, "selected", query(t, em.Addr(), "3"))
	em.ResetInjection()
	assert.Equal(t, injection.Params{}, em.InjectionParams())
}
