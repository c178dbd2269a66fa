package injection

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stsemulator/backend/services/sts-emulator/internal/settings"
)

type fixedSource struct {
	roll float64
	n    int
}

func (f fixedSource) Float64() float64 { return f.roll }
func (f fixedSource) IntN(n int) int {
	if f.n >= n {
		return n - 1
	}
	return f.n
}

func TestDefaultEngineProceeds(t *testing.T) {
	engine := NewEngine(zap.NewNop())
	verdict := engine.Decide(context.Background(), "10.0.0.1", "GET /tally/1/status HTTP/1.1")
	assert.Equal(t, ActionProceed, verdict.Action)
	assert.False(t, verdict.Delayed)
}

func TestIgnoreRunDropsExactlyN(t *testing.T) {
	engine := NewEngine(zap.NewNop())
	require.NoError(t, engine.SetIgnoreCount(3))
	require.NoError(t, engine.ArmIgnore())

	for i := 1; i <= 3; i++ {
		verdict := engine.Decide(context.Background(), "10.0.0.1", "GET /tally/1/status")
		assert.Equal(t, ActionIgnore, verdict.Action, "request %d", i)
		assert.Equal(t, i, verdict.IgnoreSeq)
		assert.Equal(t, i == 3, verdict.IgnoreCompleted)
		if i < 3 {
			assert.Len(t, engine.IgnoreLog(), i)
		}
	}

	assert.False(t, engine.Params().IgnoreArmed)
	assert.Empty(t, engine.IgnoreLog())
	assert.Equal(t, ActionProceed, engine.Decide(context.Background(), "10.0.0.1", "GET /tally/1/status").Action)
}

func TestIgnorePrecedesJunkAndDelay(t *testing.T) {
	engine := NewEngine(zap.NewNop(), WithSource(fixedSource{roll: 0}))
	require.NoError(t, engine.SetJunkProbability(1))
	require.NoError(t, engine.SetResponseDelay(10 * time.Second))
	require.NoError(t, engine.SetIgnoreCount(1))
	require.NoError(t, engine.ArmIgnore())

	start := time.Now()
	verdict := engine.Decide(context.Background(), "10.0.0.1", "garbage")
	assert.Equal(t, ActionIgnore, verdict.Action)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestArmRequiresCountAndResetsProgress(t *testing.T) {
	engine := NewEngine(zap.NewNop())
	assert.ErrorIs(t, engine.ArmIgnore(), ErrIgnoreCountUnset)

	require.NoError(t, engine.SetIgnoreCount(2))
	require.NoError(t, engine.ArmIgnore())
	engine.Decide(context.Background(), "10.0.0.1", "a")

	// re-arming starts the run over for every client
	require.NoError(t, engine.ArmIgnore())
	assert.Equal(t, 1, engine.Decide(context.Background(), "10.0.0.1", "b").IgnoreSeq)
	assert.Equal(t, 1, engine.Decide(context.Background(), "10.0.0.2", "c").IgnoreSeq)

	// completing one client's run disarms process-wide
	verdict := engine.Decide(context.Background(), "10.0.0.2", "d")
	assert.True(t, verdict.IgnoreCompleted)
	assert.Equal(t, ActionProceed, engine.Decide(context.Background(), "10.0.0.1", "e").Action)
}

func TestSetIgnoreCountDisarms(t *testing.T) {
	engine := NewEngine(zap.NewNop())
	require.NoError(t, engine.SetIgnoreCount(5))
	require.NoError(t, engine.ArmIgnore())
	require.NoError(t, engine.SetIgnoreCount(4))
	assert.False(t, engine.Params().IgnoreArmed)

	require.NoError(t, engine.ArmIgnore())
	engine.DisarmIgnore()
	assert.Equal(t, ActionProceed, engine.Decide(context.Background(), "10.0.0.1", "x").Action)
}

func TestConcurrentIgnoreCountsAreExact(t *testing.T) {
	engine := NewEngine(zap.NewNop())
	require.NoError(t, engine.SetIgnoreCount(50))
	require.NoError(t, engine.ArmIgnore())

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ignored int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if engine.Decide(context.Background(), "10.0.0.9", "r").Action == ActionIgnore {
					mu.Lock()
					ignored++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, ignored)
}

func TestJunkProbabilityZeroNeverJunks(t *testing.T) {
	engine := NewEngine(zap.NewNop(), WithSource(rand.New(rand.NewPCG(1, 2))))
	for i := 0; i < 500; i++ {
		assert.NotEqual(t, ActionJunk, engine.Decide(context.Background(), "10.0.0.1", "r").Action)
	}
}

func TestJunkProbabilityOneAlwaysJunks(t *testing.T) {
	engine := NewEngine(zap.NewNop(), WithSource(rand.New(rand.NewPCG(3, 4))))
	require.NoError(t, engine.SetJunkProbability(1))

	for i := 0; i < 500; i++ {
		verdict := engine.Decide(context.Background(), "10.0.0.1", "r")
		require.Equal(t, ActionJunk, verdict.Action)
		assert.LessOrEqual(t, len(verdict.Junk), MaxJunkLength)
		for _, b := range verdict.Junk {
			assert.True(t, strings.IndexByte(junkAlphabet, b) >= 0, "unexpected byte %q", b)
		}
	}
}

func TestJunkLengthBounds(t *testing.T) {
	engine := NewEngine(zap.NewNop(), WithSource(fixedSource{roll: 0, n: 1000}))
	require.NoError(t, engine.SetJunkProbability(0.5))
	assert.Len(t, engine.Decide(context.Background(), "c", "r").Junk, MaxJunkLength)

	engine = NewEngine(zap.NewNop(), WithSource(fixedSource{roll: 0, n: 0}))
	require.NoError(t, engine.SetJunkProbability(0.5))
	verdict := engine.Decide(context.Background(), "c", "r")
	assert.Equal(t, ActionJunk, verdict.Action)
	assert.Empty(t, verdict.Junk)
}

func TestDelayWaitsConfiguredTime(t *testing.T) {
	engine := NewEngine(zap.NewNop())
	require.NoError(t, engine.SetResponseDelay(60*time.Millisecond))

	start := time.Now()
	verdict := engine.Decide(context.Background(), "10.0.0.1", "r")
	assert.Equal(t, ActionProceed, verdict.Action)
	assert.True(t, verdict.Delayed)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestDelayAbortsOnCancel(t *testing.T) {
	engine := NewEngine(zap.NewNop())
	require.NoError(t, engine.SetResponseDelay(10*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	start := time.Now()
	verdict := engine.Decide(ctx, "10.0.0.1", "r")
	assert.Equal(t, ActionAbort, verdict.Action)
	assert.True(t, verdict.Delayed)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestParameterValidation(t *testing.T) {
	engine := NewEngine(zap.NewNop())
	require.NoError(t, engine.SetResponseDelay(250*time.Millisecond))
	require.NoError(t, engine.SetJunkProbability(0.3))
	require.NoError(t, engine.SetIgnoreCount(2))

	assert.ErrorIs(t, engine.SetResponseDelay(-time.Millisecond), settings.ErrInvalidSetting)
	assert.ErrorIs(t, engine.SetResponseDelay(31*time.Second), settings.ErrInvalidSetting)
	assert.ErrorIs(t, engine.SetJunkProbability(1.5), settings.ErrInvalidSetting)
	assert.ErrorIs(t, engine.SetJunkProbability(-0.1), settings.ErrInvalidSetting)
	assert.ErrorIs(t, engine.SetIgnoreCount(-1), settings.ErrInvalidSetting)

	params := engine.Params()
	assert.Equal(t, 250*time.Millisecond, params.ResponseDelay)
	assert.InDelta(t, 0.3, params.JunkProbability, 1e-9)
	assert.Equal(t, 2, params.IgnoreCount)

	engine.Reset()
	assert.Equal(t, Params{}, engine.Params())
}
