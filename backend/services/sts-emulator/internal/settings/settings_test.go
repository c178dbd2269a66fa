package settings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stsemulator/backend/services/sts-emulator/internal/tally"
)

func TestDefaults(t *testing.T) {
	s, err := New(DefaultOptions())
	require.NoError(t, err)

	view := s.View()
	assert.Equal(t, "0.0.0.0", view.Host)
	assert.Equal(t, 8080, view.Port)
	assert.Equal(t, tally.ModelV60HD, view.Model)
	assert.Equal(t, 8, view.Channels)
	assert.True(t, view.AutoCycle)
	assert.False(t, view.ClientRandom)
	assert.False(t, view.ClientCycle)
	assert.Equal(t, 5*time.Second, view.CycleInterval)
	assert.Equal(t, "0.0.0.0:8080", s.Address())
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.Port = 70000
	_, err := New(opts)
	assert.ErrorIs(t, err, ErrInvalidSetting)

	opts = DefaultOptions()
	opts.CycleInterval = 0
	_, err = New(opts)
	assert.ErrorIs(t, err, ErrInvalidSetting)

	opts = DefaultOptions()
	opts.Model = tally.Model(7)
	_, err = New(opts)
	assert.ErrorIs(t, err, ErrInvalidSetting)
}

func TestRejectedValuesLeavePreviousIntact(t *testing.T) {
	s, err := New(DefaultOptions())
	require.NoError(t, err)

	require.NoError(t, s.SetPort(9000))
	assert.ErrorIs(t, s.SetPort(-1), ErrInvalidSetting)
	assert.ErrorIs(t, s.SetPort(65536), ErrInvalidSetting)
	assert.Equal(t, 9000, s.Port())

	require.NoError(t, s.SetCycleInterval(250*time.Millisecond))
	assert.ErrorIs(t, s.SetCycleInterval(-time.Second), ErrInvalidSetting)
	assert.Equal(t, 250*time.Millisecond, s.CycleInterval())

	require.NoError(t, s.SetModel(tally.ModelV160HD))
	assert.ErrorIs(t, s.SetModel(tally.Model(3)), ErrInvalidSetting)
	assert.Equal(t, tally.ModelV160HD, s.Model())
	assert.Equal(t, 16, s.Channels())
}

func TestCredentialsAndFlags(t *testing.T) {
	s, err := New(DefaultOptions())
	require.NoError(t, err)

	s.SetCredentials("operator", "")
	user, pass := s.Credentials()
	assert.Equal(t, "operator", user)
	assert.Equal(t, "admin", pass)

	s.SetAutoCycle(false)
	s.SetClientRandom(true)
	s.SetClientCycle(true)
	auto, random, clientCycle := s.CycleMode()
	assert.False(t, auto)
	assert.True(t, random)
	assert.True(t, clientCycle)
}
