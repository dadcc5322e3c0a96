package link

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	valid := [][2]State{
		{Disconnected, Scanning},
		{Scanning, Connecting},
		{Scanning, Reconnecting},
		{Connecting, Discovering},
		{Connecting, Reconnecting},
		{Discovering, Ready},
		{Discovering, Reconnecting},
		{Ready, Degraded},
		{Ready, Reconnecting},
		{Degraded, Ready},
		{Degraded, Reconnecting},
		{Reconnecting, Scanning},
	}
	for _, pair := range valid {
		assert.True(t, CanTransition(pair[0], pair[1]), "%s -> %s MUST be allowed", pair[0], pair[1])
	}

	for s := range stateNames {
		assert.True(t, CanTransition(s, Disconnected), "%s -> disconnected MUST be allowed", s)
	}

	invalid := [][2]State{
		{Disconnected, Ready},
		{Scanning, Ready},
		{Ready, Scanning},
		{Reconnecting, Ready},
		{Degraded, Scanning},
		{Disconnected, Reconnecting},
	}
	for _, pair := range invalid {
		assert.False(t, CanTransition(pair[0], pair[1]), "%s -> %s MUST be rejected", pair[0], pair[1])
	}
}

func TestTransitionRejectsInvalidMove(t *testing.T) {
	logger := logrus.New()
	l := New(Config{Name: "x"}, nil, logger)

	var seen []Transition
	unsubscribe := l.Subscribe(func(tr Transition) { seen = append(seen, tr) })

	err := l.transition(Ready, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, Disconnected, l.State(), "state MUST NOT change on rejected transition")
	assert.Empty(t, seen, "subscribers MUST NOT see rejected transitions")

	require.NoError(t, l.transition(Scanning, nil))
	require.Len(t, seen, 1)
	assert.Equal(t, Disconnected, seen[0].From)
	assert.Equal(t, Scanning, seen[0].To)

	require.NoError(t, l.transition(Scanning, nil), "same-state move MUST be a no-op")
	assert.Len(t, seen, 1)

	unsubscribe()
	require.NoError(t, l.transition(Disconnected, nil))
	assert.Len(t, seen, 1, "unsubscribed callback MUST NOT be called")
}

func TestStateText(t *testing.T) {
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "state(42)", State(42).String())
	assert.True(t, Degraded.Usable())
	assert.False(t, Reconnecting.Usable())

	text, err := Reconnecting.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "reconnecting", string(text))
}
