package extension

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flowmesh/envelope"
	"github.com/c360/flowmesh/errors"
)

func TestCorrelatorSingleModeDropsNonFinal(t *testing.T) {
	c := NewCorrelator()

	cmd := envelope.NewCmd("test")
	defer cmd.Release()
	cmd.SetSrc(envelope.Loc{Extension: "origin"})
	id := cmd.EnsureCorrelationID()

	var fired int
	require.NoError(t, c.Register(id, func(_ *Env, result *envelope.Envelope, err error) {
		fired++
		require.NoError(t, err)
		assert.True(t, result.IsFinal())
		result.Release()
	}, ResultModeSingle, cmd.Src()))

	interim, err := envelope.NewCmdResult(envelope.StatusOK, cmd)
	require.NoError(t, err)
	require.NoError(t, interim.SetFinal(false))
	c.Deliver(nil, interim)
	assert.Zero(t, fired)
	assert.Equal(t, 1, c.Len())

	final, err := envelope.NewCmdResult(envelope.StatusOK, cmd)
	require.NoError(t, err)
	c.Deliver(nil, final)
	assert.Equal(t, 1, fired)
	assert.Zero(t, c.Len())
}

func TestCorrelatorMultiModeSurfacesEveryResult(t *testing.T) {
	c := NewCorrelator()

	cmd := envelope.NewCmd("stream")
	defer cmd.Release()
	cmd.SetSrc(envelope.Loc{Extension: "origin"})
	id := cmd.EnsureCorrelationID()

	var seen []bool
	require.NoError(t, c.Register(id, func(_ *Env, result *envelope.Envelope, err error) {
		require.NoError(t, err)
		seen = append(seen, result.IsFinal())
		result.Release()
	}, ResultModeMulti, cmd.Src()))

	for i := 0; i < 3; i++ {
		r, err := envelope.NewCmdResult(envelope.StatusOK, cmd)
		require.NoError(t, err)
		require.NoError(t, r.SetFinal(false))
		c.Deliver(nil, r)
	}
	assert.Equal(t, 1, c.Len())

	final, err := envelope.NewCmdResult(envelope.StatusOK, cmd)
	require.NoError(t, err)
	c.Deliver(nil, final)

	assert.Equal(t, []bool{false, false, false, true}, seen)
	assert.Zero(t, c.Len())
}

func TestCorrelatorAtMostOneFinalDelivered(t *testing.T) {
	c := NewCorrelator()

	cmd := envelope.NewCmd("test")
	defer cmd.Release()
	cmd.SetSrc(envelope.Loc{Extension: "origin"})
	id := cmd.EnsureCorrelationID()

	var finals int
	require.NoError(t, c.Register(id, func(_ *Env, result *envelope.Envelope, _ error) {
		if result.IsFinal() {
			finals++
		}
		result.Release()
	}, ResultModeSingle, cmd.Src()))

	for i := 0; i < 3; i++ {
		r, err := envelope.NewCmdResult(envelope.StatusOK, cmd)
		require.NoError(t, err)
		c.Deliver(nil, r)
	}
	assert.Equal(t, 1, finals)
}

func TestCorrelatorRemoveSkipsHandler(t *testing.T) {
	c := NewCorrelator()

	cmd := envelope.NewCmd("test")
	defer cmd.Release()
	cmd.SetSrc(envelope.Loc{Extension: "origin"})
	id := cmd.EnsureCorrelationID()

	fired := false
	require.NoError(t, c.Register(id, func(_ *Env, _ *envelope.Envelope, _ error) {
		fired = true
	}, ResultModeSingle, cmd.Src()))
	c.Remove(id)

	r, err := envelope.NewCmdResult(envelope.StatusOK, cmd)
	require.NoError(t, err)
	c.Deliver(nil, r)

	assert.False(t, fired)
}

func TestCorrelatorCancelAllFiresClosed(t *testing.T) {
	c := NewCorrelator()

	for i := 0; i < 3; i++ {
		cmd := envelope.NewCmd("test")
		cmd.SetSrc(envelope.Loc{Extension: "origin"})
		id := cmd.EnsureCorrelationID()
		require.NoError(t, c.Register(id, func(_ *Env, result *envelope.Envelope, err error) {
			assert.Nil(t, result)
			assert.True(t, errors.IsClosed(err))
		}, ResultModeSingle, cmd.Src()))
		cmd.Release()
	}

	c.CancelAll(nil)
	assert.Zero(t, c.Len())
}

func TestCorrelatorRejectsDuplicateIDs(t *testing.T) {
	c := NewCorrelator()
	h := func(_ *Env, _ *envelope.Envelope, _ error) {}

	require.NoError(t, c.Register("id-1", h, ResultModeSingle, envelope.Loc{}))
	err := c.Register("id-1", h, ResultModeMulti, envelope.Loc{})
	assert.True(t, errors.IsInvalidState(err))
}
