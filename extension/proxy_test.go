package extension

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flowmesh/envelope"
	"github.com/c360/flowmesh/errors"
)

func TestProxyNotifyRunsOnLoop(t *testing.T) {
	env, _ := newTestEnv(t, DefaultExtension{}, &fakeRouter{}, nil)

	proxy, err := NewEnvProxy(env, 1)
	require.NoError(t, err)

	got := make(chan *Env, 1)
	// Notify from a foreign goroutine, the proxy's whole reason to exist.
	go func() {
		_ = proxy.Notify(func(e *Env) { got <- e })
	}()

	select {
	case e := <-got:
		assert.Same(t, env, e)
	case <-time.After(time.Second):
		t.Fatal("notify closure never ran")
	}
	require.NoError(t, proxy.Release())
}

func TestProxyDefersDeinitCompletion(t *testing.T) {
	rec := &ackRecorder{}
	env, rl := newTestEnv(t, DefaultExtension{}, &fakeRouter{}, rec)

	var proxy *EnvProxy
	runOn(t, rl, func() {
		env.Begin(StateConfiguring)
		env.Begin(StateInitializing)
		env.Begin(StateStarting)
		var err error
		proxy, err = NewEnvProxy(env, 1)
		require.NoError(t, err)
		env.Begin(StateStopping)
	})

	// Deinit ack arrives while a proxy is still held: completion defers.
	runOn(t, rl, func() { env.Begin(StateDeinitializing) })
	assert.NotEqual(t, StateDeinitialized, env.State())
	assert.False(t, env.Closed())

	require.NoError(t, proxy.Release())
	require.Eventually(t, func() bool { return env.Closed() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateDeinitialized, env.State())
}

func TestProxyUserCountAllReleasesRequired(t *testing.T) {
	env, rl := newTestEnv(t, DefaultExtension{}, &fakeRouter{}, nil)

	var proxy *EnvProxy
	runOn(t, rl, func() {
		env.Begin(StateConfiguring)
		env.Begin(StateInitializing)
		env.Begin(StateStarting)
		var err error
		proxy, err = NewEnvProxy(env, 2)
		require.NoError(t, err)
		env.Begin(StateStopping)
		env.Begin(StateDeinitializing)
	})

	require.NoError(t, proxy.Release())
	assert.False(t, env.Closed())

	require.NoError(t, proxy.Release())
	require.Eventually(t, func() bool { return env.Closed() }, time.Second, 5*time.Millisecond)

	err := proxy.Release()
	assert.True(t, errors.IsInvalidState(err))
}

func TestProxyNotifyAfterCloseFails(t *testing.T) {
	env, rl := newTestEnv(t, DefaultExtension{}, &fakeRouter{}, nil)

	var proxy *EnvProxy
	runOn(t, rl, func() {
		env.Begin(StateConfiguring)
		env.Begin(StateInitializing)
		env.Begin(StateStarting)
		var err error
		proxy, err = NewEnvProxy(env, 1)
		require.NoError(t, err)
	})

	// Shutdown completes only after the proxy goes; simulate the losing
	// side of the race by finishing teardown first.
	runOn(t, rl, func() {
		env.Begin(StateStopping)
		env.Begin(StateDeinitializing)
	})
	require.NoError(t, proxy.Release())
	require.Eventually(t, func() bool { return env.Closed() }, time.Second, 5*time.Millisecond)

	err := proxy.Notify(func(*Env) {})
	assert.True(t, errors.IsInvalidState(err) || errors.IsClosed(err))
}

func TestNewEnvProxyOnClosedEnvFails(t *testing.T) {
	env, rl := newTestEnv(t, DefaultExtension{}, &fakeRouter{}, nil)

	runOn(t, rl, func() {
		env.Begin(StateConfiguring)
		env.Begin(StateInitializing)
		env.Begin(StateStarting)
		env.Begin(StateStopping)
		env.Begin(StateDeinitializing)
	})
	require.Eventually(t, func() bool { return env.Closed() }, time.Second, 5*time.Millisecond)

	_, err := NewEnvProxy(env, 1)
	assert.True(t, errors.IsClosed(err))
}

func TestProxySendViaNotify(t *testing.T) {
	router := &fakeRouter{}
	env, rl := newTestEnv(t, DefaultExtension{}, router, nil)

	var proxy *EnvProxy
	runOn(t, rl, func() {
		env.Begin(StateConfiguring)
		env.Begin(StateInitializing)
		env.Begin(StateStarting)
		var err error
		proxy, err = NewEnvProxy(env, 1)
		require.NoError(t, err)
	})

	sent := make(chan error, 1)
	go func() {
		sent <- proxy.Notify(func(e *Env) {
			cmd := envelope.NewCmd("off_thread")
			if err := e.SendCmd(cmd, nil); err != nil {
				cmd.Release()
			}
		})
	}()

	require.NoError(t, <-sent)
	require.Eventually(t, func() bool { return router.count() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, proxy.Release())
}
