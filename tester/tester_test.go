package tester

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flowmesh/addon"
	"github.com/c360/flowmesh/envelope"
	"github.com/c360/flowmesh/errors"
	"github.com/c360/flowmesh/extension"
	"github.com/c360/flowmesh/graph"
)

// greeterExtension answers hello_world with the canonical detail.
type greeterExtension struct {
	extension.DefaultExtension
}

func (g *greeterExtension) OnCmd(env *extension.Env, cmd *envelope.Envelope) {
	if cmd.Name() != "hello_world" {
		cmd.Release()
		return
	}
	res, err := envelope.NewCmdResult(envelope.StatusOK, cmd)
	if err == nil {
		_ = res.SetProperty("detail", envelope.String("hello world, too"))
		if err := env.ReturnResult(res); err != nil {
			res.Release()
		}
	}
	cmd.Release()
}

// helloTester sends hello_world and judges the reply.
type helloTester struct {
	DefaultTester
}

func (h *helloTester) OnStart(env *EnvTester) {
	cmd := envelope.NewCmd("hello_world")
	_ = env.SendCmd(cmd, func(env *EnvTester, res *envelope.Envelope, err error) {
		defer func() {
			if res != nil {
				res.Release()
			}
		}()
		if err != nil {
			env.StopTest(err)
			return
		}
		detail, derr := res.GetPropertyString("detail")
		if derr != nil || detail != "hello world, too" {
			env.StopTest(errors.Newf(errors.CodeGeneric, "unexpected detail %q", detail))
			return
		}
		env.StopTest(nil)
	})
}

func TestHarnessHelloWorld(t *testing.T) {
	reg := addon.NewRegistry()
	require.NoError(t, reg.RegisterExtension("greeter", func(string) extension.Extension {
		return &greeterExtension{}
	}))

	h := NewHarness(&helloTester{}, reg)
	require.NoError(t, h.SetTestModeSingle("greeter", ""))
	assert.NoError(t, h.Run())
}

// failingTester reports a failing verdict immediately.
type failingTester struct {
	DefaultTester
}

func (f *failingTester) OnStart(env *EnvTester) {
	env.StopTest(errors.New(errors.CodeGeneric, "deliberate failure"))
}

func TestHarnessPropagatesFailure(t *testing.T) {
	reg := addon.NewRegistry()
	require.NoError(t, reg.RegisterExtension("greeter", func(string) extension.Extension {
		return &greeterExtension{}
	}))

	h := NewHarness(&failingTester{}, reg)
	require.NoError(t, h.SetTestModeSingle("greeter", ""))

	err := h.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deliberate failure")
}

// pingerExtension emits a cmd toward whatever its graph wires it to as
// soon as it starts, and answers any later cmd with OK only if that
// ping's result carried the detail "pong".
type pingerExtension struct {
	extension.DefaultExtension
	ackDetail string
}

func (p *pingerExtension) OnStart(env *extension.Env) {
	cmd := envelope.NewCmd("ping")
	err := env.SendCmd(cmd, func(_ *extension.Env, res *envelope.Envelope, err error) {
		if err == nil {
			p.ackDetail, _ = res.GetPropertyString("detail")
			res.Release()
		}
	})
	if err != nil {
		cmd.Release()
	}
	_ = env.OnStartDone()
}

func (p *pingerExtension) OnCmd(env *extension.Env, cmd *envelope.Envelope) {
	status := envelope.StatusOK
	if p.ackDetail != "pong" {
		status = envelope.StatusError
	}
	res, err := envelope.NewCmdResult(status, cmd)
	if err == nil {
		if err := env.ReturnResult(res); err != nil {
			res.Release()
		}
	}
	cmd.Release()
}

// pongTester answers the target's outbound ping, then verifies the
// target observed it.
type pongTester struct {
	DefaultTester
}

func (p *pongTester) OnCmd(env *EnvTester, cmd *envelope.Envelope) {
	if cmd.Name() != "ping" {
		cmd.Release()
		return
	}
	res, err := envelope.NewCmdResult(envelope.StatusOK, cmd)
	if err == nil {
		_ = res.SetProperty("detail", envelope.String("pong"))
		if err := env.ReturnResult(res); err != nil {
			res.Release()
		}
	}
	cmd.Release()

	check := envelope.NewCmd("check")
	_ = env.SendCmd(check, func(env *EnvTester, res *envelope.Envelope, err error) {
		if err != nil {
			env.StopTest(err)
			return
		}
		if res.Status() != envelope.StatusOK {
			env.StopTest(errors.New(errors.CodeGeneric, "target never saw the pong"))
		} else {
			env.StopTest(nil)
		}
		res.Release()
	})
}

func TestHarnessBridgesOutboundCmds(t *testing.T) {
	manifest, err := graph.ParseManifest([]byte(`{
		"type": "extension", "name": "pinger", "version": "0.1.0",
		"api": {"cmd_out": [{"name": "ping"}]}
	}`))
	require.NoError(t, err)

	reg := addon.NewRegistry()
	require.NoError(t, reg.Register(&addon.Registration{
		Name:     "pinger",
		Factory:  func(string) extension.Extension { return &pingerExtension{} },
		Manifest: manifest,
	}))

	h := NewHarness(&pongTester{}, reg)
	require.NoError(t, h.SetTestModeSingle("pinger", ""))
	assert.NoError(t, h.Run())
}

func TestHarnessRequiresTarget(t *testing.T) {
	h := NewHarness(&DefaultTester{}, addon.NewRegistry())
	err := h.Run()
	require.Error(t, err)
	assert.True(t, errors.IsInvalidState(err))
}

func TestSetTestModeSingleValidation(t *testing.T) {
	h := NewHarness(&DefaultTester{}, addon.NewRegistry())

	assert.Error(t, h.SetTestModeSingle("", ""))
	assert.Error(t, h.SetTestModeSingle("x", "{bad json"))
	assert.NoError(t, h.SetTestModeSingle("x", `{"k": 1}`))
}

func TestRegistryAttachLookup(t *testing.T) {
	r := NewRegistry()
	tst := &DefaultTester{}

	r.Attach("g1", tst)
	assert.Equal(t, Tester(tst), r.Lookup("g1"))
	r.Detach("g1")
	assert.Nil(t, r.Lookup("g1"))
}
