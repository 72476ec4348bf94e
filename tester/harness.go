package tester

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/c360/flowmesh/addon"
	"github.com/c360/flowmesh/app"
	"github.com/c360/flowmesh/envelope"
	"github.com/c360/flowmesh/errors"
	"github.com/c360/flowmesh/extension"
	"github.com/c360/flowmesh/graph"
	"github.com/c360/flowmesh/runloop"
)

const (
	targetExtensionName = "test_extension"
	bridgeExtensionName = "test_bridge"
)

// Harness runs one extension under test inside a minimal app, bridged
// to a Tester on a dedicated runloop.
type Harness struct {
	tester   Tester
	registry *addon.Registry
	testers  *Registry

	targetAddon    string
	targetProperty map[string]any
	timeout        time.Duration

	app        *app.App
	testerLoop *runloop.Runloop
	env        *EnvTester

	bridgeReady chan struct{}
	verdict     chan error
}

// NewHarness creates a harness driving tester against addons from
// registry. Configure the target with SetTestModeSingle, then Run.
func NewHarness(t Tester, registry *addon.Registry) *Harness {
	return &Harness{
		tester:      t,
		registry:    registry,
		testers:     NewRegistry(),
		timeout:     10 * time.Second,
		bridgeReady: make(chan struct{}, 1),
		verdict:     make(chan error, 1),
	}
}

// SetTestModeSingle targets one addon, instantiated as the only
// extension under test, with an optional JSON property block.
func (h *Harness) SetTestModeSingle(addonName, propertyJSON string) error {
	if addonName == "" {
		return errors.New(errors.CodeInvalidArgument, "addon name required")
	}
	h.targetAddon = addonName
	h.targetProperty = nil
	if propertyJSON != "" {
		if err := json.Unmarshal([]byte(propertyJSON), &h.targetProperty); err != nil {
			return errors.WrapCode(errors.CodeInvalidArgument, err, "target property decode failed")
		}
	}
	return nil
}

// SetTimeout bounds the whole run. Zero disables the bound.
func (h *Harness) SetTimeout(d time.Duration) { h.timeout = d }

// graphDefinition builds the two-node test graph: the target plus the
// bridge. Routes from the target toward the bridge are generated from
// the target addon's manifest, when it declares one; the bridge itself
// routes freely.
func (h *Harness) graphDefinition(bridgeAddon string) *graph.Definition {
	def := &graph.Definition{
		Nodes: []graph.Node{
			{
				Type:           "extension",
				Name:           targetExtensionName,
				Addon:          h.targetAddon,
				ExtensionGroup: "test_extension_group",
				Property:       h.targetProperty,
			},
			{
				Type:           "extension",
				Name:           bridgeExtensionName,
				Addon:          bridgeAddon,
				ExtensionGroup: "test_bridge_group",
			},
		},
	}

	reg, err := h.registry.Lookup(h.targetAddon)
	if err != nil || reg.Manifest == nil {
		return def
	}
	conn := graph.Connection{Extension: targetExtensionName}
	toBridge := []graph.Dest{{Extension: bridgeExtensionName}}
	for _, e := range reg.Manifest.API.CmdOut {
		conn.Cmd = append(conn.Cmd, graph.Route{Name: e.Name, Dest: toBridge})
	}
	for _, e := range reg.Manifest.API.DataOut {
		conn.Data = append(conn.Data, graph.Route{Name: e.Name, Dest: toBridge})
	}
	for _, e := range reg.Manifest.API.AudioFrameOut {
		conn.AudioFrame = append(conn.AudioFrame, graph.Route{Name: e.Name, Dest: toBridge})
	}
	for _, e := range reg.Manifest.API.VideoFrameOut {
		conn.VideoFrame = append(conn.VideoFrame, graph.Route{Name: e.Name, Dest: toBridge})
	}
	if len(conn.Cmd)+len(conn.Data)+len(conn.AudioFrame)+len(conn.VideoFrame) > 0 {
		def.Connections = append(def.Connections, conn)
	}
	return def
}

// Run starts the app, drives the test graph up, hands control to the
// tester and blocks until StopTest. It returns the tester's verdict.
func (h *Harness) Run() error {
	if h.targetAddon == "" {
		return errors.New(errors.CodeInvalidState, "no target addon; call SetTestModeSingle first")
	}

	bridgeAddon := "tester_bridge_" + uuid.NewString()
	if err := h.registry.RegisterExtension(bridgeAddon, func(string) extension.Extension {
		return &bridgeExtension{harness: h}
	}); err != nil {
		return err
	}
	defer h.registry.Unregister(bridgeAddon)

	config := fmt.Sprintf(`{"ten": {"uri": "test://tester-%s/", "log": {"level": 4}}}`, uuid.NewString())
	a, err := app.New([]byte(config), h.registry)
	if err != nil {
		return err
	}
	h.app = a

	appDone := make(chan struct{})
	go func() {
		a.Run()
		close(appDone)
	}()

	h.testerLoop = runloop.New()
	go h.testerLoop.Run()
	defer func() {
		h.testerLoop.Stop()
		<-h.testerLoop.Done()
	}()

	doc, err := json.Marshal(h.graphDefinition(bridgeAddon))
	if err != nil {
		a.Close()
		<-appDone
		return errors.WrapCode(errors.CodeInvalidArgument, err, "test graph encode failed")
	}

	client := a.NewClient()
	graphID, err := client.StartGraph(string(doc))
	client.Close()
	if err != nil {
		a.Close()
		<-appDone
		return err
	}

	h.testers.Attach(graphID, h.tester)
	defer h.testers.Detach(graphID)

	// The bridge binds the tester env before acking its start, so
	// every forwarded message observes a fully wired harness.
	select {
	case <-h.bridgeReady:
	case <-h.deadline():
		a.Close()
		<-appDone
		return errors.New(errors.CodeTimeout, "bridge extension never started")
	}

	if err := h.testerLoop.PostTaskTail(func() { h.tester.OnStart(h.env) }); err != nil {
		a.Close()
		<-appDone
		return err
	}

	var verdict error
	select {
	case verdict = <-h.verdict:
	case <-h.deadline():
		verdict = errors.New(errors.CodeTimeout, "tester did not call StopTest")
	}

	_ = h.testerLoop.PostTaskTail(func() { h.tester.OnStop(h.env) })

	a.Close()
	<-appDone
	return verdict
}

// deadline returns a channel firing at the harness timeout, or never.
func (h *Harness) deadline() <-chan time.Time {
	if h.timeout <= 0 {
		return nil
	}
	return time.After(h.timeout)
}

// forward hands an inbound envelope from the bridge to the tester.
func (h *Harness) forward(kind envelope.Kind, msg *envelope.Envelope) {
	err := h.testerLoop.PostTaskTail(func() {
		switch kind {
		case envelope.KindCmd:
			h.tester.OnCmd(h.env, msg)
		case envelope.KindData:
			h.tester.OnData(h.env, msg)
		case envelope.KindAudioFrame:
			h.tester.OnAudioFrame(h.env, msg)
		case envelope.KindVideoFrame:
			h.tester.OnVideoFrame(h.env, msg)
		}
	})
	if err != nil {
		msg.Release()
	}
}

// bridgeExtension lives inside the test graph and relays both ways.
type bridgeExtension struct {
	extension.DefaultExtension
	harness *Harness
}

func (b *bridgeExtension) OnConfigure(env *extension.Env) {
	// The tester drives the graph from outside; its sends are not
	// bound by the connection table.
	env.EnableFreeRouting()
	_ = env.OnConfigureDone()
}

func (b *bridgeExtension) OnStart(env *extension.Env) {
	b.harness.env = &EnvTester{harness: b.harness, bridge: env}
	b.harness.bridgeReady <- struct{}{}
	_ = env.OnStartDone()
}

func (b *bridgeExtension) OnCmd(_ *extension.Env, cmd *envelope.Envelope) {
	b.harness.forward(envelope.KindCmd, cmd)
}

func (b *bridgeExtension) OnData(_ *extension.Env, data *envelope.Envelope) {
	b.harness.forward(envelope.KindData, data)
}

func (b *bridgeExtension) OnAudioFrame(_ *extension.Env, frame *envelope.Envelope) {
	b.harness.forward(envelope.KindAudioFrame, frame)
}

func (b *bridgeExtension) OnVideoFrame(_ *extension.Env, frame *envelope.Envelope) {
	b.harness.forward(envelope.KindVideoFrame, frame)
}
