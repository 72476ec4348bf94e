package dispatch

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/c360/flowmesh/addon"
	"github.com/c360/flowmesh/envelope"
	"github.com/c360/flowmesh/errors"
	"github.com/c360/flowmesh/extension"
	"github.com/c360/flowmesh/graph"
	"github.com/c360/flowmesh/metric"
	"github.com/c360/flowmesh/runloop"
)

// LifecycleHook is a test-only injection point invoked before each
// lifecycle callback is posted. Production leaves it nil; correctness
// never depends on it.
type LifecycleHook func(extensionName string, pending extension.State)

// Dispatcher owns the running graphs of one app: the extension tables,
// the compiled connection tables and the addon registry used to
// instantiate extensions. It implements extension.Router, so every env
// send funnels through RouteEnvelope.
type Dispatcher struct {
	appURI   string
	registry *addon.Registry
	metrics  *metric.Registry
	log      *slog.Logger

	// Hook is consulted before every lifecycle callback post.
	Hook LifecycleHook

	mu         sync.RWMutex
	graphs     map[string]*graphInstance
	graphOrder []string
	externals  map[string]*extension.Env
}

// NewDispatcher creates a dispatcher for the app identified by appURI.
func NewDispatcher(appURI string, registry *addon.Registry, metrics *metric.Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = metric.NewRegistry()
	}
	return &Dispatcher{
		appURI:    appURI,
		registry:  registry,
		metrics:   metrics,
		log:       logger.With("component", "dispatcher"),
		graphs:    map[string]*graphInstance{},
		externals: map[string]*extension.Env{},
	}
}

// AppURI returns the uri the dispatcher stamps on concrete locations.
func (d *Dispatcher) AppURI() string { return d.appURI }

// Metrics returns the dispatcher's metric registry.
func (d *Dispatcher) Metrics() *metric.Registry { return d.metrics }

// RegisterExternal attaches a non-graph endpoint, such as a client or
// tester driver env, addressable by its extension name.
func (d *Dispatcher) RegisterExternal(env *extension.Env) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.externals[env.Name()] = env
}

// UnregisterExternal detaches an external endpoint.
func (d *Dispatcher) UnregisterExternal(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.externals, name)
}

func (d *Dispatcher) graph(id string) *graphInstance {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.graphs[id]
}

func (d *Dispatcher) external(name string) *extension.Env {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.externals[name]
}

// GraphIDs returns the ids of running graphs in start order.
func (d *Dispatcher) GraphIDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.graphOrder...)
}

// StartGraph instantiates the definition's extensions, assigns them to
// group runloops and drives the lifecycle to started. It returns the
// new graph id immediately; onStarted fires once every member has acked
// on_start_done.
func (d *Dispatcher) StartGraph(def *graph.Definition, onStarted func(graphID string, err error)) (string, error) {
	if def == nil {
		return "", errors.New(errors.CodeInvalidArgument, "nil graph definition")
	}
	if err := def.Validate(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	g := &graphInstance{
		id:        id,
		d:         d,
		def:       def,
		table:     graph.BuildTable(def, id, d.appURI),
		loops:     map[string]*runloop.Runloop{},
		exts:      map[string]*extHandle{},
		ackCounts: map[extension.State]int{},
		onStarted: onStarted,
	}

	for _, group := range def.Groups() {
		rl := runloop.New()
		g.loops[group] = rl
		go rl.Run()
	}

	for i := range def.Nodes {
		node := &def.Nodes[i]
		ext, err := d.registry.Create(node.Addon, node.Name)
		if err != nil {
			g.stopLoops()
			return "", errors.Wrap(err, "Dispatcher", "StartGraph", "instantiate "+node.Name)
		}
		loc := envelope.Loc{App: d.appURI, Graph: id, Extension: node.Name}
		env := extension.NewEnv(node.Name, loc, ext, g.loops[node.GroupName()], d, g, d.log)
		if node.Property != nil {
			tree, err := graph.PropertyTree(node.Property)
			if err != nil {
				g.stopLoops()
				return "", errors.Wrap(err, "Dispatcher", "StartGraph", "properties of "+node.Name)
			}
			env.SetProperties(tree)
		}
		if reg, err := d.registry.Lookup(node.Addon); err == nil && reg.Manifest != nil {
			env.SetManifest(reg.Manifest)
		}
		g.exts[node.Name] = &extHandle{env: env, group: node.GroupName()}
	}

	d.mu.Lock()
	d.graphs[id] = g
	d.graphOrder = append(d.graphOrder, id)
	d.mu.Unlock()

	d.log.Info("starting graph", "graph", id, "nodes", len(def.Nodes), "groups", len(g.loops))
	g.beginAll(extension.StateConfiguring)
	return id, nil
}

// StopGraph unwinds a running graph: stop, deinit, then loop teardown
// in reverse of the start sequence. onStopped fires after the graph is
// fully dismantled.
func (d *Dispatcher) StopGraph(id string, onStopped func()) error {
	g := d.graph(id)
	if g == nil {
		return errors.Newf(errors.CodeInvalidArgument, "unknown graph %s", id)
	}
	return g.stop(onStopped)
}

// CloseAll stops every running graph in reverse start order, then fires
// onDone. Used by app shutdown.
func (d *Dispatcher) CloseAll(onDone func()) {
	ids := d.GraphIDs()
	if len(ids) == 0 {
		if onDone != nil {
			onDone()
		}
		return
	}

	var stopNext func(i int)
	stopNext = func(i int) {
		if i < 0 {
			if onDone != nil {
				onDone()
			}
			return
		}
		if err := d.StopGraph(ids[i], func() { stopNext(i - 1) }); err != nil {
			// Graph already gone; keep unwinding.
			stopNext(i - 1)
		}
	}
	stopNext(len(ids) - 1)
}

func (d *Dispatcher) removeGraph(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.graphs, id)
	for i, gid := range d.graphOrder {
		if gid == id {
			d.graphOrder = append(d.graphOrder[:i], d.graphOrder[i+1:]...)
			break
		}
	}
}

// --- routing ---

// RouteEnvelope resolves destinations for one outbound envelope and
// delivers a cloned reference per destination as a runloop task on each
// target. Zero resolved destinations fail synchronously with
// msg_not_connected and the caller keeps ownership.
func (d *Dispatcher) RouteEnvelope(e *envelope.Envelope, from envelope.Loc, freeRouting bool) error {
	if e == nil {
		return errors.New(errors.CodeInvalidArgument, "nil envelope")
	}
	if e.Kind() == envelope.KindCmdResult {
		return d.routeResult(e, from)
	}

	dests, err := d.resolveDests(e, from, freeRouting)
	if err != nil {
		d.metrics.Metrics.DeliveryFailures.WithLabelValues(errors.CodeOf(err).String()).Inc()
		return err
	}

	targets := make([]*extension.Env, 0, len(dests))
	for _, dloc := range dests {
		env, err := d.endpoint(dloc)
		if err != nil {
			d.metrics.Metrics.DeliveryFailures.WithLabelValues(errors.CodeOf(err).String()).Inc()
			return err
		}
		targets = append(targets, env)
	}

	for _, target := range targets {
		d.deliver(target, e.Clone(), from)
	}
	// The sender's reference transfers to the runtime; the per-target
	// clones are now the only live references.
	e.Release()

	d.metrics.Metrics.EnvelopesRouted.WithLabelValues(e.Kind().String()).Inc()
	d.metrics.Metrics.FanoutWidth.Observe(float64(len(targets)))
	return nil
}

// resolveDests applies the destination policy: explicit dests override
// the connection table, and are validated against it unless the sender
// has free routing; an empty dest list falls back to the table.
func (d *Dispatcher) resolveDests(e *envelope.Envelope, from envelope.Loc, freeRouting bool) ([]envelope.Loc, error) {
	graphID := from.Graph
	explicit := e.Dests()
	if graphID == "" {
		for _, dloc := range explicit {
			if dloc.Graph != "" {
				graphID = dloc.Graph
				break
			}
		}
	}
	g := d.graph(graphID)
	base := envelope.Loc{App: d.appURI, Graph: graphID}

	if len(explicit) > 0 {
		resolved := make([]envelope.Loc, 0, len(explicit))
		var declared []envelope.Loc
		if !freeRouting {
			if g == nil {
				return nil, errors.Newf(errors.CodeMsgNotConnected,
					"no graph to validate dests of %s %q against", e.Kind(), e.Name())
			}
			declared = g.table.Resolve(from, e.Kind(), e.Name())
		}
		for _, dloc := range explicit {
			r := dloc.ResolveAgainst(base)
			// Destinations naming no extension address the app itself
			// (privileged commands); the table never declares those.
			if r.Extension != "" && !freeRouting && !locListed(declared, r) {
				return nil, errors.Newf(errors.CodeMsgNotConnected,
					"%s %q from %s is not connected to %s", e.Kind(), e.Name(), from, r)
			}
			resolved = append(resolved, r)
		}
		return resolved, nil
	}

	if g == nil {
		return nil, errors.Newf(errors.CodeMsgNotConnected, "sender %s is not in a graph", from)
	}
	dests := g.table.Resolve(from, e.Kind(), e.Name())
	if len(dests) == 0 {
		return nil, errors.Newf(errors.CodeMsgNotConnected,
			"%s %q from %s has no declared route", e.Kind(), e.Name(), from)
	}
	return dests, nil
}

func locListed(list []envelope.Loc, loc envelope.Loc) bool {
	for _, l := range list {
		if l.Same(loc) {
			return true
		}
	}
	return false
}

// endpoint maps a concrete destination loc onto a live env: a graph
// member, or a registered external endpoint. Graph members must have
// reached initialized to be routable.
func (d *Dispatcher) endpoint(loc envelope.Loc) (*extension.Env, error) {
	if loc.Extension == "" {
		// The app's own endpoint handles privileged commands.
		if env := d.external(""); env != nil {
			return env, nil
		}
		return nil, errors.Newf(errors.CodeMsgNotConnected, "destination %s names no extension", loc)
	}
	if g := d.graph(loc.Graph); g != nil {
		if h, ok := g.exts[loc.Extension]; ok {
			if h.env.State() < extension.StateInitialized {
				return nil, errors.Newf(errors.CodeMsgNotConnected,
					"extension %s is not initialized yet", loc)
			}
			return h.env, nil
		}
	}
	if env := d.external(loc.Extension); env != nil {
		return env, nil
	}
	return nil, errors.Newf(errors.CodeMsgNotConnected, "no extension at %s", loc)
}

// deliver posts one cloned reference onto the target's runloop. The
// target's declared manifest is enforced here: a destination that does
// not accept the message refuses it after the send already succeeded,
// which for commands surfaces as an error result to the originator.
func (d *Dispatcher) deliver(target *extension.Env, clone *envelope.Envelope, from envelope.Loc) {
	err := target.Loop().PostTaskTail(func() {
		if m := target.Manifest(); m != nil && !m.AcceptsIn(clone.Kind(), clone.Name()) {
			d.refuse(target, clone)
			return
		}
		target.Deliver(clone)
	})
	if err != nil {
		d.log.Warn("delivery dropped, target loop stopped",
			"target", target.Name(), "kind", clone.Kind().String(), "name", clone.Name())
		d.metrics.Metrics.DeliveryFailures.WithLabelValues(errors.CodeClosed.String()).Inc()
		clone.Release()
	}
}

// refuse bounces a manifest-refused envelope. Commands produce an error
// result back to the originator; one-way kinds are dropped with a log.
func (d *Dispatcher) refuse(target *extension.Env, clone *envelope.Envelope) {
	defer clone.Release()

	d.log.Warn("destination refused message not in its manifest",
		"target", target.Name(), "kind", clone.Kind().String(), "name", clone.Name())
	d.metrics.Metrics.DeliveryFailures.WithLabelValues(errors.CodeMsgNotConnected.String()).Inc()

	if clone.Kind() != envelope.KindCmd {
		return
	}
	res, err := envelope.NewCmdResult(envelope.StatusError, clone)
	if err != nil {
		return
	}
	_ = res.SetCompleted(false)
	_ = res.SetProperty("error.code", envelope.Int64(int64(errors.CodeMsgNotConnected)))
	_ = res.SetProperty("error.message",
		envelope.String("destination "+target.Name()+" does not accept cmd "+clone.Name()))
	if err := d.routeResult(res, target.Loc()); err != nil {
		res.Release()
	}
}

// routeResult delivers a result to the locations captured from its
// originating command.
func (d *Dispatcher) routeResult(e *envelope.Envelope, from envelope.Loc) error {
	dests := e.Dests()
	if len(dests) == 0 {
		return errors.New(errors.CodeInvalidArgument, "result has no captured source")
	}

	base := envelope.Loc{App: d.appURI, Graph: from.Graph}
	targets := make([]*extension.Env, 0, len(dests))
	for _, dloc := range dests {
		env, err := d.resultEndpoint(dloc.ResolveAgainst(base))
		if err != nil {
			d.metrics.Metrics.DeliveryFailures.WithLabelValues(errors.CodeOf(err).String()).Inc()
			return err
		}
		targets = append(targets, env)
	}

	for _, target := range targets {
		clone := e.Clone()
		if err := target.Loop().PostTaskTail(func() { target.Deliver(clone) }); err != nil {
			clone.Release()
			d.metrics.Metrics.DeliveryFailures.WithLabelValues(errors.CodeClosed.String()).Inc()
		}
	}
	e.Release()

	d.metrics.Metrics.EnvelopesRouted.WithLabelValues(e.Kind().String()).Inc()
	d.metrics.Metrics.ResultsCorrelated.Inc()
	return nil
}

// resultEndpoint resolves a result destination. Results may flow to
// extensions in any lifecycle state past creation: a stopping graph
// still drains result streams.
func (d *Dispatcher) resultEndpoint(loc envelope.Loc) (*extension.Env, error) {
	if loc.Extension == "" {
		if env := d.external(""); env != nil {
			return env, nil
		}
		return nil, errors.Newf(errors.CodeMsgNotConnected, "result destination %s names no extension", loc)
	}
	if g := d.graph(loc.Graph); g != nil {
		if h, ok := g.exts[loc.Extension]; ok {
			return h.env, nil
		}
	}
	if env := d.external(loc.Extension); env != nil {
		return env, nil
	}
	return nil, errors.Newf(errors.CodeMsgNotConnected, "no extension at %s for result", loc)
}
