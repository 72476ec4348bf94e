package dispatch

import (
	"sync"
	"sync/atomic"

	"github.com/c360/flowmesh/extension"
	"github.com/c360/flowmesh/graph"
	"github.com/c360/flowmesh/runloop"
)

// GraphState is the joined lifecycle state of a running graph.
type GraphState int32

const (
	// GraphStarting means members are still working through
	// configure, init and start.
	GraphStarting GraphState = iota
	// GraphStarted means every member acked on_start_done.
	GraphStarted
	// GraphStopping means teardown is in progress.
	GraphStopping
	// GraphStopped means every member deinitialized and the group
	// loops are gone.
	GraphStopped
)

// String returns the lowercase state name.
func (s GraphState) String() string {
	switch s {
	case GraphStarting:
		return "starting"
	case GraphStarted:
		return "started"
	case GraphStopping:
		return "stopping"
	case GraphStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type extHandle struct {
	env   *extension.Env
	group string
}

// graphInstance is one running graph: its extension table, compiled
// connection table and group runloops. The extension and connection
// tables are immutable once StartGraph built them; only the ack
// bookkeeping needs a lock.
type graphInstance struct {
	id    string
	d     *Dispatcher
	def   *graph.Definition
	table *graph.Table
	loops map[string]*runloop.Runloop
	exts  map[string]*extHandle

	state atomic.Int32

	mu        sync.Mutex
	ackCounts map[extension.State]int
	onStarted func(graphID string, err error)
	onStopped []func()
}

// State returns the joined graph state.
func (g *graphInstance) State() GraphState { return GraphState(g.state.Load()) }

// OnLifecycleAck implements extension.LifecycleListener. Acks are
// joined per state; when the last member arrives at a barrier the next
// lifecycle stage is posted to every member. No extension sees on_start
// before every peer acked on_init_done.
func (g *graphInstance) OnLifecycleAck(env *extension.Env, state extension.State) {
	g.d.metrics.Metrics.LifecycleAcks.WithLabelValues(state.String()).Inc()

	g.mu.Lock()
	g.ackCounts[state]++
	barrier := g.ackCounts[state] == len(g.exts)
	g.mu.Unlock()

	if !barrier {
		return
	}

	switch state {
	case extension.StateConfigured:
		g.beginAll(extension.StateInitializing)
	case extension.StateInitialized:
		g.beginAll(extension.StateStarting)
	case extension.StateStarted:
		g.state.Store(int32(GraphStarted))
		g.d.metrics.Metrics.GraphsRunning.Inc()
		g.d.log.Info("graph started", "graph", g.id)
		g.notifyStarted(nil)
	case extension.StateStopped:
		g.beginAll(extension.StateDeinitializing)
	case extension.StateDeinitialized:
		g.teardown()
	}
}

// beginAll posts the lifecycle callback entering pending to every
// member's runloop.
func (g *graphInstance) beginAll(pending extension.State) {
	for _, h := range g.exts {
		h := h
		if hook := g.d.Hook; hook != nil {
			hook(h.env.Name(), pending)
		}
		_ = h.env.Loop().PostTaskTail(func() { h.env.Begin(pending) })
	}
}

func (g *graphInstance) stop(onStopped func()) error {
	g.mu.Lock()
	if onStopped != nil {
		g.onStopped = append(g.onStopped, onStopped)
	}
	prev := g.State()
	alreadyStopping := prev == GraphStopping
	if !alreadyStopping {
		g.state.Store(int32(GraphStopping))
	}
	g.mu.Unlock()
	if alreadyStopping {
		return nil
	}
	if prev == GraphStarted {
		g.d.metrics.Metrics.GraphsRunning.Dec()
	}
	g.d.log.Info("stopping graph", "graph", g.id)
	g.beginAll(extension.StateStopping)
	return nil
}

// teardown runs after every member deinitialized: drop the graph from
// the dispatcher, stop the group loops, fire the stop notifications.
func (g *graphInstance) teardown() {
	g.state.Store(int32(GraphStopped))
	g.d.removeGraph(g.id)
	g.stopLoops()
	g.d.log.Info("graph stopped", "graph", g.id)

	g.mu.Lock()
	callbacks := g.onStopped
	g.onStopped = nil
	g.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

func (g *graphInstance) stopLoops() {
	for _, rl := range g.loops {
		rl.Stop()
	}
}

func (g *graphInstance) notifyStarted(err error) {
	g.mu.Lock()
	fn := g.onStarted
	g.onStarted = nil
	g.mu.Unlock()
	if fn != nil {
		fn(g.id, err)
	}
}
