package extension

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/c360/flowmesh/envelope"
	"github.com/c360/flowmesh/errors"
	"github.com/c360/flowmesh/graph"
	"github.com/c360/flowmesh/runloop"
)

// Router resolves destinations for outbound envelopes and delivers one
// cloned reference per destination. Implemented by the graph dispatcher.
// Resolution failures are synchronous: a zero-destination send returns
// msg_not_connected and the caller keeps envelope ownership.
type Router interface {
	RouteEnvelope(e *envelope.Envelope, from envelope.Loc, freeRouting bool) error
}

// LifecycleListener observes lifecycle acks from an env. Implemented by
// the graph orchestrator, which joins per-extension acks into graph
// barriers.
type LifecycleListener interface {
	OnLifecycleAck(env *Env, state State)
}

// Env is the per-extension façade handed to every extension callback.
// All methods must be invoked on the owning runloop, or through an
// EnvProxy from other threads.
type Env struct {
	name string
	loc  envelope.Loc
	ext  Extension
	loop *runloop.Runloop

	router      Router
	listener    LifecycleListener
	log         *slog.Logger
	freeRouting bool

	props      *envelope.Value
	manifest   atomic.Pointer[graph.Manifest]
	correlator *Correlator

	state  atomic.Int32
	closed atomic.Bool

	mu            sync.Mutex
	pending       []*envelope.Envelope
	proxies       int
	deinitPending bool
}

// NewEnv creates the env for one extension instance pinned to loop.
func NewEnv(
	name string,
	loc envelope.Loc,
	ext Extension,
	loop *runloop.Runloop,
	router Router,
	listener LifecycleListener,
	logger *slog.Logger,
) *Env {
	if logger == nil {
		logger = slog.Default()
	}
	return &Env{
		name:       name,
		loc:        loc,
		ext:        ext,
		loop:       loop,
		router:     router,
		listener:   listener,
		log:        logger.With("extension", name),
		props:      envelope.Object(),
		correlator: NewCorrelator(),
	}
}

// Name returns the extension instance name.
func (env *Env) Name() string { return env.name }

// Loc returns the extension's own location.
func (env *Env) Loc() envelope.Loc { return env.loc }

// Loop returns the runloop the extension is pinned to.
func (env *Env) Loop() *runloop.Runloop { return env.loop }

// Logger returns the extension-scoped logger.
func (env *Env) Logger() *slog.Logger { return env.log }

// State returns the current lifecycle state.
func (env *Env) State() State { return State(env.state.Load()) }

// Correlator returns the env's result correlator.
func (env *Env) Correlator() *Correlator { return env.correlator }

// EnableFreeRouting marks this env as an external driver: its sends
// bypass connection-table validation. Used by clients and testers.
func (env *Env) EnableFreeRouting() { env.freeRouting = true }

// SetManifest declares the extension's message api. The dispatcher
// calls this at instantiation with the addon's registered manifest and
// enforces the declared inbound surface on delivery.
func (env *Env) SetManifest(m *graph.Manifest) { env.manifest.Store(m) }

// Manifest returns the declared api, or nil when none was set.
func (env *Env) Manifest() *graph.Manifest { return env.manifest.Load() }

// SetProperties replaces the extension property tree. The dispatcher
// calls this at instantiation with the graph node's property block.
func (env *Env) SetProperties(props *envelope.Value) {
	if props != nil {
		env.props = props
	}
}

// GetProperty reads a value from the extension property tree.
func (env *Env) GetProperty(path string) (*envelope.Value, error) {
	return envelope.GetPath(env.props, path)
}

// SetProperty stores a value into the extension property tree.
func (env *Env) SetProperty(path string, v *envelope.Value) error {
	return envelope.SetPath(env.props, path, v)
}

// GetPropertyString reads a string from the extension property tree.
func (env *Env) GetPropertyString(path string) (string, error) {
	v, err := env.GetProperty(path)
	if err != nil {
		return "", err
	}
	return v.AsString()
}

// GetPropertyInt reads a signed integer from the extension property tree.
func (env *Env) GetPropertyInt(path string) (int64, error) {
	v, err := env.GetProperty(path)
	if err != nil {
		return 0, err
	}
	return v.AsInt()
}

// GetPropertyBool reads a boolean from the extension property tree.
func (env *Env) GetPropertyBool(path string) (bool, error) {
	v, err := env.GetProperty(path)
	if err != nil {
		return false, err
	}
	return v.AsBool()
}

// --- outbound ---

func (env *Env) checkSendable(e *envelope.Envelope, want envelope.Kind) error {
	if e == nil {
		return errors.New(errors.CodeInvalidArgument, "nil envelope")
	}
	if e.Kind() != want {
		return errors.Newf(errors.CodeInvalidArgument, "expected %s envelope, got %s", want, e.Kind())
	}
	if env.closed.Load() {
		return errors.ErrClosed
	}
	return nil
}

func (env *Env) sendCmd(cmd *envelope.Envelope, onResult ResultHandler, mode ResultMode) error {
	if err := env.checkSendable(cmd, envelope.KindCmd); err != nil {
		return err
	}
	if cmd.Src().IsEmpty() {
		cmd.SetSrc(env.loc)
	}
	id := cmd.EnsureCorrelationID()
	if onResult != nil {
		if err := env.correlator.Register(id, onResult, mode, env.loc); err != nil {
			return err
		}
	}
	if err := env.router.RouteEnvelope(cmd, env.loc, env.freeRouting); err != nil {
		// Ownership stays with the caller and the handler never fires;
		// the synchronous failure is the signal.
		if onResult != nil {
			env.correlator.Remove(id)
		}
		return err
	}
	cmd.MarkSent()
	return nil
}

// SendCmd transfers cmd to the runtime with single-result semantics:
// only the final result is surfaced to onResult. A nil onResult
// discards all results.
func (env *Env) SendCmd(cmd *envelope.Envelope, onResult ResultHandler) error {
	return env.sendCmd(cmd, onResult, ResultModeSingle)
}

// SendCmdEx transfers cmd with multi-result semantics: every
// intermediate result is surfaced and the correlation entry is retained
// until a final result arrives.
func (env *Env) SendCmdEx(cmd *envelope.Envelope, onResult ResultHandler) error {
	return env.sendCmd(cmd, onResult, ResultModeMulti)
}

func (env *Env) sendOneWay(e *envelope.Envelope, want envelope.Kind) error {
	if err := env.checkSendable(e, want); err != nil {
		return err
	}
	if e.Src().IsEmpty() {
		e.SetSrc(env.loc)
	}
	if err := env.router.RouteEnvelope(e, env.loc, env.freeRouting); err != nil {
		return err
	}
	e.MarkSent()
	return nil
}

// SendData transfers a data envelope one-way; no correlation entry is
// created.
func (env *Env) SendData(data *envelope.Envelope) error {
	return env.sendOneWay(data, envelope.KindData)
}

// SendAudioFrame transfers an audio frame one-way.
func (env *Env) SendAudioFrame(frame *envelope.Envelope) error {
	return env.sendOneWay(frame, envelope.KindAudioFrame)
}

// SendVideoFrame transfers a video frame one-way.
func (env *Env) SendVideoFrame(frame *envelope.Envelope) error {
	return env.sendOneWay(frame, envelope.KindVideoFrame)
}

// ReturnResult routes a result to the originator of the matching
// command. The result must carry the source captured at construction.
func (env *Env) ReturnResult(result *envelope.Envelope) error {
	if err := env.checkSendable(result, envelope.KindCmdResult); err != nil {
		return err
	}
	if len(result.Dests()) == 0 {
		return errors.New(errors.CodeInvalidArgument, "result has no captured source")
	}
	if result.Src().IsEmpty() {
		result.SetSrc(env.loc)
	}
	if err := env.router.RouteEnvelope(result, env.loc, env.freeRouting); err != nil {
		return err
	}
	result.MarkSent()
	return nil
}

// SetMsgSource overrides the source loc prior to send. Testers use this
// to impersonate a graph location.
func (env *Env) SetMsgSource(msg *envelope.Envelope, loc envelope.Loc) error {
	if msg == nil {
		return errors.New(errors.CodeInvalidArgument, "nil envelope")
	}
	msg.SetSrc(loc)
	return nil
}

// --- lifecycle ---

// Begin invokes the lifecycle callback that enters the given pending
// state. Called by the orchestrator, on the env's runloop only.
func (env *Env) Begin(pending State) {
	env.state.Store(int32(pending))
	switch pending {
	case StateConfiguring:
		env.ext.OnConfigure(env)
	case StateInitializing:
		env.ext.OnInit(env)
	case StateStarting:
		env.ext.OnStart(env)
	case StateStopping:
		env.ext.OnStop(env)
	case StateDeinitializing:
		env.ext.OnDeinit(env)
	default:
		// Orchestrator bug; lifecycle invariants are fatal.
		panic("extension: Begin on non-pending state " + pending.String())
	}
}

func (env *Env) ack(want, next State) error {
	if !env.state.CompareAndSwap(int32(want), int32(next)) {
		return errors.Newf(errors.CodeInvalidState,
			"%s ack in state %s", next, env.State())
	}
	env.log.Debug("lifecycle ack", "state", next.String())
	if next == StateStarted {
		env.flushPending()
	}
	if env.listener != nil {
		env.listener.OnLifecycleAck(env, next)
	}
	return nil
}

// OnConfigureDone acks the configure barrier.
func (env *Env) OnConfigureDone() error { return env.ack(StateConfiguring, StateConfigured) }

// OnInitDone acks the init barrier.
func (env *Env) OnInitDone() error { return env.ack(StateInitializing, StateInitialized) }

// OnStartDone acks the start barrier and flushes messages buffered
// before the extension went live.
func (env *Env) OnStartDone() error { return env.ack(StateStarting, StateStarted) }

// OnStopDone acks the stop barrier.
func (env *Env) OnStopDone() error { return env.ack(StateStopping, StateStopped) }

// OnDeinitDone acks the deinit barrier. Completion is withheld while
// any EnvProxy remains: the last proxy release finishes the teardown.
func (env *Env) OnDeinitDone() error {
	if env.State() != StateDeinitializing {
		return errors.Newf(errors.CodeInvalidState,
			"deinitialized ack in state %s", env.State())
	}
	env.mu.Lock()
	if env.proxies > 0 {
		env.deinitPending = true
		env.mu.Unlock()
		env.log.Debug("deinit ack deferred", "proxies", env.proxies)
		return nil
	}
	env.mu.Unlock()
	env.completeDeinit()
	return nil
}

func (env *Env) completeDeinit() {
	env.state.Store(int32(StateDeinitialized))
	env.closed.Store(true)
	env.correlator.CancelAll(env)
	env.log.Debug("lifecycle ack", "state", StateDeinitialized.String())
	if env.listener != nil {
		env.listener.OnLifecycleAck(env, StateDeinitialized)
	}
}

// --- inbound ---

// Deliver hands one inbound envelope to the extension. Called on the
// env's runloop with a reference the receiver now owns. Results bypass
// buffering and go straight to the correlator; other kinds are buffered
// until the extension has started.
func (env *Env) Deliver(msg *envelope.Envelope) {
	if msg.Kind() == envelope.KindCmdResult {
		env.correlator.Deliver(env, msg)
		return
	}
	// Lifecycle-managed envs buffer between configure and started.
	// External envs (clients, testers, the app endpoint) never enter
	// the lifecycle and dispatch directly.
	if s := env.State(); s > StateCreated && s < StateStarted {
		env.mu.Lock()
		env.pending = append(env.pending, msg)
		env.mu.Unlock()
		return
	}
	env.dispatch(msg)
}

func (env *Env) dispatch(msg *envelope.Envelope) {
	switch msg.Kind() {
	case envelope.KindCmd:
		env.ext.OnCmd(env, msg)
	case envelope.KindData:
		env.ext.OnData(env, msg)
	case envelope.KindAudioFrame:
		env.ext.OnAudioFrame(env, msg)
	case envelope.KindVideoFrame:
		env.ext.OnVideoFrame(env, msg)
	default:
		env.log.Warn("dropping envelope of unexpected kind", "kind", msg.Kind().String())
		msg.Release()
	}
}

// flushPending re-posts buffered messages so they run as ordinary tasks
// after the current callback returns, preserving arrival order.
func (env *Env) flushPending() {
	env.mu.Lock()
	buffered := env.pending
	env.pending = nil
	env.mu.Unlock()
	for _, msg := range buffered {
		msg := msg
		if err := env.loop.PostTaskTail(func() { env.dispatch(msg) }); err != nil {
			msg.Release()
		}
	}
}

// --- proxy accounting ---

func (env *Env) proxyAcquired(n int) error {
	if env.closed.Load() {
		return errors.ErrClosed
	}
	env.mu.Lock()
	env.proxies += n
	env.mu.Unlock()
	return nil
}

func (env *Env) proxyReleased() {
	env.mu.Lock()
	env.proxies--
	finish := env.proxies == 0 && env.deinitPending
	if finish {
		env.deinitPending = false
	}
	env.mu.Unlock()
	if !finish {
		return
	}
	if err := env.loop.PostTaskTail(env.completeDeinit); err != nil {
		// Loop already gone; finish teardown inline.
		env.completeDeinit()
	}
}

// Closed reports whether the env has finished deinitialization.
func (env *Env) Closed() bool { return env.closed.Load() }
