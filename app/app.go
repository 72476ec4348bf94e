// Package app hosts the runtime process: one app owns the addon
// registry, the dispatcher with its graphs, the app runloop, and the
// endpoint that privileged commands (start_graph, close_app) are
// addressed to with an empty destination.
package app

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"

	"github.com/c360/flowmesh/addon"
	"github.com/c360/flowmesh/dispatch"
	"github.com/c360/flowmesh/envelope"
	"github.com/c360/flowmesh/errors"
	"github.com/c360/flowmesh/extension"
	"github.com/c360/flowmesh/graph"
	"github.com/c360/flowmesh/metric"
	"github.com/c360/flowmesh/runloop"
)

// App is one runtime process: a transport-less host for graphs. Its
// configuration is a property tree; ten.uri is mandatory and
// ten.log.level (0..6) selects the log level.
type App struct {
	uri     string
	log     *slog.Logger
	loop    *runloop.Runloop
	metrics *metric.Registry
	disp    *dispatch.Dispatcher
	env     *extension.Env

	closeOnce sync.Once
}

// Option customizes app construction.
type Option func(*App)

// WithLogger overrides the logger built from ten.log.level.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) { a.log = logger }
}

// WithMetrics supplies a shared metric registry.
func WithMetrics(m *metric.Registry) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an app from a JSON configuration document of the form
//
//	{"ten": {"uri": "...", "log": {"level": 2}}}
func New(configJSON []byte, registry *addon.Registry, opts ...Option) (*App, error) {
	var raw map[string]any
	if err := json.Unmarshal(configJSON, &raw); err != nil {
		return nil, errors.WrapCode(errors.CodeInvalidArgument, err, "app config decode failed")
	}
	props, err := graph.PropertyTree(raw)
	if err != nil {
		return nil, err
	}

	uriVal, err := envelope.GetPath(props, "ten.uri")
	if err != nil {
		return nil, errors.New(errors.CodeInvalidArgument, "app config requires ten.uri")
	}
	uri, err := uriVal.AsString()
	if err != nil || uri == "" {
		return nil, errors.New(errors.CodeInvalidArgument, "ten.uri must be a non-empty string")
	}

	a := &App{uri: uri, loop: runloop.New()}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = newLogger(props)
	}
	if a.metrics == nil {
		a.metrics = metric.NewRegistry()
	}
	a.log = a.log.With("app", uri)

	a.disp = dispatch.NewDispatcher(uri, registry, a.metrics, a.log)
	a.env = extension.NewEnv("", envelope.Loc{App: uri}, &appExtension{app: a}, a.loop, a.disp, nil, a.log)
	a.env.EnableFreeRouting()
	a.disp.RegisterExternal(a.env)

	return a, nil
}

// newLogger maps ten.log.level 0..6 onto slog levels, defaulting to info.
func newLogger(props *envelope.Value) *slog.Logger {
	level := slog.LevelInfo
	if v, err := envelope.GetPath(props, "ten.log.level"); err == nil {
		if n, err := v.AsInt(); err == nil {
			switch {
			case n <= 2:
				level = slog.LevelDebug
			case n == 3:
				level = slog.LevelInfo
			case n == 4:
				level = slog.LevelWarn
			default:
				level = slog.LevelError
			}
		}
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// URI returns the app's own uri.
func (a *App) URI() string { return a.uri }

// Logger returns the app logger.
func (a *App) Logger() *slog.Logger { return a.log }

// Metrics returns the app's metric registry.
func (a *App) Metrics() *metric.Registry { return a.metrics }

// Dispatcher returns the app's dispatcher.
func (a *App) Dispatcher() *dispatch.Dispatcher { return a.disp }

// Run executes the app runloop on the calling goroutine. It returns
// only after Close has fully unwound every graph: each member's
// on_stop_done and on_deinit_done precede the return.
func (a *App) Run() { a.loop.Run() }

// Close triggers orderly shutdown: every graph stops in reverse start
// order, then the app runloop terminates. Idempotent and safe from any
// thread.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		a.log.Info("closing app")
		a.disp.CloseAll(func() { a.loop.Stop() })
	})
}

// appExtension handles the privileged commands addressed to the app.
type appExtension struct {
	extension.DefaultExtension
	app *App
}

func (x *appExtension) OnCmd(env *extension.Env, cmd *envelope.Envelope) {
	switch cmd.Name() {
	case "start_graph":
		x.handleStartGraph(env, cmd)
	case "close_app":
		cmd.Release()
		x.app.Close()
	default:
		x.replyError(env, cmd, errors.Newf(errors.CodeInvalidArgument,
			"unknown app command %q", cmd.Name()))
		cmd.Release()
	}
}

// graphDoc extracts the definition document from a start_graph cmd:
// either a graph_json string property, or nodes/connections property
// trees re-encoded as JSON.
func graphDoc(cmd *envelope.Envelope) ([]byte, error) {
	if doc, err := cmd.GetPropertyString("graph_json"); err == nil {
		return []byte(doc), nil
	}
	raw, err := cmd.Properties().Interface()
	if err != nil {
		return nil, err
	}
	doc, ok := raw.(map[string]any)
	if !ok {
		return nil, errors.New(errors.CodeInvalidArgument, "start_graph carries no graph definition")
	}
	return json.Marshal(map[string]any{
		"nodes":       doc["nodes"],
		"connections": doc["connections"],
	})
}

func (x *appExtension) handleStartGraph(env *extension.Env, cmd *envelope.Envelope) {
	doc, err := graphDoc(cmd)
	if err != nil {
		x.replyError(env, cmd, err)
		cmd.Release()
		return
	}
	def, err := graph.Parse(doc)
	if err != nil {
		x.replyError(env, cmd, err)
		cmd.Release()
		return
	}

	_, err = x.app.disp.StartGraph(def, func(graphID string, startErr error) {
		// Started acks arrive on a graph loop; reply from the app loop.
		postErr := env.Loop().PostTaskTail(func() {
			defer cmd.Release()
			if startErr != nil {
				x.replyError(env, cmd, startErr)
				return
			}
			res, err := envelope.NewCmdResult(envelope.StatusOK, cmd)
			if err != nil {
				return
			}
			_ = res.SetProperty("detail", envelope.String(graphID))
			if err := env.ReturnResult(res); err != nil {
				res.Release()
			}
		})
		if postErr != nil {
			cmd.Release()
		}
	})
	if err != nil {
		x.replyError(env, cmd, err)
		cmd.Release()
	}
}

func (x *appExtension) replyError(env *extension.Env, cmd *envelope.Envelope, cause error) {
	res, err := envelope.NewCmdResult(envelope.StatusError, cmd)
	if err != nil {
		return
	}
	_ = res.SetProperty("error.code", envelope.Int64(int64(errors.CodeOf(cause))))
	_ = res.SetProperty("error.message", envelope.String(cause.Error()))
	if err := env.ReturnResult(res); err != nil {
		res.Release()
	}
}
