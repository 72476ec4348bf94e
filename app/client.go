package app

import (
	"github.com/c360/flowmesh/envelope"
	"github.com/c360/flowmesh/errors"
	"github.com/c360/flowmesh/extension"
	"github.com/c360/flowmesh/runloop"

	"github.com/google/uuid"
)

// Client drives an app from outside any graph, the way a connected
// transport peer would. Clients route freely: their explicit
// destinations are not validated against connection tables.
type Client struct {
	app  *App
	loop *runloop.Runloop
	env  *extension.Env
}

// NewClient attaches a client endpoint to the app.
func (a *App) NewClient() *Client {
	name := "client-" + uuid.NewString()
	loop := runloop.New()
	go loop.Run()

	env := extension.NewEnv(name, envelope.Loc{App: a.uri, Extension: name},
		extension.DefaultExtension{}, loop, a.disp, nil, a.log)
	env.EnableFreeRouting()
	a.disp.RegisterExternal(env)

	return &Client{app: a, loop: loop, env: env}
}

// Close detaches the client.
func (c *Client) Close() {
	c.app.disp.UnregisterExternal(c.env.Name())
	c.loop.Stop()
	<-c.loop.Done()
}

// Env exposes the client's env for advanced use such as source
// overrides.
func (c *Client) Env() *extension.Env { return c.env }

// do runs fn on the client loop and waits for it.
func (c *Client) do(fn func()) error {
	done := make(chan struct{})
	if err := c.loop.PostTaskTail(func() {
		fn()
		close(done)
	}); err != nil {
		return err
	}
	<-done
	return nil
}

// SendCmd transfers cmd from the client with single-result semantics.
func (c *Client) SendCmd(cmd *envelope.Envelope, onResult extension.ResultHandler) error {
	var sendErr error
	if err := c.do(func() { sendErr = c.env.SendCmd(cmd, onResult) }); err != nil {
		return err
	}
	return sendErr
}

// SendCmdAndWait transfers cmd and blocks until its final result. The
// cmd is always consumed, even on failure; the caller owns the
// returned result.
func (c *Client) SendCmdAndWait(cmd *envelope.Envelope) (*envelope.Envelope, error) {
	type outcome struct {
		res *envelope.Envelope
		err error
	}
	resCh := make(chan outcome, 1)

	err := c.SendCmd(cmd, func(_ *extension.Env, res *envelope.Envelope, err error) {
		resCh <- outcome{res: res, err: err}
	})
	if err != nil {
		cmd.Release()
		return nil, err
	}
	out := <-resCh
	return out.res, out.err
}

// StartGraph submits a start_graph command carrying the JSON document
// and returns the assigned graph id from the reply's detail property.
func (c *Client) StartGraph(graphJSON string) (string, error) {
	cmd := envelope.NewCmd("start_graph")
	cmd.SetDests(envelope.Loc{})
	if err := cmd.SetProperty("graph_json", envelope.String(graphJSON)); err != nil {
		cmd.Release()
		return "", err
	}

	res, err := c.SendCmdAndWait(cmd)
	if err != nil {
		return "", err
	}
	defer res.Release()

	if res.Status() != envelope.StatusOK {
		msg, _ := res.GetPropertyString("error.message")
		return "", errors.Newf(errors.CodeGeneric, "start_graph failed: %s", msg)
	}
	return res.GetPropertyString("detail")
}

// CloseApp submits the privileged close_app command addressed to the
// app itself.
func (c *Client) CloseApp() error {
	cmd := envelope.NewCmd("close_app")
	cmd.SetDests(envelope.Loc{})
	if err := c.SendCmd(cmd, nil); err != nil {
		cmd.Release()
		return err
	}
	return nil
}
