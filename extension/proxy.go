package extension

import (
	"sync"

	"github.com/c360/flowmesh/errors"
)

// EnvProxy is a cross-thread handle onto an extension env. It is created
// on the target env's runloop with a declared user count (the expected
// number of concurrent holders); each holder releases once. The target
// env cannot complete its deinit ack while any proxy remains, so a
// Notify racing with shutdown either executes before deinit or fails
// with closed.
type EnvProxy struct {
	env *Env

	mu    sync.Mutex
	users int
}

// NewEnvProxy creates a proxy onto env with the given user count. It
// fails with closed once the env has shut down.
func NewEnvProxy(env *Env, users int) (*EnvProxy, error) {
	if env == nil {
		return nil, errors.New(errors.CodeInvalidArgument, "nil env")
	}
	if users <= 0 {
		return nil, errors.New(errors.CodeInvalidArgument, "user count must be positive")
	}
	if err := env.proxyAcquired(users); err != nil {
		return nil, err
	}
	return &EnvProxy{env: env, users: users}, nil
}

// Notify schedules closure as a task on the target env's runloop; the
// closure receives the live env. Safe from any thread while the proxy
// is held.
func (p *EnvProxy) Notify(closure func(env *Env)) error {
	if closure == nil {
		return errors.New(errors.CodeInvalidArgument, "nil closure")
	}
	p.mu.Lock()
	released := p.users <= 0
	p.mu.Unlock()
	if released {
		return errors.New(errors.CodeInvalidState, "proxy already released")
	}
	if p.env.Closed() {
		return errors.ErrClosed
	}
	return p.env.loop.PostTaskTail(func() { closure(p.env) })
}

// Release drops one user's hold. When the last user releases, the
// env's deferred deinit ack (if any) completes.
func (p *EnvProxy) Release() error {
	p.mu.Lock()
	if p.users <= 0 {
		p.mu.Unlock()
		return errors.New(errors.CodeInvalidState, "proxy already released")
	}
	p.users--
	p.mu.Unlock()
	p.env.proxyReleased()
	return nil
}
