// Package tester embeds a bridge extension into a graph so test code
// living on its own runloop can observe and drive the full dispatch
// contract from outside any extension thread.
//
// The bridge is symmetric: inbound messages to the bridge extension are
// forwarded onto the tester runloop, and the tester's sends are posted
// back onto the bridge extension's runloop where they enter the graph
// through the ordinary send path. The tester ends the run with
// StopTest; Run returns that verdict.
package tester

import (
	"sync"

	"github.com/c360/flowmesh/envelope"
)

// Tester is the user-written test driver. Callbacks run on the tester
// runloop, never on a graph runloop. Message handlers own the envelope
// they receive.
type Tester interface {
	OnStart(env *EnvTester)
	OnStop(env *EnvTester)
	OnCmd(env *EnvTester, cmd *envelope.Envelope)
	OnData(env *EnvTester, data *envelope.Envelope)
	OnAudioFrame(env *EnvTester, frame *envelope.Envelope)
	OnVideoFrame(env *EnvTester, frame *envelope.Envelope)
}

// DefaultTester is a no-op Tester; embed it and override what matters.
type DefaultTester struct{}

// OnStart does nothing.
func (DefaultTester) OnStart(*EnvTester) {}

// OnStop does nothing.
func (DefaultTester) OnStop(*EnvTester) {}

// OnCmd drops the command.
func (DefaultTester) OnCmd(_ *EnvTester, cmd *envelope.Envelope) { cmd.Release() }

// OnData drops the payload.
func (DefaultTester) OnData(_ *EnvTester, data *envelope.Envelope) { data.Release() }

// OnAudioFrame drops the frame.
func (DefaultTester) OnAudioFrame(_ *EnvTester, frame *envelope.Envelope) { frame.Release() }

// OnVideoFrame drops the frame.
func (DefaultTester) OnVideoFrame(_ *EnvTester, frame *envelope.Envelope) { frame.Release() }

// Registry maps running graph ids to their testers. The harness owns
// one; nothing is smuggled through properties.
type Registry struct {
	mu      sync.RWMutex
	testers map[string]Tester
}

// NewRegistry creates an empty tester registry.
func NewRegistry() *Registry {
	return &Registry{testers: map[string]Tester{}}
}

// Attach binds a tester to a graph id.
func (r *Registry) Attach(graphID string, t Tester) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.testers[graphID] = t
}

// Detach removes the binding.
func (r *Registry) Detach(graphID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.testers, graphID)
}

// Lookup returns the tester driving the graph, or nil.
func (r *Registry) Lookup(graphID string) Tester {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.testers[graphID]
}
