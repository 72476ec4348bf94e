package extension

import (
	"sync"
	"time"

	"github.com/c360/flowmesh/envelope"
	"github.com/c360/flowmesh/errors"
)

// ResultMode selects how many results a correlator entry surfaces.
type ResultMode int

const (
	// ResultModeSingle surfaces only the final result, exactly once.
	ResultModeSingle ResultMode = iota
	// ResultModeMulti surfaces every result; the entry is retained
	// until a final result arrives.
	ResultModeMulti
)

// ResultHandler receives results for an outbound command. It always
// executes on the originating extension's runloop. On runtime shutdown
// the handler fires once with a nil result and a closed error.
type ResultHandler func(env *Env, result *envelope.Envelope, err error)

type correlatorEntry struct {
	handler   ResultHandler
	mode      ResultMode
	createdAt time.Time
	origin    envelope.Loc
}

// Correlator matches inbound command results to outstanding commands.
// One correlator belongs to one extension env; handlers run on that
// env's runloop. Neither a command nor its handler hold a reference to
// the other: the id-keyed table is the only link.
type Correlator struct {
	mu      sync.Mutex
	entries map[string]*correlatorEntry
}

// NewCorrelator creates an empty correlator.
func NewCorrelator() *Correlator {
	return &Correlator{entries: map[string]*correlatorEntry{}}
}

// Register records an outstanding command. Registering an id twice is
// an invalid state: one correlation id maps to one result stream.
func (c *Correlator) Register(id string, handler ResultHandler, mode ResultMode, origin envelope.Loc) error {
	if id == "" {
		return errors.New(errors.CodeInvalidArgument, "empty correlation id")
	}
	if handler == nil {
		return errors.New(errors.CodeInvalidArgument, "nil result handler")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[id]; ok {
		return errors.Newf(errors.CodeInvalidState, "correlation id %s already registered", id)
	}
	c.entries[id] = &correlatorEntry{
		handler:   handler,
		mode:      mode,
		createdAt: time.Now(),
		origin:    origin,
	}
	return nil
}

// Remove drops an entry without firing its handler. Used when a send
// fails after the entry was created; the synchronous failure is the
// caller's signal.
func (c *Correlator) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// Deliver routes one inbound result. In single mode non-final results
// are dropped and the handler fires exactly once, on the final result.
// In multi mode the handler fires on every result and the entry is
// retained until a final result arrives. Results with no matching entry
// are dropped: the stream already finished or was never registered.
// Deliver must be called on the owning env's runloop.
func (c *Correlator) Deliver(env *Env, result *envelope.Envelope) {
	id := result.CorrelationID()

	c.mu.Lock()
	entry, ok := c.entries[id]
	if ok && result.IsFinal() {
		delete(c.entries, id)
	}
	c.mu.Unlock()

	if !ok {
		result.Release()
		return
	}

	if entry.mode == ResultModeSingle && !result.IsFinal() {
		result.Release()
		return
	}

	entry.handler(env, result, nil)
}

// CancelAll fires every outstanding handler once with a nil result and
// a closed error, then clears the table. Called when the owning
// extension deinitializes with entries still open.
func (c *Correlator) CancelAll(env *Env) {
	c.mu.Lock()
	pending := c.entries
	c.entries = map[string]*correlatorEntry{}
	c.mu.Unlock()

	for _, entry := range pending {
		entry.handler(env, nil, errors.ErrClosed)
	}
}

// Len returns the number of outstanding entries.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
