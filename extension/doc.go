// Package extension defines the user-facing extension contract and its
// runtime façade.
//
// An extension is a unit of user code with lifecycle callbacks
// (configure, init, start, stop, deinit) and message handlers for the
// four routable envelope kinds. Every callback runs on the runloop of
// the extension's group; callbacks never block, they return and resume
// later work through posted tasks.
//
// The Env façade is how extension code talks back to the runtime:
// sending envelopes, returning results, acking lifecycle barriers and
// reading the instance property tree. Off-thread code reaches an env
// only through an EnvProxy, whose teardown barrier keeps the env alive
// until every proxy holder has released.
//
// The Correlator matches inbound command results to outstanding sends,
// with single-result and multi-result modes. Handlers always run on the
// originating env's runloop, and pending entries are flushed with a
// closed error when the extension deinitializes.
package extension
