// Package dispatch is the graph-scoped routing and lifecycle core.
//
// The Dispatcher holds, per running graph, an extension table keyed by
// extension name, a compiled connection table keyed by (source, kind,
// name), and the addon registry extensions are instantiated through.
// Outbound envelopes resolve to concrete destinations in O(1): explicit
// destinations override the connection table (validated against it for
// in-graph senders; external drivers route freely), and each resolved
// destination receives its own cloned strong reference as a task on the
// target's runloop. Resolution to zero destinations fails the send
// synchronously with msg_not_connected.
//
// Graph lifecycle is joined from member acks: every member must ack
// on_init_done before any member sees on_start, started requires every
// member started, and teardown runs stop then deinit across all members
// before the group runloops are dismantled.
package dispatch
