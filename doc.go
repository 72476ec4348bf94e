// Package flowmesh is a runtime for composing dataflow applications
// out of independently developed extensions connected through a
// declared graph.
//
// # Architecture
//
// An app process hosts one or more graphs. Each graph is a set of
// extensions wired by typed message channels: commands with result
// streams, opaque data, audio frames and video frames. Extensions are
// grouped, and every group executes on its own single-threaded runloop;
// the runtime delivers messages between groups with defined ordering,
// cross-thread safety, ownership transfer and failure reporting.
//
// The packages map onto the moving parts:
//
//   - envelope: the typed message values, their property trees, the
//     refcounted ownership model and the msgpack wire codec
//   - runloop: the single-threaded task queue backing one group
//   - extension: the extension contract, the per-extension env façade,
//     the cross-thread EnvProxy and the result correlator
//   - graph: graph definitions, compiled connection tables, manifests
//   - addon: the factory registry extensions are instantiated through
//   - dispatch: graph-scoped routing and lifecycle orchestration
//   - app: the hosting process, privileged commands and the client
//   - tester: the harness bridging a test driver into a graph
//   - wire: the transport boundary (interfaces and framing only)
//   - metric: prometheus instrumentation
//   - errors: the code/message error model shared by everything
//
// # Threading model
//
// Extension callbacks run on their group's runloop and never block;
// later work resumes through posted tasks or an EnvProxy. Envelopes
// are the only values shared across runloops and are immutable once
// sent. Everything else is owned by exactly one loop.
package flowmesh
