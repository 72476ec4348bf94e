// Package graph models a graph topology: nodes (extension instances
// bound to addons and groups) plus connections (typed routes between
// them), the connection table the dispatcher resolves against, and the
// manifest each extension declares its message api with.
package graph

import (
	"encoding/json"
	"fmt"

	"github.com/c360/flowmesh/errors"
)

// Dest is one routing target inside a connection route.
type Dest struct {
	App       string `json:"app,omitempty"`
	Extension string `json:"extension"`
}

// Route binds one message name to its destination list.
type Route struct {
	Name string `json:"name"`
	Dest []Dest `json:"dest"`
}

// Node declares one extension instance: which addon creates it, which
// group schedules it, and its instance property block.
type Node struct {
	Type           string         `json:"type"`
	Name           string         `json:"name"`
	Addon          string         `json:"addon"`
	ExtensionGroup string         `json:"extension_group"`
	App            string         `json:"app,omitempty"`
	Property       map[string]any `json:"property,omitempty"`
}

// Connection declares the outbound routes of one source extension,
// grouped by message kind.
type Connection struct {
	App        string  `json:"app,omitempty"`
	Extension  string  `json:"extension"`
	Cmd        []Route `json:"cmd,omitempty"`
	Data       []Route `json:"data,omitempty"`
	AudioFrame []Route `json:"audio_frame,omitempty"`
	VideoFrame []Route `json:"video_frame,omitempty"`
}

// Definition is the payload of a start_graph command: the nodes to
// instantiate and the connections to route along.
type Definition struct {
	Nodes       []Node       `json:"nodes"`
	Connections []Connection `json:"connections"`
}

// Parse decodes and validates a graph definition document.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, errors.WrapCode(errors.CodeInvalidArgument, err, "graph definition decode failed")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks structural consistency: node kinds and names, and
// that every connection endpoint names a declared node.
func (d *Definition) Validate() error {
	if len(d.Nodes) == 0 {
		return errors.New(errors.CodeInvalidArgument, "graph has no nodes")
	}
	names := map[string]struct{}{}
	for i, n := range d.Nodes {
		if n.Type != "extension" {
			return errors.Newf(errors.CodeInvalidArgument, "node %d has unsupported type %q", i, n.Type)
		}
		if n.Name == "" || n.Addon == "" {
			return errors.Newf(errors.CodeInvalidArgument, "node %d is missing name or addon", i)
		}
		if _, dup := names[n.Name]; dup {
			return errors.Newf(errors.CodeInvalidArgument, "duplicate node name %q", n.Name)
		}
		names[n.Name] = struct{}{}
	}
	for _, c := range d.Connections {
		if _, ok := names[c.Extension]; !ok {
			return errors.Newf(errors.CodeInvalidArgument, "connection source %q is not a node", c.Extension)
		}
		for _, routes := range [][]Route{c.Cmd, c.Data, c.AudioFrame, c.VideoFrame} {
			for _, r := range routes {
				if r.Name == "" {
					return errors.Newf(errors.CodeInvalidArgument,
						"connection from %q has a route with no name", c.Extension)
				}
				for _, dest := range r.Dest {
					if _, ok := names[dest.Extension]; !ok {
						return errors.Newf(errors.CodeInvalidArgument,
							"route %q from %q targets unknown extension %q", r.Name, c.Extension, dest.Extension)
					}
				}
			}
		}
	}
	return nil
}

// Node returns the named node, or nil.
func (d *Definition) Node(name string) *Node {
	for i := range d.Nodes {
		if d.Nodes[i].Name == name {
			return &d.Nodes[i]
		}
	}
	return nil
}

// Groups returns the distinct extension group names in declaration
// order. Nodes with no group fall into the default group.
func (d *Definition) Groups() []string {
	var out []string
	seen := map[string]struct{}{}
	for _, n := range d.Nodes {
		g := n.GroupName()
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}

// GroupName returns the node's scheduling group, defaulting when the
// declaration omits one.
func (n *Node) GroupName() string {
	if n.ExtensionGroup == "" {
		return "default_extension_group"
	}
	return n.ExtensionGroup
}

// String renders a short description for logs.
func (d *Definition) String() string {
	return fmt.Sprintf("graph{nodes: %d, connections: %d}", len(d.Nodes), len(d.Connections))
}
