package graph

import (
	"github.com/c360/flowmesh/envelope"
)

type routeKey struct {
	srcExtension string
	kind         envelope.Kind
	name         string
}

// Table is the compiled connection table of one running graph: routes
// keyed by (source extension, message kind, message name) resolving to
// concrete destination locations in O(1). The table is built once at
// graph start and read-only afterwards, so resolution is pure with
// respect to a table instance.
type Table struct {
	graphID string
	appURI  string
	routes  map[routeKey][]envelope.Loc
}

// BuildTable compiles a definition's connections into the runtime
// table, stamping every destination with the graph id and app uri.
func BuildTable(def *Definition, graphID, appURI string) *Table {
	t := &Table{
		graphID: graphID,
		appURI:  appURI,
		routes:  map[routeKey][]envelope.Loc{},
	}
	if def == nil {
		return t
	}
	for _, c := range def.Connections {
		t.addRoutes(c.Extension, envelope.KindCmd, c.Cmd)
		t.addRoutes(c.Extension, envelope.KindData, c.Data)
		t.addRoutes(c.Extension, envelope.KindAudioFrame, c.AudioFrame)
		t.addRoutes(c.Extension, envelope.KindVideoFrame, c.VideoFrame)
	}
	return t
}

func (t *Table) addRoutes(src string, kind envelope.Kind, routes []Route) {
	for _, r := range routes {
		key := routeKey{srcExtension: src, kind: kind, name: r.Name}
		for _, dest := range r.Dest {
			app := dest.App
			if app == "" {
				app = t.appURI
			}
			t.routes[key] = append(t.routes[key], envelope.Loc{
				App:       app,
				Graph:     t.graphID,
				Extension: dest.Extension,
			})
		}
	}
}

// Resolve returns the destination list for a message of the given kind
// and name sent by src. A nil result means the route is not declared.
func (t *Table) Resolve(src envelope.Loc, kind envelope.Kind, name string) []envelope.Loc {
	return t.routes[routeKey{srcExtension: src.Extension, kind: kind, name: name}]
}

// GraphID returns the graph this table belongs to.
func (t *Table) GraphID() string { return t.graphID }
