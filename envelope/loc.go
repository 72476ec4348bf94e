package envelope

import "strings"

// Loc identifies a routing endpoint as an {app, graph, extension} triple.
// Every field is optional; an absent field means "same as the sender" for
// that dimension. The zero Loc addresses the sender's own app.
type Loc struct {
	App       string `json:"app,omitempty" msgpack:"app,omitempty"`
	Graph     string `json:"graph,omitempty" msgpack:"graph,omitempty"`
	Extension string `json:"extension,omitempty" msgpack:"extension,omitempty"`
}

// IsEmpty reports whether no field is set.
func (l Loc) IsEmpty() bool {
	return l.App == "" && l.Graph == "" && l.Extension == ""
}

// Equal reports whether every present field of both locs matches.
// An absent field on either side does not participate in the comparison.
func (l Loc) Equal(o Loc) bool {
	if l.App != "" && o.App != "" && l.App != o.App {
		return false
	}
	if l.Graph != "" && o.Graph != "" && l.Graph != o.Graph {
		return false
	}
	if l.Extension != "" && o.Extension != "" && l.Extension != o.Extension {
		return false
	}
	return true
}

// Same reports strict field-by-field equality, used for table keys.
func (l Loc) Same(o Loc) bool {
	return l == o
}

// ResolveAgainst fills absent fields from base, typically the sender's
// own location, yielding a fully concrete destination.
func (l Loc) ResolveAgainst(base Loc) Loc {
	out := l
	if out.App == "" {
		out.App = base.App
	}
	if out.Graph == "" {
		out.Graph = base.Graph
	}
	if out.Extension == "" {
		out.Extension = base.Extension
	}
	return out
}

// String renders the loc for logs as app/graph/extension with absent
// fields left blank.
func (l Loc) String() string {
	var b strings.Builder
	b.WriteString(l.App)
	b.WriteByte('/')
	b.WriteString(l.Graph)
	b.WriteByte('/')
	b.WriteString(l.Extension)
	return b.String()
}
