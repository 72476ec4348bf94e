package graph

import (
	"encoding/json"

	"github.com/c360/flowmesh/envelope"
	"github.com/c360/flowmesh/errors"
)

// PropertyType declares the type of one manifest property.
type PropertyType struct {
	Type string `json:"type"`
}

// PropertySpec declares the typed properties of one api entry.
type PropertySpec struct {
	Properties map[string]PropertyType `json:"properties,omitempty"`
}

// APIEntry declares one named message in a manifest api block.
type APIEntry struct {
	Name     string        `json:"name"`
	Property *PropertySpec `json:"property,omitempty"`
}

// APISpec declares the message surface of an extension: which commands,
// data and frames it accepts and emits.
type APISpec struct {
	CmdIn         []APIEntry `json:"cmd_in,omitempty"`
	CmdOut        []APIEntry `json:"cmd_out,omitempty"`
	DataIn        []APIEntry `json:"data_in,omitempty"`
	DataOut       []APIEntry `json:"data_out,omitempty"`
	AudioFrameIn  []APIEntry `json:"audio_frame_in,omitempty"`
	AudioFrameOut []APIEntry `json:"audio_frame_out,omitempty"`
	VideoFrameIn  []APIEntry `json:"video_frame_in,omitempty"`
	VideoFrameOut []APIEntry `json:"video_frame_out,omitempty"`
}

// Manifest is the self-description of an extension or app package.
type Manifest struct {
	Type    string  `json:"type"`
	Name    string  `json:"name"`
	Version string  `json:"version"`
	API     APISpec `json:"api"`
}

// ParseManifest decodes a manifest document.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.WrapCode(errors.CodeInvalidArgument, err, "manifest decode failed")
	}
	if m.Type == "" || m.Name == "" {
		return nil, errors.New(errors.CodeInvalidArgument, "manifest requires type and name")
	}
	return &m, nil
}

func entriesFor(api *APISpec, kind envelope.Kind, inbound bool) []APIEntry {
	switch kind {
	case envelope.KindCmd:
		if inbound {
			return api.CmdIn
		}
		return api.CmdOut
	case envelope.KindData:
		if inbound {
			return api.DataIn
		}
		return api.DataOut
	case envelope.KindAudioFrame:
		if inbound {
			return api.AudioFrameIn
		}
		return api.AudioFrameOut
	case envelope.KindVideoFrame:
		if inbound {
			return api.VideoFrameIn
		}
		return api.VideoFrameOut
	default:
		return nil
	}
}

// AcceptsIn reports whether the manifest declares the named inbound
// message of the given kind. A manifest with no inbound entries for the
// kind accepts everything; declaring any entry makes the list exclusive.
func (m *Manifest) AcceptsIn(kind envelope.Kind, name string) bool {
	entries := entriesFor(&m.API, kind, true)
	if len(entries) == 0 {
		return true
	}
	for _, e := range entries {
		if e.Name == name {
			return true
		}
	}
	return false
}

// DeclaresOut reports whether the manifest declares the named outbound
// message, with the same open-unless-declared semantics as AcceptsIn.
func (m *Manifest) DeclaresOut(kind envelope.Kind, name string) bool {
	entries := entriesFor(&m.API, kind, false)
	if len(entries) == 0 {
		return true
	}
	for _, e := range entries {
		if e.Name == name {
			return true
		}
	}
	return false
}
