package envelope

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/c360/flowmesh/errors"
)

// Kind enumerates the envelope variants.
type Kind int

const (
	// KindInvalid is the zero kind.
	KindInvalid Kind = iota
	// KindCmd is a command expecting one or more results.
	KindCmd
	// KindCmdResult is a result answering a command.
	KindCmdResult
	// KindData is an opaque one-way payload.
	KindData
	// KindAudioFrame is a one-way PCM audio frame.
	KindAudioFrame
	// KindVideoFrame is a one-way video frame.
	KindVideoFrame
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindCmd:
		return "cmd"
	case KindCmdResult:
		return "result"
	case KindData:
		return "data"
	case KindAudioFrame:
		return "audio_frame"
	case KindVideoFrame:
		return "video_frame"
	default:
		return "invalid"
	}
}

// StatusCode is the outcome carried by a command result.
type StatusCode int

const (
	// StatusOK indicates success.
	StatusOK StatusCode = 0
	// StatusError indicates failure; details travel in properties.error.
	StatusError StatusCode = 1
)

// PixelFormat enumerates video frame pixel layouts.
type PixelFormat int

const (
	PixelFormatInvalid PixelFormat = iota
	PixelFormatRGB24
	PixelFormatRGBA
	PixelFormatBGR24
	PixelFormatBGRA
	PixelFormatI420
	PixelFormatNV12
	PixelFormatNV21
)

// DebugOwnershipChecks enables detection of envelope misuse that the
// ownership contract leaves undefined: mutation after a successful send,
// and mutation, clone or release after the last reference is released.
// Violations panic. Plain getters are not checked.
var DebugOwnershipChecks = true

// Envelope is the typed message value moved between extensions. All five
// variants share the common header (name, src, dests, properties,
// correlation id) plus variant-specific fields.
//
// An envelope is shared-owned: Clone takes a new strong reference to the
// same underlying envelope and Release drops one. Once an envelope has
// been successfully sent it is immutable; the sender's handle is dead.
type Envelope struct {
	kind  Kind
	name  string
	src   Loc
	dests []Loc
	props *Value

	correlationID string

	// cmd result fields
	status      StatusCode
	isFinal     bool
	isCompleted bool
	origCmdName string

	// data payload
	payload []byte

	// frame fields; timestamp is shared by audio and video
	timestamp  int64
	pcm        []byte
	sampleRate int32
	channels   int32
	layout     uint64

	pixels      []byte
	width       int32
	height      int32
	pixelFormat PixelFormat

	refs atomic.Int32
	sent atomic.Bool
}

func newEnvelope(kind Kind, name string) *Envelope {
	e := &Envelope{kind: kind, name: name, props: Object()}
	e.refs.Store(1)
	return e
}

// NewCmd creates a command envelope with the given name.
func NewCmd(name string) *Envelope { return newEnvelope(KindCmd, name) }

// NewData creates a data envelope with the given name.
func NewData(name string) *Envelope { return newEnvelope(KindData, name) }

// NewAudioFrame creates an audio frame envelope with the given name.
func NewAudioFrame(name string) *Envelope { return newEnvelope(KindAudioFrame, name) }

// NewVideoFrame creates a video frame envelope with the given name.
func NewVideoFrame(name string) *Envelope { return newEnvelope(KindVideoFrame, name) }

// NewCmdResult creates a result answering cmd. The correlation id,
// graph id and original source are captured from cmd so the correlator
// can route the response back to the originator. Results default to
// final and completed; streaming responders clear final per result.
func NewCmdResult(status StatusCode, cmd *Envelope) (*Envelope, error) {
	if cmd == nil || cmd.kind != KindCmd {
		return nil, errors.New(errors.CodeInvalidArgument, "result requires an originating cmd")
	}
	r := newEnvelope(KindCmdResult, cmd.name)
	r.origCmdName = cmd.name
	r.status = status
	r.isFinal = true
	r.isCompleted = true
	r.correlationID = cmd.correlationID
	if !cmd.src.IsEmpty() {
		r.dests = []Loc{cmd.src}
	}
	return r, nil
}

// Kind returns the envelope variant.
func (e *Envelope) Kind() Kind { return e.kind }

// Name returns the message name.
func (e *Envelope) Name() string { return e.name }

// Src returns the source location.
func (e *Envelope) Src() Loc { return e.src }

// Dests returns the destination list. The slice is owned by the envelope.
func (e *Envelope) Dests() []Loc { return e.dests }

// CorrelationID returns the correlation token, empty until assigned.
func (e *Envelope) CorrelationID() string { return e.correlationID }

// guardMutable panics under DebugOwnershipChecks when a mutation is
// attempted on an envelope the caller no longer owns.
func (e *Envelope) guardMutable() {
	if !DebugOwnershipChecks {
		return
	}
	if e.sent.Load() {
		panic("envelope: mutation after send")
	}
	if e.refs.Load() <= 0 {
		panic("envelope: use after release")
	}
}

// SetSrc overrides the source location.
func (e *Envelope) SetSrc(loc Loc) {
	e.guardMutable()
	e.src = loc
}

// SetDests replaces the destination list. Explicit destinations override
// the graph connection table at send time.
func (e *Envelope) SetDests(locs ...Loc) {
	e.guardMutable()
	e.dests = append([]Loc(nil), locs...)
}

// EnsureCorrelationID assigns a fresh correlation token if none is set
// and returns it. The runtime calls this on the send path of commands.
func (e *Envelope) EnsureCorrelationID() string {
	if e.correlationID == "" {
		e.guardMutable()
		e.correlationID = uuid.NewString()
	}
	return e.correlationID
}

// Status returns the result status code.
func (e *Envelope) Status() StatusCode { return e.status }

// IsFinal reports whether this result terminates its result stream.
func (e *Envelope) IsFinal() bool { return e.isFinal }

// IsCompleted reports whether the result stream finished normally.
// A final-but-not-completed result indicates failure mid-stream.
func (e *Envelope) IsCompleted() bool { return e.isCompleted }

// SetFinal marks whether this result terminates the stream. It may only
// be called while the result is still singly-owned and unsent.
func (e *Envelope) SetFinal(final bool) error {
	if e.kind != KindCmdResult {
		return errors.New(errors.CodeInvalidArgument, "set_final on non-result envelope")
	}
	if e.sent.Load() || e.refs.Load() != 1 {
		return errors.New(errors.CodeInvalidState, "result is no longer singly-owned")
	}
	e.isFinal = final
	if !final {
		e.isCompleted = false
	}
	return nil
}

// SetCompleted marks normal stream completion; completion implies final.
func (e *Envelope) SetCompleted(completed bool) error {
	if e.kind != KindCmdResult {
		return errors.New(errors.CodeInvalidArgument, "set_completed on non-result envelope")
	}
	if e.sent.Load() || e.refs.Load() != 1 {
		return errors.New(errors.CodeInvalidState, "result is no longer singly-owned")
	}
	e.isCompleted = completed
	if completed {
		e.isFinal = true
	}
	return nil
}

// Payload returns the data payload bytes.
func (e *Envelope) Payload() []byte { return e.payload }

// SetPayload stores the data payload bytes.
func (e *Envelope) SetPayload(b []byte) {
	e.guardMutable()
	e.payload = b
}

// Timestamp returns the frame timestamp in microseconds.
func (e *Envelope) Timestamp() int64 { return e.timestamp }

// SetTimestamp stores the frame timestamp in microseconds.
func (e *Envelope) SetTimestamp(ts int64) {
	e.guardMutable()
	e.timestamp = ts
}

// PCM returns the audio sample buffer.
func (e *Envelope) PCM() []byte { return e.pcm }

// SetPCM stores the audio sample buffer.
func (e *Envelope) SetPCM(b []byte) {
	e.guardMutable()
	e.pcm = b
}

// SampleRate returns the audio sample rate in Hz.
func (e *Envelope) SampleRate() int32 { return e.sampleRate }

// SetSampleRate stores the audio sample rate in Hz.
func (e *Envelope) SetSampleRate(r int32) {
	e.guardMutable()
	e.sampleRate = r
}

// Channels returns the audio channel count.
func (e *Envelope) Channels() int32 { return e.channels }

// SetChannels stores the audio channel count.
func (e *Envelope) SetChannels(n int32) {
	e.guardMutable()
	e.channels = n
}

// ChannelLayout returns the audio channel layout mask.
func (e *Envelope) ChannelLayout() uint64 { return e.layout }

// SetChannelLayout stores the audio channel layout mask.
func (e *Envelope) SetChannelLayout(l uint64) {
	e.guardMutable()
	e.layout = l
}

// Pixels returns the video pixel buffer.
func (e *Envelope) Pixels() []byte { return e.pixels }

// SetPixels stores the video pixel buffer.
func (e *Envelope) SetPixels(b []byte) {
	e.guardMutable()
	e.pixels = b
}

// Width returns the video frame width in pixels.
func (e *Envelope) Width() int32 { return e.width }

// SetWidth stores the video frame width in pixels.
func (e *Envelope) SetWidth(w int32) {
	e.guardMutable()
	e.width = w
}

// Height returns the video frame height in pixels.
func (e *Envelope) Height() int32 { return e.height }

// SetHeight stores the video frame height in pixels.
func (e *Envelope) SetHeight(h int32) {
	e.guardMutable()
	e.height = h
}

// PixelFormat returns the video pixel format.
func (e *Envelope) PixelFormat() PixelFormat { return e.pixelFormat }

// SetPixelFormat stores the video pixel format.
func (e *Envelope) SetPixelFormat(f PixelFormat) {
	e.guardMutable()
	e.pixelFormat = f
}

// GetProperty reads the value at a dot-separated path.
func (e *Envelope) GetProperty(path string) (*Value, error) {
	return GetPath(e.props, path)
}

// SetProperty stores a value at a dot-separated path, inserting
// intermediate objects as needed.
func (e *Envelope) SetProperty(path string, v *Value) error {
	e.guardMutable()
	if v == nil {
		return errors.New(errors.CodeInvalidArgument, "nil property value")
	}
	return SetPath(e.props, path, v)
}

// Properties returns the root property object.
func (e *Envelope) Properties() *Value { return e.props }

// GetPropertyString reads a string property.
func (e *Envelope) GetPropertyString(path string) (string, error) {
	v, err := e.GetProperty(path)
	if err != nil {
		return "", err
	}
	return v.AsString()
}

// GetPropertyInt reads a signed integer property widened to int64.
func (e *Envelope) GetPropertyInt(path string) (int64, error) {
	v, err := e.GetProperty(path)
	if err != nil {
		return 0, err
	}
	return v.AsInt()
}

// GetPropertyBool reads a boolean property.
func (e *Envelope) GetPropertyBool(path string) (bool, error) {
	v, err := e.GetProperty(path)
	if err != nil {
		return false, err
	}
	return v.AsBool()
}

// GetPropertyPtr reads an opaque pointer property.
func (e *Envelope) GetPropertyPtr(path string) (any, error) {
	v, err := e.GetProperty(path)
	if err != nil {
		return nil, err
	}
	return v.AsPtr()
}

// Clone takes a new strong reference to the same underlying envelope.
func (e *Envelope) Clone() *Envelope {
	if DebugOwnershipChecks && e.refs.Load() <= 0 {
		panic("envelope: clone after release")
	}
	e.refs.Add(1)
	return e
}

// Release drops one strong reference. The envelope is destroyed when the
// count reaches zero; further access is a programming error.
func (e *Envelope) Release() {
	n := e.refs.Add(-1)
	if DebugOwnershipChecks && n < 0 {
		panic("envelope: double release")
	}
}

// Refs returns the current strong reference count.
func (e *Envelope) Refs() int32 { return e.refs.Load() }

// MarkSent freezes the envelope after a successful ownership transfer.
// The runtime calls this on every successful send path.
func (e *Envelope) MarkSent() { e.sent.Store(true) }

// Sent reports whether the envelope has been successfully sent.
func (e *Envelope) Sent() bool { return e.sent.Load() }
