package envelope

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/c360/flowmesh/errors"
)

// Wire format: each envelope is one msgpack map with a "type" discriminator,
// the common header, and the variant fields that apply. Property values are
// encoded as [kind, payload] pairs so declared integer widths survive the
// round trip exactly.

var (
	_ msgpack.CustomEncoder = (*Value)(nil)
	_ msgpack.CustomDecoder = (*Value)(nil)
)

// EncodeMsgpack implements msgpack.CustomEncoder. Opaque pointer values
// are not transportable and fail the encode.
func (v *Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	if v.kind == KindPtr {
		return errors.New(errors.CodeInvalidArgument, "ptr property cannot cross a process boundary")
	}
	if err := enc.EncodeArrayLen(2); err != nil {
		return err
	}
	if err := enc.EncodeInt(int64(v.kind)); err != nil {
		return err
	}
	switch v.kind {
	case KindNull:
		return enc.EncodeNil()
	case KindBool:
		return enc.EncodeBool(v.b)
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return enc.EncodeInt(v.i)
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return enc.EncodeUint(v.u)
	case KindFloat32:
		return enc.EncodeFloat32(float32(v.f))
	case KindFloat64:
		return enc.EncodeFloat64(v.f)
	case KindString:
		return enc.EncodeString(v.s)
	case KindBytes:
		return enc.EncodeBytes(v.buf)
	case KindArray:
		if err := enc.EncodeArrayLen(len(v.arr)); err != nil {
			return err
		}
		for _, item := range v.arr {
			if err := item.EncodeMsgpack(enc); err != nil {
				return err
			}
		}
		return nil
	case KindObject:
		if err := enc.EncodeMapLen(len(v.obj)); err != nil {
			return err
		}
		for k, item := range v.obj {
			if err := enc.EncodeString(k); err != nil {
				return err
			}
			if err := item.EncodeMsgpack(enc); err != nil {
				return err
			}
		}
		return nil
	default:
		return errors.Newf(errors.CodeInvalidArgument, "cannot encode %s value", v.kind)
	}
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (v *Value) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n != 2 {
		return errors.Newf(errors.CodeInvalidArgument, "malformed value encoding: array len %d", n)
	}
	k, err := dec.DecodeInt64()
	if err != nil {
		return err
	}
	v.kind = ValueKind(k)
	switch v.kind {
	case KindNull:
		return dec.DecodeNil()
	case KindBool:
		v.b, err = dec.DecodeBool()
		return err
	case KindInt8, KindInt16, KindInt32, KindInt64:
		v.i, err = dec.DecodeInt64()
		return err
	case KindUint8, KindUint16, KindUint32, KindUint64:
		v.u, err = dec.DecodeUint64()
		return err
	case KindFloat32:
		f, err := dec.DecodeFloat32()
		v.f = float64(f)
		return err
	case KindFloat64:
		v.f, err = dec.DecodeFloat64()
		return err
	case KindString:
		v.s, err = dec.DecodeString()
		return err
	case KindBytes:
		v.buf, err = dec.DecodeBytes()
		return err
	case KindArray:
		length, err := dec.DecodeArrayLen()
		if err != nil {
			return err
		}
		v.arr = make([]*Value, length)
		for i := range v.arr {
			item := &Value{}
			if err := item.DecodeMsgpack(dec); err != nil {
				return err
			}
			v.arr[i] = item
		}
		return nil
	case KindObject:
		length, err := dec.DecodeMapLen()
		if err != nil {
			return err
		}
		v.obj = make(map[string]*Value, length)
		for i := 0; i < length; i++ {
			key, err := dec.DecodeString()
			if err != nil {
				return err
			}
			item := &Value{}
			if err := item.DecodeMsgpack(dec); err != nil {
				return err
			}
			v.obj[key] = item
		}
		return nil
	default:
		return errors.Newf(errors.CodeInvalidArgument, "cannot decode value kind %d", k)
	}
}

type wireFrame struct {
	Type          string `msgpack:"type"`
	Name          string `msgpack:"name"`
	Src           Loc    `msgpack:"src"`
	Dests         []Loc  `msgpack:"dests"`
	Properties    *Value `msgpack:"properties"`
	CorrelationID []byte `msgpack:"correlation_id,omitempty"`

	StatusCode  *int  `msgpack:"status_code,omitempty"`
	IsFinal     *bool `msgpack:"is_final,omitempty"`
	IsCompleted *bool `msgpack:"is_completed,omitempty"`

	Payload []byte `msgpack:"payload,omitempty"`

	Timestamp  int64  `msgpack:"timestamp,omitempty"`
	SampleRate int32  `msgpack:"sample_rate,omitempty"`
	Channels   int32  `msgpack:"channels,omitempty"`
	Layout     uint64 `msgpack:"layout,omitempty"`
	Width      int32  `msgpack:"width,omitempty"`
	Height     int32  `msgpack:"height,omitempty"`
	PixelFmt   int    `msgpack:"pixel_format,omitempty"`
}

func kindFromWire(t string) (Kind, error) {
	switch t {
	case "cmd":
		return KindCmd, nil
	case "result":
		return KindCmdResult, nil
	case "data":
		return KindData, nil
	case "audio_frame":
		return KindAudioFrame, nil
	case "video_frame":
		return KindVideoFrame, nil
	default:
		return KindInvalid, errors.Newf(errors.CodeInvalidArgument, "unknown frame type %q", t)
	}
}

// wirePayload selects the variant's binary body for the shared frame slot.
func (e *Envelope) wirePayload() []byte {
	switch e.kind {
	case KindAudioFrame:
		return e.pcm
	case KindVideoFrame:
		return e.pixels
	default:
		return e.payload
	}
}

// ToBytes serializes the envelope into one wire frame. Property trees
// holding opaque pointers are not transportable.
func (e *Envelope) ToBytes() ([]byte, error) {
	if e.props.ContainsPtr() {
		return nil, errors.New(errors.CodeInvalidArgument, "ptr property cannot cross a process boundary")
	}
	f := wireFrame{
		Type:       e.kind.String(),
		Name:       e.name,
		Src:        e.src,
		Dests:      e.dests,
		Properties: e.props,
		Payload:    e.wirePayload(),
		Timestamp:  e.timestamp,
		SampleRate: e.sampleRate,
		Channels:   e.channels,
		Layout:     e.layout,
		Width:      e.width,
		Height:     e.height,
		PixelFmt:   int(e.pixelFormat),
	}
	if e.correlationID != "" {
		f.CorrelationID = []byte(e.correlationID)
	}
	if e.kind == KindCmdResult {
		status := int(e.status)
		final := e.isFinal
		completed := e.isCompleted
		f.StatusCode = &status
		f.IsFinal = &final
		f.IsCompleted = &completed
	}
	b, err := msgpack.Marshal(&f)
	if err != nil {
		return nil, errors.WrapCode(errors.CodeInvalidArgument, err, "envelope encode failed")
	}
	return b, nil
}

// FromBytes deserializes one wire frame into a fresh singly-owned envelope.
func FromBytes(b []byte) (*Envelope, error) {
	var f wireFrame
	if err := msgpack.Unmarshal(b, &f); err != nil {
		return nil, errors.WrapCode(errors.CodeInvalidArgument, err, "envelope decode failed")
	}
	kind, err := kindFromWire(f.Type)
	if err != nil {
		return nil, err
	}
	e := newEnvelope(kind, f.Name)
	e.src = f.Src
	e.dests = f.Dests
	if f.Properties != nil {
		e.props = f.Properties
	}
	e.correlationID = string(f.CorrelationID)
	if f.StatusCode != nil {
		e.status = StatusCode(*f.StatusCode)
	}
	if f.IsFinal != nil {
		e.isFinal = *f.IsFinal
	}
	if f.IsCompleted != nil {
		e.isCompleted = *f.IsCompleted
	}
	e.payload = f.Payload
	e.timestamp = f.Timestamp
	e.pcm = nil
	if kind == KindAudioFrame {
		e.pcm = f.Payload
		e.payload = nil
	}
	e.sampleRate = f.SampleRate
	e.channels = f.Channels
	e.layout = f.Layout
	if kind == KindVideoFrame {
		e.pixels = f.Payload
		e.payload = nil
	}
	e.width = f.Width
	e.height = f.Height
	e.pixelFormat = PixelFormat(f.PixelFmt)
	return e, nil
}
