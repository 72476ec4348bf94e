// Package wire defines the transport boundary: length-prefixed msgpack
// envelope frames and the Transport interface a concrete client (for
// example a msgpack/TCP binding) plugs into. The runtime itself never
// opens sockets; it speaks to transports through these interfaces only.
package wire

import (
	"encoding/binary"
	"io"

	"github.com/c360/flowmesh/envelope"
	"github.com/c360/flowmesh/errors"
)

// MaxFrameSize bounds a single frame; anything larger is rejected as
// malformed rather than buffered.
const MaxFrameSize = 64 << 20

// Transport moves envelopes between this app and a remote peer. A
// failed Send leaves envelope ownership with the caller.
type Transport interface {
	// Send transfers one envelope to the peer.
	Send(e *envelope.Envelope) error
	// Receive blocks for the next inbound envelope.
	Receive() (*envelope.Envelope, error)
	// Close tears the connection down; pending Receives fail closed.
	Close() error
}

// WriteFrame encodes one envelope as a length-prefixed frame.
func WriteFrame(w io.Writer, e *envelope.Envelope) error {
	body, err := e.ToBytes()
	if err != nil {
		return err
	}
	if len(body) > MaxFrameSize {
		return errors.Newf(errors.CodeInvalidArgument, "frame of %d bytes exceeds limit", len(body))
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))
	if _, err := w.Write(prefix[:]); err != nil {
		return errors.WrapCode(errors.CodeClosed, err, "frame write failed")
	}
	if _, err := w.Write(body); err != nil {
		return errors.WrapCode(errors.CodeClosed, err, "frame write failed")
	}
	return nil
}

// ReadFrame decodes the next length-prefixed frame into a fresh
// envelope.
func ReadFrame(r io.Reader) (*envelope.Envelope, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, errors.WrapCode(errors.CodeClosed, err, "frame read failed")
	}
	size := binary.BigEndian.Uint32(prefix[:])
	if size > MaxFrameSize {
		return nil, errors.Newf(errors.CodeInvalidArgument, "frame of %d bytes exceeds limit", size)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, errors.WrapCode(errors.CodeClosed, err, "frame read failed")
	}
	return envelope.FromBytes(body)
}
