package tester

import (
	"github.com/c360/flowmesh/envelope"
	"github.com/c360/flowmesh/errors"
	"github.com/c360/flowmesh/extension"
)

// ResultHandler receives results for a tester-issued command, on the
// tester runloop.
type ResultHandler func(env *EnvTester, result *envelope.Envelope, err error)

// EnvTester mirrors the extension send surface for test code. Every
// send is posted as a task onto the bridge extension's runloop, where
// it enters the graph through the ordinary dispatch path; handlers and
// forwarded messages come back on the tester runloop.
type EnvTester struct {
	harness *Harness
	bridge  *extension.Env
}

// TargetLoc returns the location of the extension under test, the
// default destination for tester sends.
func (e *EnvTester) TargetLoc() envelope.Loc {
	loc := e.bridge.Loc()
	loc.Extension = targetExtensionName
	return loc
}

// wrap adapts a tester handler so it fires on the tester runloop.
func (e *EnvTester) wrap(onResult ResultHandler) extension.ResultHandler {
	if onResult == nil {
		return nil
	}
	return func(_ *extension.Env, result *envelope.Envelope, err error) {
		if postErr := e.harness.testerLoop.PostTaskTail(func() {
			onResult(e, result, err)
		}); postErr != nil && result != nil {
			result.Release()
		}
	}
}

func (e *EnvTester) post(fn func()) error {
	return e.bridge.Loop().PostTaskTail(fn)
}

// defaultDests points a tester envelope at the extension under test
// when the tester set no explicit destination.
func (e *EnvTester) defaultDests(msg *envelope.Envelope) {
	if len(msg.Dests()) == 0 {
		msg.SetDests(e.TargetLoc())
	}
}

// SendCmd transfers cmd into the graph with single-result semantics.
// Send failures surface through onResult, since the actual send happens
// on the bridge runloop.
func (e *EnvTester) SendCmd(cmd *envelope.Envelope, onResult ResultHandler) error {
	if cmd == nil || cmd.Kind() != envelope.KindCmd {
		return errors.New(errors.CodeInvalidArgument, "expected cmd envelope")
	}
	e.defaultDests(cmd)
	handler := e.wrap(onResult)
	return e.post(func() {
		if err := e.bridge.SendCmd(cmd, handler); err != nil {
			cmd.Release()
			if handler != nil {
				handler(nil, nil, err)
			}
		}
	})
}

// SendCmdEx transfers cmd with multi-result semantics.
func (e *EnvTester) SendCmdEx(cmd *envelope.Envelope, onResult ResultHandler) error {
	if cmd == nil || cmd.Kind() != envelope.KindCmd {
		return errors.New(errors.CodeInvalidArgument, "expected cmd envelope")
	}
	e.defaultDests(cmd)
	handler := e.wrap(onResult)
	return e.post(func() {
		if err := e.bridge.SendCmdEx(cmd, handler); err != nil {
			cmd.Release()
			if handler != nil {
				handler(nil, nil, err)
			}
		}
	})
}

func (e *EnvTester) sendOneWay(msg *envelope.Envelope, want envelope.Kind,
	send func(*envelope.Envelope) error) error {
	if msg == nil || msg.Kind() != want {
		return errors.Newf(errors.CodeInvalidArgument, "expected %s envelope", want)
	}
	e.defaultDests(msg)
	return e.post(func() {
		if err := send(msg); err != nil {
			msg.Release()
		}
	})
}

// SendData transfers a data envelope one-way into the graph.
func (e *EnvTester) SendData(data *envelope.Envelope) error {
	return e.sendOneWay(data, envelope.KindData, e.bridge.SendData)
}

// SendAudioFrame transfers an audio frame one-way into the graph.
func (e *EnvTester) SendAudioFrame(frame *envelope.Envelope) error {
	return e.sendOneWay(frame, envelope.KindAudioFrame, e.bridge.SendAudioFrame)
}

// SendVideoFrame transfers a video frame one-way into the graph.
func (e *EnvTester) SendVideoFrame(frame *envelope.Envelope) error {
	return e.sendOneWay(frame, envelope.KindVideoFrame, e.bridge.SendVideoFrame)
}

// ReturnResult answers a command previously forwarded to the tester.
func (e *EnvTester) ReturnResult(result *envelope.Envelope) error {
	if result == nil || result.Kind() != envelope.KindCmdResult {
		return errors.New(errors.CodeInvalidArgument, "expected result envelope")
	}
	return e.post(func() {
		if err := e.bridge.ReturnResult(result); err != nil {
			result.Release()
		}
	})
}

// SetMsgSource overrides the source loc prior to send.
func (e *EnvTester) SetMsgSource(msg *envelope.Envelope, loc envelope.Loc) error {
	if msg == nil {
		return errors.New(errors.CodeInvalidArgument, "nil envelope")
	}
	msg.SetSrc(loc)
	return nil
}

// StopTest ends the run with the given verdict; nil passes. The first
// call wins.
func (e *EnvTester) StopTest(verdict error) {
	select {
	case e.harness.verdict <- verdict:
	default:
	}
}
