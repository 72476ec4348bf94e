package extension

import "github.com/c360/flowmesh/envelope"

// Extension is a user-written unit with lifecycle callbacks and message
// handlers. Every callback runs on the runloop of the extension's group
// and must return rather than block; later work resumes through posted
// tasks or an EnvProxy.
//
// Lifecycle callbacks must acknowledge through the matching env ack
// (env.OnConfigureDone and friends) before the graph can progress.
// Message handlers receive one strong reference to the envelope and
// must release it; an envelope fanned out to several destinations is
// shared by all of them and is frozen against mutation.
type Extension interface {
	OnConfigure(env *Env)
	OnInit(env *Env)
	OnStart(env *Env)
	OnStop(env *Env)
	OnDeinit(env *Env)

	OnCmd(env *Env, cmd *envelope.Envelope)
	OnData(env *Env, data *envelope.Envelope)
	OnAudioFrame(env *Env, frame *envelope.Envelope)
	OnVideoFrame(env *Env, frame *envelope.Envelope)
}

// DefaultExtension is a no-op Extension that acks every lifecycle stage
// immediately and releases every inbound message unhandled. Embed it and
// override the callbacks that matter.
type DefaultExtension struct{}

// OnConfigure acks immediately.
func (DefaultExtension) OnConfigure(env *Env) { _ = env.OnConfigureDone() }

// OnInit acks immediately.
func (DefaultExtension) OnInit(env *Env) { _ = env.OnInitDone() }

// OnStart acks immediately.
func (DefaultExtension) OnStart(env *Env) { _ = env.OnStartDone() }

// OnStop acks immediately.
func (DefaultExtension) OnStop(env *Env) { _ = env.OnStopDone() }

// OnDeinit acks immediately.
func (DefaultExtension) OnDeinit(env *Env) { _ = env.OnDeinitDone() }

// OnCmd drops the command.
func (DefaultExtension) OnCmd(_ *Env, cmd *envelope.Envelope) { cmd.Release() }

// OnData drops the payload.
func (DefaultExtension) OnData(_ *Env, data *envelope.Envelope) { data.Release() }

// OnAudioFrame drops the frame.
func (DefaultExtension) OnAudioFrame(_ *Env, frame *envelope.Envelope) { frame.Release() }

// OnVideoFrame drops the frame.
func (DefaultExtension) OnVideoFrame(_ *Env, frame *envelope.Envelope) { frame.Release() }
