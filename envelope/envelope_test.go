package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flowmesh/errors"
)

func TestNewCmd(t *testing.T) {
	cmd := NewCmd("hello_world")
	defer cmd.Release()

	assert.Equal(t, KindCmd, cmd.Kind())
	assert.Equal(t, "hello_world", cmd.Name())
	assert.Equal(t, int32(1), cmd.Refs())
	assert.Empty(t, cmd.CorrelationID())
}

func TestEnsureCorrelationID(t *testing.T) {
	cmd := NewCmd("test")
	defer cmd.Release()

	id := cmd.EnsureCorrelationID()
	require.NotEmpty(t, id)
	assert.Equal(t, id, cmd.EnsureCorrelationID())
}

func TestCloneRelease(t *testing.T) {
	cmd := NewCmd("test")
	c := cmd.Clone()
	assert.Equal(t, int32(2), cmd.Refs())
	c.Release()
	assert.Equal(t, int32(1), cmd.Refs())
	cmd.Release()
	assert.Equal(t, int32(0), cmd.Refs())
}

func TestDoubleReleasePanics(t *testing.T) {
	cmd := NewCmd("test")
	cmd.Release()
	assert.Panics(t, func() { cmd.Release() })
}

func TestMutationAfterSendPanics(t *testing.T) {
	cmd := NewCmd("test")
	cmd.MarkSent()
	assert.Panics(t, func() { cmd.SetDests(Loc{Extension: "b"}) })
	assert.Panics(t, func() { _ = cmd.SetProperty("x", Int64(1)) })
}

func TestCmdResultFromCmd(t *testing.T) {
	cmd := NewCmd("hello_world")
	defer cmd.Release()
	cmd.SetSrc(Loc{Graph: "g1", Extension: "client"})
	id := cmd.EnsureCorrelationID()

	res, err := NewCmdResult(StatusOK, cmd)
	require.NoError(t, err)
	defer res.Release()

	assert.Equal(t, KindCmdResult, res.Kind())
	assert.Equal(t, id, res.CorrelationID())
	require.Len(t, res.Dests(), 1)
	assert.Equal(t, "client", res.Dests()[0].Extension)
	assert.True(t, res.IsFinal())
	assert.True(t, res.IsCompleted())
}

func TestCmdResultRequiresCmd(t *testing.T) {
	_, err := NewCmdResult(StatusOK, nil)
	assert.Equal(t, errors.CodeInvalidArgument, errors.CodeOf(err))

	data := NewData("d")
	defer data.Release()
	_, err = NewCmdResult(StatusOK, data)
	assert.Equal(t, errors.CodeInvalidArgument, errors.CodeOf(err))
}

func TestSetFinalRequiresSingleOwner(t *testing.T) {
	cmd := NewCmd("test")
	defer cmd.Release()
	res, err := NewCmdResult(StatusOK, cmd)
	require.NoError(t, err)

	require.NoError(t, res.SetFinal(false))
	assert.False(t, res.IsFinal())
	assert.False(t, res.IsCompleted())

	clone := res.Clone()
	err = res.SetFinal(true)
	assert.True(t, errors.IsInvalidState(err))
	clone.Release()

	require.NoError(t, res.SetCompleted(true))
	assert.True(t, res.IsFinal())
	res.Release()
}

func TestSetFinalAfterSendFails(t *testing.T) {
	cmd := NewCmd("test")
	defer cmd.Release()
	res, err := NewCmdResult(StatusOK, cmd)
	require.NoError(t, err)
	defer res.Release()

	res.MarkSent()
	assert.True(t, errors.IsInvalidState(res.SetFinal(false)))
}

func TestLocEqual(t *testing.T) {
	a := Loc{App: "msgpack://127.0.0.1:8001/", Graph: "g1", Extension: "a"}
	assert.True(t, a.Equal(Loc{Extension: "a"}))
	assert.True(t, a.Equal(Loc{Graph: "g1"}))
	assert.False(t, a.Equal(Loc{Extension: "b"}))
	assert.True(t, Loc{}.Equal(a))
}

func TestLocResolveAgainst(t *testing.T) {
	base := Loc{App: "uri", Graph: "g1", Extension: "sender"}
	dest := Loc{Extension: "receiver"}

	got := dest.ResolveAgainst(base)
	assert.Equal(t, Loc{App: "uri", Graph: "g1", Extension: "receiver"}, got)
}

func TestAudioFrameFields(t *testing.T) {
	f := NewAudioFrame("audio_frame")
	defer f.Release()

	f.SetPCM([]byte{1, 2, 3, 4})
	f.SetSampleRate(16000)
	f.SetChannels(1)
	f.SetTimestamp(123456)

	assert.Equal(t, []byte{1, 2, 3, 4}, f.PCM())
	assert.Equal(t, int32(16000), f.SampleRate())
	assert.Equal(t, int32(1), f.Channels())
	assert.Equal(t, int64(123456), f.Timestamp())
}

func TestVideoFrameFields(t *testing.T) {
	f := NewVideoFrame("video_frame")
	defer f.Release()

	f.SetPixels(make([]byte, 16))
	f.SetWidth(2)
	f.SetHeight(2)
	f.SetPixelFormat(PixelFormatRGBA)

	assert.Equal(t, int32(2), f.Width())
	assert.Equal(t, int32(2), f.Height())
	assert.Equal(t, PixelFormatRGBA, f.PixelFormat())
}

func TestOpaquePtrProperty(t *testing.T) {
	payload := int32(12344321)
	cmd := NewCmd("test")
	defer cmd.Release()

	require.NoError(t, cmd.SetProperty("test data", Ptr(&payload)))

	p, err := cmd.GetPropertyPtr("test data")
	require.NoError(t, err)
	got, ok := p.(*int32)
	require.True(t, ok)
	assert.Equal(t, int32(12344321), *got)
}
