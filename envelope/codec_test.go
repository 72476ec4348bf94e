package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flowmesh/errors"
)

func roundTrip(t *testing.T, e *Envelope) *Envelope {
	t.Helper()
	b, err := e.ToBytes()
	require.NoError(t, err)
	out, err := FromBytes(b)
	require.NoError(t, err)
	return out
}

func TestCmdRoundTrip(t *testing.T) {
	cmd := NewCmd("hello_world")
	defer cmd.Release()
	cmd.SetSrc(Loc{App: "msgpack://127.0.0.1:8001/", Graph: "g1", Extension: "client"})
	cmd.SetDests(Loc{Extension: "test_extension_1"})
	cmd.EnsureCorrelationID()
	require.NoError(t, cmd.SetProperty("detail", String("hello")))
	require.NoError(t, cmd.SetProperty("nested.count", Int32(3)))

	out := roundTrip(t, cmd)
	defer out.Release()

	assert.Equal(t, KindCmd, out.Kind())
	assert.Equal(t, "hello_world", out.Name())
	assert.Equal(t, cmd.Src(), out.Src())
	assert.Equal(t, cmd.Dests(), out.Dests())
	assert.Equal(t, cmd.CorrelationID(), out.CorrelationID())
	assert.True(t, cmd.Properties().EqualValue(out.Properties()))
}

func TestResultRoundTrip(t *testing.T) {
	cmd := NewCmd("hello_world")
	defer cmd.Release()
	cmd.SetSrc(Loc{Extension: "client"})
	cmd.EnsureCorrelationID()

	res, err := NewCmdResult(StatusError, cmd)
	require.NoError(t, err)
	defer res.Release()
	require.NoError(t, res.SetFinal(false))

	out := roundTrip(t, res)
	defer out.Release()

	assert.Equal(t, KindCmdResult, out.Kind())
	assert.Equal(t, StatusError, out.Status())
	assert.False(t, out.IsFinal())
	assert.False(t, out.IsCompleted())
	assert.Equal(t, cmd.CorrelationID(), out.CorrelationID())
}

// Serialization is a bijection on non-pointer property trees: every kind
// and width decodes back to exactly the value that was encoded.
func TestPropertyTreeBijection(t *testing.T) {
	root := Object()
	require.NoError(t, root.Set("null", Null()))
	require.NoError(t, root.Set("bool", Bool(true)))
	require.NoError(t, root.Set("i8", Int8(-8)))
	require.NoError(t, root.Set("i16", Int16(-16)))
	require.NoError(t, root.Set("i32", Int32(-32)))
	require.NoError(t, root.Set("i64", Int64(-64)))
	require.NoError(t, root.Set("u8", Uint8(8)))
	require.NoError(t, root.Set("u16", Uint16(16)))
	require.NoError(t, root.Set("u32", Uint32(32)))
	require.NoError(t, root.Set("u64", Uint64(64)))
	require.NoError(t, root.Set("f32", Float32(0.5)))
	require.NoError(t, root.Set("f64", Float64(2.25)))
	require.NoError(t, root.Set("str", String("héllo")))
	require.NoError(t, root.Set("bin", Bytes([]byte{0, 1, 2})))
	require.NoError(t, root.Set("arr", Array(Int32(1), String("x"), Null())))
	inner := Object()
	require.NoError(t, inner.Set("deep", Float64(3.5)))
	require.NoError(t, root.Set("obj", inner))

	data := NewData("tree")
	defer data.Release()
	data.props = root

	out := roundTrip(t, data)
	defer out.Release()
	assert.True(t, root.EqualValue(out.Properties()))
}

func TestAudioFrameRoundTrip(t *testing.T) {
	f := NewAudioFrame("audio_frame")
	defer f.Release()
	f.SetPCM([]byte{9, 8, 7})
	f.SetSampleRate(48000)
	f.SetChannels(2)
	f.SetChannelLayout(3)
	f.SetTimestamp(42)

	out := roundTrip(t, f)
	defer out.Release()

	assert.Equal(t, []byte{9, 8, 7}, out.PCM())
	assert.Equal(t, int32(48000), out.SampleRate())
	assert.Equal(t, int32(2), out.Channels())
	assert.Equal(t, uint64(3), out.ChannelLayout())
	assert.Equal(t, int64(42), out.Timestamp())
}

func TestVideoFrameRoundTrip(t *testing.T) {
	f := NewVideoFrame("video_frame")
	defer f.Release()
	f.SetPixels([]byte{1, 1, 2, 2})
	f.SetWidth(640)
	f.SetHeight(480)
	f.SetPixelFormat(PixelFormatI420)

	out := roundTrip(t, f)
	defer out.Release()

	assert.Equal(t, []byte{1, 1, 2, 2}, out.Pixels())
	assert.Equal(t, int32(640), out.Width())
	assert.Equal(t, int32(480), out.Height())
	assert.Equal(t, PixelFormatI420, out.PixelFormat())
}

func TestPtrPropertyDoesNotSerialize(t *testing.T) {
	x := 1
	cmd := NewCmd("test")
	defer cmd.Release()
	require.NoError(t, cmd.SetProperty("p", Ptr(&x)))

	_, err := cmd.ToBytes()
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidArgument, errors.CodeOf(err))
}

func TestFromBytesRejectsGarbage(t *testing.T) {
	_, err := FromBytes([]byte{0xc1, 0xff})
	assert.Equal(t, errors.CodeInvalidArgument, errors.CodeOf(err))
}
