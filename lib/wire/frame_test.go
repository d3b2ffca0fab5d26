package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestVerackFrame(t *testing.T) {
	frame, err := EncodeMessage(CmdVerack, Verack())
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0xF9, 0xBE, 0xB4, 0xD9,
		'v', 'e', 'r', 'a', 'c', 'k', 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0,
		0x5D, 0xF6, 0xE0, 0xE2,
	}, frame)

	res := TryDecodeFrame(frame)
	assert.Equal(t, FrameAdvance, res.Status)
	assert.Equal(t, HeaderSize, res.Consumed)
	assert.Equal(t, CmdVerack, res.Command)
	assert.Empty(t, res.Payload)
}

func TestEncodeFrameRejectsLongCommand(t *testing.T) {
	_, err := EncodeFrame("thirteen-char", nil)
	require.ErrorIs(t, err, ErrCommandTooLong)

	_, err = EncodeFrame("twelve-chars", nil)
	require.NoError(t, err)

	_, err = EncodeFrame("bad\x00cmd", nil)
	require.Error(t, err)
}

func TestTryDecodeFrameNeedMore(t *testing.T) {
	frame, err := EncodeMessage(CmdPing, Ping(7))
	require.NoError(t, err)

	for n := 0; n < len(frame); n++ {
		res := TryDecodeFrame(frame[:n])
		assert.Equal(t, FrameNeedMore, res.Status, "prefix %d", n)
		assert.Zero(t, res.Consumed)
	}
	assert.Equal(t, FrameAdvance, TryDecodeFrame(frame).Status)
}

func TestTryDecodeFrameSkipsBadMagic(t *testing.T) {
	frame, err := EncodeMessage(CmdVerack, Verack())
	require.NoError(t, err)

	buf := append([]byte{0xAA}, frame...)
	res := TryDecodeFrame(buf)
	assert.Equal(t, FrameSkip, res.Status)
	assert.Equal(t, 1, res.Consumed)

	res = TryDecodeFrame(buf[1:])
	assert.Equal(t, FrameAdvance, res.Status)
}

func TestTryDecodeFrameChecksumFail(t *testing.T) {
	frame, err := EncodeMessage(CmdPing, Ping(7))
	require.NoError(t, err)
	frame[20] ^= 0xFF

	res := TryDecodeFrame(frame)
	assert.Equal(t, FrameChecksumFail, res.Status)
	assert.Equal(t, len(frame), res.Consumed)
	assert.Equal(t, CmdPing, res.Command)
	assert.Nil(t, res.Payload)
}

func TestFrameRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cmd := genASCII(t, "command")
		if len(cmd) > CommandSize {
			cmd = cmd[:CommandSize]
		}
		payload := rapid.SliceOfN(rapid.Byte(), 0, 512).Draw(t, "payload")

		frame, err := EncodeFrame(cmd, payload)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		res := TryDecodeFrame(frame)
		if res.Status != FrameAdvance || res.Consumed != len(frame) {
			t.Fatalf("got %s consuming %d of %d", res.Status, res.Consumed, len(frame))
		}
		if res.Command != cmd {
			t.Fatalf("command %q, want %q", res.Command, cmd)
		}
		assert.Equal(t, len(payload), len(res.Payload))
		if len(payload) > 0 {
			assert.Equal(t, payload, res.Payload)
		}
	})
}

func TestFrameStatusString(t *testing.T) {
	assert.Equal(t, "checksum_fail", FrameChecksumFail.String())
	assert.Equal(t, "advance", FrameAdvance.String())
}
