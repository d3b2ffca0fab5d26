package wire

/*
Bitcoin P2P message frame

+----+----+----+----+----+----+----+----+----+----+----+----+
|       magic       |               command ...
+----+----+----+----+----+----+----+----+----+----+----+----+
          ... command (12 bytes, null padded)   |   length  ...
+----+----+----+----+----+----+----+----+----+----+----+----+
   ... length       |      checksum     |  payload ...
+----+----+----+----+----+----+----+----+----+----+----+----+

magic    :: u32 big-endian, mainnet 0xF9BEB4D9
command  :: 12 ASCII bytes, null padded
length   :: u32 little-endian payload length
checksum :: first 4 bytes of sha256d(payload)
*/

import (
	"bytes"
	"math"

	"github.com/samber/oops"
)

const (
	// MainNetMagic identifies Bitcoin mainnet frames.
	MainNetMagic uint32 = 0xF9BEB4D9

	// DefaultPort is the mainnet P2P port.
	DefaultPort = 8333

	HeaderSize  = 24
	CommandSize = 12
)

// FrameStatus is the outcome of TryDecodeFrame.
type FrameStatus int

const (
	// FrameNeedMore means the buffer does not yet hold a complete frame.
	FrameNeedMore FrameStatus = iota
	// FrameSkip means the buffer does not start with the magic; drop Consumed bytes and retry.
	FrameSkip
	// FrameChecksumFail means a complete frame failed its checksum and is dropped.
	FrameChecksumFail
	// FrameAdvance means a valid frame was decoded.
	FrameAdvance
)

func (s FrameStatus) String() string {
	switch s {
	case FrameNeedMore:
		return "need_more"
	case FrameSkip:
		return "skip"
	case FrameChecksumFail:
		return "checksum_fail"
	case FrameAdvance:
		return "advance"
	default:
		return "unknown"
	}
}

// FrameResult reports what TryDecodeFrame found at the front of a buffer.
// Payload aliases the decoded buffer and is only set for FrameAdvance.
type FrameResult struct {
	Status   FrameStatus
	Consumed int
	Command  string
	Payload  []byte
}

// EncodeFrame wraps payload in a mainnet header.
func EncodeFrame(command string, payload []byte) ([]byte, error) {
	if len(command) > CommandSize {
		return nil, oops.Errorf("%w: %q", ErrCommandTooLong, command)
	}
	for i := 0; i < len(command); i++ {
		if command[i] == 0 || command[i] > 0x7F {
			return nil, oops.Errorf("command %q is not printable ASCII", command)
		}
	}
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, oops.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	var padded [CommandSize]byte
	copy(padded[:], command)
	sum := Checksum(payload)

	w := NewWriter(HeaderSize + len(payload))
	w.WriteUint32BE(MainNetMagic)
	w.WriteBytes(padded[:])
	w.WriteUint32LE(uint32(len(payload)))
	w.WriteBytes(sum[:])
	w.WriteBytes(payload)
	return w.Bytes(), nil
}

// EncodeMessage serializes o with command's schema and frames it.
func EncodeMessage(command string, o Object) ([]byte, error) {
	payload, err := Encode(command, o)
	if err != nil {
		return nil, err
	}
	return EncodeFrame(command, payload)
}

// TryDecodeFrame inspects the front of buf.
// A magic mismatch skips a single byte so a misaligned or corrupted stream
// resynchronizes on the next frame boundary without losing more than needed.
func TryDecodeFrame(buf []byte) FrameResult {
	if len(buf) < HeaderSize {
		return FrameResult{Status: FrameNeedMore}
	}
	// The header is complete, so none of these reads can fail.
	hdr := NewReader(buf[:HeaderSize])
	if magic, _ := hdr.ReadUint32BE(); magic != MainNetMagic {
		return FrameResult{Status: FrameSkip, Consumed: 1}
	}
	rawCommand, _ := hdr.ReadBytes(CommandSize)
	rawLength, _ := hdr.ReadUint32LE()
	wantSum, _ := hdr.ReadBytes(ChecksumSize)

	command := string(bytes.TrimRight(rawCommand, "\x00"))
	length := int(rawLength)
	if len(buf)-HeaderSize < length {
		return FrameResult{Status: FrameNeedMore}
	}

	total := HeaderSize + length
	payload := buf[HeaderSize:total]
	sum := Checksum(payload)
	if !bytes.Equal(sum[:], wantSum) {
		return FrameResult{Status: FrameChecksumFail, Consumed: total, Command: command}
	}
	return FrameResult{
		Status:   FrameAdvance,
		Consumed: total,
		Command:  command,
		Payload:  payload,
	}
}
