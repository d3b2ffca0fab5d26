package wire

import "errors"

// Codec errors.
// These use errors.New (not oops.Errorf) so callers can match them with errors.Is()
// after they have been wrapped with field or command context.
var (
	// ErrMalformedField reports a per-field structural violation: a short read,
	// a bad zero-run in a network address, a hash of the wrong length, an
	// array count larger than the payload can hold, or a value of the wrong type.
	ErrMalformedField = errors.New("malformed field")

	// ErrTrailingBytes reports a payload longer than its schema expects.
	ErrTrailingBytes = errors.New("trailing bytes after last field")

	// ErrMissingField reports an object lacking a field its schema requires.
	ErrMissingField = errors.New("missing field")

	// ErrUnknownCommand reports a command with no registered schema.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrChecksumFail reports a frame whose payload does not match its checksum.
	ErrChecksumFail = errors.New("payload checksum mismatch")

	// ErrBufferOverflow reports a reframer residue larger than its ceiling.
	ErrBufferOverflow = errors.New("residue buffer overflow")

	// ErrCommandTooLong reports a command name that does not fit the 12 byte header slot.
	ErrCommandTooLong = errors.New("command longer than 12 bytes")

	// ErrPayloadTooLarge reports a payload whose length does not fit the u32 length field.
	ErrPayloadTooLarge = errors.New("payload too large")
)
