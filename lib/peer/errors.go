package peer

import (
	"errors"

	"github.com/btcpeer/btcpeer/lib/wire"
)

var (
	// ErrProtocolViolation is returned for out-of-order or duplicate handshake messages.
	ErrProtocolViolation = errors.New("peer protocol violation")

	// ErrHandshakeTimeout is returned when version or verack does not arrive in time.
	ErrHandshakeTimeout = errors.New("peer handshake timed out")

	// ErrSocket wraps connect, read and write failures.
	ErrSocket = errors.New("peer socket error")

	// ErrClosed is the termination error of a locally closed session.
	ErrClosed = errors.New("peer session closed")

	// ErrAlreadyOpened is returned by a second call to Open.
	ErrAlreadyOpened = errors.New("peer session already opened")

	// ErrNotEstablished is returned by Send before the handshake completes.
	ErrNotEstablished = errors.New("peer session not established")
)

// TerminationReason classifies a termination error into a short label
// suitable for logs and metrics.
func TerminationReason(err error) string {
	switch {
	case err == nil, errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, ErrHandshakeTimeout):
		return "timeout"
	case errors.Is(err, ErrProtocolViolation):
		return "protocol"
	case errors.Is(err, wire.ErrBufferOverflow):
		return "overflow"
	case errors.Is(err, ErrSocket):
		return "socket"
	default:
		return "codec"
	}
}
