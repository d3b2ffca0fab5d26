package wire

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// ChecksumSize is the number of sha256d bytes carried in a frame header.
const ChecksumSize = 4

// DoubleHash returns sha256(sha256(b)).
func DoubleHash(b []byte) [32]byte {
	return [32]byte(chainhash.DoubleHashH(b))
}

// Checksum returns the first four bytes of sha256d(payload).
func Checksum(payload []byte) [ChecksumSize]byte {
	full := DoubleHash(payload)
	return [ChecksumSize]byte(full[:ChecksumSize])
}
