// Package wire implements the Bitcoin P2P message codec.
//
// # Layers
//
// The codec is built from small layers, each usable on its own:
//   - Reader/Writer: bounds-checked little/big-endian cursors and var_int/var_str
//   - Field codec: EncodeField/DecodeField over a closed set of Kinds
//   - Message codec: EncodePayload/DecodePayload apply a Schema (ordered Fields)
//   - Frame codec: EncodeFrame/TryDecodeFrame wrap payloads in the 24 byte header
//   - Reframer: turns an arbitrarily chunked stream into decoded Messages
//
// # Schemas
//
// Schemas are package-level constants registered for version, verack, ping,
// pong, alert, block, getdata and addr. Decoded payloads are Objects keyed by
// field name; see Kind for the Go type each field kind decodes to.
//
// # Errors
//
// Failures wrap one of the Err* sentinels and can be matched with errors.Is.
// Bad magic and checksum failures are not errors at the Reframer level: the
// bytes are dropped, logged and counted.
//
// # Usage Example
//
//	frame, err := wire.EncodeMessage(wire.CmdPing, wire.Ping(nonce))
//	if err != nil {
//	    return err
//	}
//	conn.Write(frame)
//
//	r := wire.NewReframer(wire.DefaultMaxResidue)
//	err = r.Feed(chunk, func(m wire.Message) error {
//	    fmt.Println(m.Command, m.Object)
//	    return nil
//	})
package wire
