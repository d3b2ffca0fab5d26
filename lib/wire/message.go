package wire

import (
	"github.com/samber/oops"
)

// Object is a decoded payload keyed by schema field name.
// Values use the Go types documented on Kind: int32, int64, uint8, uint32,
// uint64, string, bool, NetAddr, InvVect, []any and []byte.
type Object map[string]any

// Message is one decoded frame as delivered by the Reframer.
type Message struct {
	Command string
	Object  Object
}

// EncodePayload serializes o field by field in schema order.
func EncodePayload(s Schema, o Object) ([]byte, error) {
	w := NewWriter(64)
	for _, f := range s.Fields {
		v, ok := o[f.Name]
		if !ok {
			return nil, oops.Errorf("%w: %s requires %s", ErrMissingField, s.Command, f)
		}
		if err := EncodeField(f, v, w); err != nil {
			return nil, oops.Wrapf(err, "encoding %s", s.Command)
		}
	}
	return w.Bytes(), nil
}

// DecodePayload parses payload field by field in schema order.
// Bytes left over after the last field are an error.
func DecodePayload(s Schema, payload []byte) (Object, error) {
	r := NewReader(payload)
	o := make(Object, len(s.Fields))
	for _, f := range s.Fields {
		v, err := DecodeField(f, r)
		if err != nil {
			return nil, oops.Wrapf(err, "decoding %s field %s", s.Command, f)
		}
		o[f.Name] = v
	}
	if r.Remaining() > 0 {
		return nil, oops.Errorf("%w: %s payload has %d bytes after offset %d",
			ErrTrailingBytes, s.Command, r.Remaining(), r.Offset())
	}
	return o, nil
}

// Encode serializes o with the schema registered for command.
func Encode(command string, o Object) ([]byte, error) {
	s, ok := Lookup(command)
	if !ok {
		return nil, oops.Errorf("%w: %q", ErrUnknownCommand, command)
	}
	return EncodePayload(s, o)
}

// Decode parses payload with the schema registered for command.
func Decode(command string, payload []byte) (Object, error) {
	s, ok := Lookup(command)
	if !ok {
		return nil, oops.Errorf("%w: %q", ErrUnknownCommand, command)
	}
	return DecodePayload(s, payload)
}

// Uint64 returns the named field if it holds a uint64.
func (o Object) Uint64(name string) (uint64, bool) {
	v, ok := o[name].(uint64)
	return v, ok
}

// Int32 returns the named field if it holds an int32.
func (o Object) Int32(name string) (int32, bool) {
	v, ok := o[name].(int32)
	return v, ok
}

// String returns the named field if it holds a string.
func (o Object) String(name string) (string, bool) {
	v, ok := o[name].(string)
	return v, ok
}

// VersionParams carries the variable parts of a version message.
type VersionParams struct {
	ProtocolVersion int32
	Services        uint64
	Timestamp       int64
	AddrRecv        NetAddr
	AddrFrom        NetAddr
	Nonce           uint64
	UserAgent       string
	StartHeight     int32
	Relay           bool
}

// NewVersion builds a version object.
func NewVersion(p VersionParams) Object {
	return Object{
		"version":      p.ProtocolVersion,
		"services":     p.Services,
		"timestamp":    p.Timestamp,
		"addr_recv":    p.AddrRecv,
		"addr_from":    p.AddrFrom,
		"nonce":        p.Nonce,
		"user_agent":   p.UserAgent,
		"start_height": p.StartHeight,
		"relay":        p.Relay,
	}
}

// Verack builds the empty verack object.
func Verack() Object {
	return Object{}
}

// Ping builds a ping object.
func Ping(nonce uint64) Object {
	return Object{"nonce": nonce}
}

// Pong builds a pong object.
func Pong(nonce uint64) Object {
	return Object{"nonce": nonce}
}
