package wire

import (
	"net/netip"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/samber/oops"
)

// Kind is the wire type of a schema field.
type Kind uint8

const (
	KindInt32 Kind = iota + 1
	KindInt64
	KindUint8
	KindUint32
	KindUint64
	KindVarInt
	KindVarString
	KindBool
	KindHash32
	KindNetAddr
	KindNetAddrNoTime
	KindInvVect
	KindArray
	KindDump
)

// Fixed sizes of the composite kinds.
const (
	HashSize          = chainhash.HashSize
	NetAddrNoTimeSize = 26
	NetAddrSize       = 4 + NetAddrNoTimeSize
	InvVectSize       = 4 + HashSize
	netAddrZeroRun    = 10
)

var kindNames = map[Kind]string{
	KindInt32:         "i32",
	KindInt64:         "i64",
	KindUint8:         "u8",
	KindUint32:        "u32",
	KindUint64:        "u64",
	KindVarInt:        "var_int",
	KindVarString:     "var_str",
	KindBool:          "bool",
	KindHash32:        "hash32",
	KindNetAddr:       "net_addr",
	KindNetAddrNoTime: "net_addr_notime",
	KindInvVect:       "inv_vect",
	KindArray:         "array",
	KindDump:          "dump",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MinSize is the fewest bytes any encoding of k can occupy.
// Array decoding uses it to bound element counts against the remaining payload.
func (k Kind) MinSize() int {
	switch k {
	case KindInt32, KindUint32:
		return 4
	case KindInt64, KindUint64:
		return 8
	case KindHash32:
		return HashSize
	case KindNetAddr:
		return NetAddrSize
	case KindNetAddrNoTime:
		return NetAddrNoTimeSize
	case KindInvVect:
		return InvVectSize
	case KindDump:
		return 0
	default:
		// u8, bool and every var_int-prefixed kind
		return 1
	}
}

// Field is one entry of a message schema.
// Item is the element kind and is only meaningful when Kind is KindArray.
type Field struct {
	Name string
	Kind Kind
	Item Kind
}

func (f Field) String() string {
	if f.Kind == KindArray {
		return f.Name + ":array[" + f.Item.String() + "]"
	}
	return f.Name + ":" + f.Kind.String()
}

func typeMismatch(f Field, kind Kind, v any) error {
	return oops.Errorf("%w: field %q of kind %s cannot hold %T", ErrMalformedField, f.Name, kind, v)
}

// EncodeField appends the wire encoding of v as field f.
func EncodeField(f Field, v any, w *Writer) error {
	if f.Kind == KindArray {
		return encodeArray(f, v, w)
	}
	return encodeScalar(f, f.Kind, v, w)
}

func encodeScalar(f Field, kind Kind, v any, w *Writer) error {
	switch kind {
	case KindInt32:
		n, ok := v.(int32)
		if !ok {
			return typeMismatch(f, kind, v)
		}
		w.WriteUint32LE(uint32(n))
	case KindInt64:
		n, ok := v.(int64)
		if !ok {
			return typeMismatch(f, kind, v)
		}
		w.WriteUint64LE(uint64(n))
	case KindUint8:
		n, ok := v.(uint8)
		if !ok {
			return typeMismatch(f, kind, v)
		}
		w.WriteUint8(n)
	case KindUint32:
		n, ok := v.(uint32)
		if !ok {
			return typeMismatch(f, kind, v)
		}
		w.WriteUint32LE(n)
	case KindUint64:
		n, ok := v.(uint64)
		if !ok {
			return typeMismatch(f, kind, v)
		}
		w.WriteUint64LE(n)
	case KindVarInt:
		n, ok := v.(uint64)
		if !ok {
			return typeMismatch(f, kind, v)
		}
		w.WriteVarInt(n)
	case KindVarString:
		s, ok := v.(string)
		if !ok {
			return typeMismatch(f, kind, v)
		}
		for i := 0; i < len(s); i++ {
			if s[i] > 0x7F {
				return oops.Errorf("%w: field %q is not ASCII", ErrMalformedField, f.Name)
			}
		}
		w.WriteVarString(s)
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return typeMismatch(f, kind, v)
		}
		if b {
			w.WriteUint8(0x01)
		} else {
			w.WriteUint8(0x00)
		}
	case KindHash32:
		s, ok := v.(string)
		if !ok {
			return typeMismatch(f, kind, v)
		}
		return encodeHash(f, s, w)
	case KindNetAddr, KindNetAddrNoTime:
		a, ok := v.(NetAddr)
		if !ok {
			return typeMismatch(f, kind, v)
		}
		return encodeNetAddr(f, a, kind == KindNetAddr, w)
	case KindInvVect:
		iv, ok := v.(InvVect)
		if !ok {
			return typeMismatch(f, kind, v)
		}
		w.WriteUint32LE(iv.Type)
		return encodeHash(f, iv.Hash, w)
	case KindDump:
		b, ok := v.([]byte)
		if !ok {
			return typeMismatch(f, kind, v)
		}
		w.WriteBytes(b)
	default:
		return oops.Errorf("%w: field %q has unsupported kind %d", ErrMalformedField, f.Name, kind)
	}
	return nil
}

// encodeHash writes the 32 wire bytes of a display-order hex hash,
// which are the decoded hex bytes in reverse.
func encodeHash(f Field, s string, w *Writer) error {
	if len(s) != 2*HashSize {
		return oops.Errorf("%w: field %q hash has %d hex characters, want %d",
			ErrMalformedField, f.Name, len(s), 2*HashSize)
	}
	var h chainhash.Hash
	if err := chainhash.Decode(&h, s); err != nil {
		return oops.Errorf("%w: field %q: %v", ErrMalformedField, f.Name, err)
	}
	w.WriteBytes(h[:])
	return nil
}

func encodeNetAddr(f Field, a NetAddr, withTime bool, w *Writer) error {
	addr := a.Addr.Unmap()
	if !addr.Is4() {
		return oops.Errorf("%w: field %q address %s is not IPv4", ErrMalformedField, f.Name, a.Addr)
	}
	if withTime {
		w.WriteUint32LE(a.Time)
	}
	w.WriteUint64LE(a.Services)
	w.WriteBytes(make([]byte, netAddrZeroRun))
	w.WriteBytes([]byte{0xFF, 0xFF})
	ip := addr.As4()
	w.WriteBytes(ip[:])
	w.WriteUint16BE(a.Port)
	return nil
}

func encodeArray(f Field, v any, w *Writer) error {
	var items []any
	switch vs := v.(type) {
	case []any:
		items = vs
	case []NetAddr:
		items = make([]any, len(vs))
		for i := range vs {
			items[i] = vs[i]
		}
	case []InvVect:
		items = make([]any, len(vs))
		for i := range vs {
			items[i] = vs[i]
		}
	default:
		return typeMismatch(f, KindArray, v)
	}

	w.WriteVarInt(uint64(len(items)))
	for i, item := range items {
		if err := encodeScalar(f, f.Item, item, w); err != nil {
			return oops.Wrapf(err, "array %q element %d", f.Name, i)
		}
	}
	return nil
}

// DecodeField reads one value of field f and advances r past it.
func DecodeField(f Field, r *Reader) (any, error) {
	if f.Kind == KindArray {
		return decodeArray(f, r)
	}
	return decodeScalar(f, f.Kind, r)
}

func decodeScalar(f Field, kind Kind, r *Reader) (any, error) {
	switch kind {
	case KindInt32:
		n, err := r.ReadUint32LE()
		return int32(n), err
	case KindInt64:
		n, err := r.ReadUint64LE()
		return int64(n), err
	case KindUint8:
		return r.ReadUint8()
	case KindUint32:
		return r.ReadUint32LE()
	case KindUint64:
		return r.ReadUint64LE()
	case KindVarInt:
		return r.ReadVarInt()
	case KindVarString:
		return r.ReadVarString()
	case KindBool:
		b, err := r.ReadUint8()
		return b != 0x00, err
	case KindHash32:
		return decodeHash(r)
	case KindNetAddr, KindNetAddrNoTime:
		return decodeNetAddr(f, kind == KindNetAddr, r)
	case KindInvVect:
		t, err := r.ReadUint32LE()
		if err != nil {
			return nil, err
		}
		h, err := decodeHash(r)
		if err != nil {
			return nil, err
		}
		return InvVect{Type: t, Hash: h}, nil
	case KindDump:
		return r.ReadRest(), nil
	default:
		return nil, oops.Errorf("%w: field %q has unsupported kind %d", ErrMalformedField, f.Name, kind)
	}
}

func decodeHash(r *Reader) (string, error) {
	b, err := r.ReadBytes(HashSize)
	if err != nil {
		return "", err
	}
	return chainhash.Hash(b).String(), nil
}

// decodeNetAddr checks the ten leading zero bytes but reads the following
// 0xFFFF pair without validating it, so IPv6-mapped variants still parse.
func decodeNetAddr(f Field, withTime bool, r *Reader) (NetAddr, error) {
	var a NetAddr
	var err error
	if withTime {
		if a.Time, err = r.ReadUint32LE(); err != nil {
			return a, err
		}
	}
	if a.Services, err = r.ReadUint64LE(); err != nil {
		return a, err
	}
	zeros, err := r.ReadBytes(netAddrZeroRun)
	if err != nil {
		return a, err
	}
	for i, b := range zeros {
		if b != 0 {
			return a, oops.Errorf("%w: field %q address byte %d is 0x%02x, want zero",
				ErrMalformedField, f.Name, i, b)
		}
	}
	if _, err = r.ReadBytes(2); err != nil {
		return a, err
	}
	ip, err := r.ReadBytes(4)
	if err != nil {
		return a, err
	}
	a.Addr = netip.AddrFrom4([4]byte(ip))
	if a.Port, err = r.ReadUint16BE(); err != nil {
		return a, err
	}
	return a, nil
}

func decodeArray(f Field, r *Reader) ([]any, error) {
	minSize := f.Item.MinSize()
	if minSize == 0 || f.Item == KindArray {
		return nil, oops.Errorf("%w: array %q cannot hold %s elements", ErrMalformedField, f.Name, f.Item)
	}
	count, err := r.ReadVarInt()
	if err != nil {
		return nil, err
	}
	if limit := uint64(r.Remaining() / minSize); count > limit {
		return nil, oops.Errorf("%w: array %q claims %d elements, at most %d fit in %d bytes",
			ErrMalformedField, f.Name, count, limit, r.Remaining())
	}

	items := make([]any, 0, count)
	for i := uint64(0); i < count; i++ {
		item, err := decodeScalar(f, f.Item, r)
		if err != nil {
			return nil, oops.Wrapf(err, "array %q element %d", f.Name, i)
		}
		items = append(items, item)
	}
	return items, nil
}
