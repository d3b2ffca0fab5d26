package wire

import (
	"github.com/davecgh/go-spew/spew"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// DefaultMaxResidue is the default ceiling on buffered, not yet framed bytes.
const DefaultMaxResidue = 8 << 20

// Handler receives every decoded message in arrival order.
// A non-nil error stops the current Feed and is returned from it.
type Handler func(Message) error

// FrameObserver is notified of every frame outcome.
// The metrics package implements it.
type FrameObserver interface {
	ObserveFrame(status FrameStatus, command string)
	ObserveUnknownCommand(command string)
}

// ReframerStats counts what a Reframer has seen since creation.
type ReframerStats struct {
	Frames           uint64
	SkippedBytes     uint64
	ChecksumFailures uint64
	UnknownCommands  uint64
}

// Reframer turns an arbitrarily chunked byte stream into decoded messages.
// It keeps unframed bytes between calls and is not safe for concurrent use.
type Reframer struct {
	buf        []byte
	start      int
	maxResidue int
	stats      ReframerStats
	observer   FrameObserver
	fields     logger.Fields
}

// NewReframer returns a Reframer with the given residue ceiling.
// A non-positive ceiling selects DefaultMaxResidue.
func NewReframer(maxResidue int) *Reframer {
	if maxResidue <= 0 {
		maxResidue = DefaultMaxResidue
	}
	return &Reframer{
		maxResidue: maxResidue,
		fields:     logger.Fields{},
	}
}

// SetObserver attaches a frame observer.
func (r *Reframer) SetObserver(o FrameObserver) {
	r.observer = o
}

// SetLogFields adds fields, such as the remote address, to every log line.
func (r *Reframer) SetLogFields(fields logger.Fields) {
	r.fields = fields
}

// Residue returns the number of buffered bytes not yet framed.
func (r *Reframer) Residue() int {
	return len(r.buf) - r.start
}

// Stats returns a copy of the counters.
func (r *Reframer) Stats() ReframerStats {
	return r.stats
}

// Reset discards buffered bytes and releases the buffer.
func (r *Reframer) Reset() {
	r.buf = nil
	r.start = 0
}

// compact moves the residue to the front of the buffer once the consumed
// prefix is at least as large as the residue, keeping total copying linear.
func (r *Reframer) compact() {
	if r.start == 0 {
		return
	}
	residue := len(r.buf) - r.start
	if residue == 0 {
		r.buf = r.buf[:0]
		r.start = 0
		return
	}
	if r.start >= residue {
		n := copy(r.buf, r.buf[r.start:])
		r.buf = r.buf[:n]
		r.start = 0
	}
}

// Feed appends chunk to the residue and delivers every complete,
// checksum-valid frame to h. Unknown commands, bad magic and checksum
// failures are logged and dropped. Payload decode errors, handler errors
// and residue overflow are returned.
func (r *Reframer) Feed(chunk []byte, h Handler) error {
	r.compact()
	r.buf = append(r.buf, chunk...)

	for {
		res := TryDecodeFrame(r.buf[r.start:])
		if r.observer != nil && res.Status != FrameNeedMore {
			r.observer.ObserveFrame(res.Status, res.Command)
		}

		switch res.Status {
		case FrameNeedMore:
			if r.start == len(r.buf) {
				r.buf = r.buf[:0]
				r.start = 0
			}
			if r.Residue() > r.maxResidue {
				return oops.Errorf("%w: %d bytes buffered, limit %d",
					ErrBufferOverflow, r.Residue(), r.maxResidue)
			}
			return nil

		case FrameSkip:
			r.start += res.Consumed
			r.stats.SkippedBytes += uint64(res.Consumed)
			log.WithFields(r.fields).Debug("Invalid magic, skipping.")

		case FrameChecksumFail:
			r.start += res.Consumed
			r.stats.ChecksumFailures++
			log.WithFields(r.fields).WithFields(logger.Fields{
				"at":      "(Reframer) Feed",
				"command": res.Command,
				"length":  res.Consumed - HeaderSize,
			}).Warn("Checksum mismatch.")

		case FrameAdvance:
			r.start += res.Consumed
			r.stats.Frames++
			if err := r.deliver(res, h); err != nil {
				return err
			}
		}
	}
}

func (r *Reframer) deliver(res FrameResult, h Handler) error {
	s, ok := Lookup(res.Command)
	if !ok {
		r.stats.UnknownCommands++
		if r.observer != nil {
			r.observer.ObserveUnknownCommand(res.Command)
		}
		log.WithFields(r.fields).Info("Unknown command " + res.Command)
		return nil
	}

	obj, err := DecodePayload(s, res.Payload)
	if err != nil {
		return oops.Wrapf(err, "frame %q", res.Command)
	}

	if log.GetLevel() >= logger.DebugLevel {
		log.WithFields(r.fields).Debug(res.Command + ":\n" + spew.Sdump(obj))
	}
	if h == nil {
		return nil
	}
	return h(Message{Command: res.Command, Object: obj})
}
