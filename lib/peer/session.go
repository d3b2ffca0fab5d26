package peer

import (
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcpeer/btcpeer/lib/wire"
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// State is the handshake progress of a Session.
type State int32

const (
	StateConnecting State = iota
	StateVersionSent
	StateVersionRecd
	StateEstablished
	StateClosed
)

var stateNames = [...]string{
	StateConnecting:  "connecting",
	StateVersionSent: "version_sent",
	StateVersionRecd: "version_recd",
	StateEstablished: "established",
	StateClosed:      "closed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Session is one outbound connection to a remote node.
//
// All handshake state is owned by the run goroutine. State, PeerVersion and
// Done may be called from any goroutine.
type Session struct {
	addr         netip.AddrPort
	cfg          Config
	nonce        uint64
	onTerminated func(*Session, error)
	fields       logger.Fields

	state       atomic.Int32
	established atomic.Bool
	peerVersion atomic.Pointer[wire.Object]

	mu     sync.Mutex
	opened bool
	ctx    context.Context
	cancel context.CancelFunc
	conn   net.Conn

	writeMu sync.Mutex

	// Owned by run.
	reframer        *wire.Reframer
	versionSeen     bool
	verackSeen      bool
	versionDeadline <-chan time.Time
	verackDeadline  <-chan time.Time

	closeOnce sync.Once
	done      chan struct{}
	err       error
	wg        sync.WaitGroup
}

// New creates a session for addr. Nothing happens until Open.
// onTerminated is invoked exactly once, after the session reaches StateClosed.
func New(addr netip.AddrPort, cfg Config, onTerminated func(*Session, error)) *Session {
	cfg = cfg.withDefaults()
	if addr.Port() == 0 {
		addr = netip.AddrPortFrom(addr.Addr(), cfg.Port)
	}

	nonce, err := btcwire.RandomUint64()
	if err != nil {
		log.WithError(err).Warn("Falling back to clock based nonce")
		nonce = uint64(cfg.Clock.Now().UnixNano())
	}

	fields := logger.Fields{"peer": addr.String()}
	r := wire.NewReframer(cfg.MaxResidue)
	r.SetLogFields(fields)
	if cfg.Metrics != nil {
		r.SetObserver(cfg.Metrics)
	}

	return &Session{
		addr:         addr,
		cfg:          cfg,
		nonce:        nonce,
		onTerminated: onTerminated,
		fields:       fields,
		reframer:     r,
		done:         make(chan struct{}),
	}
}

// Open starts connecting in the background and returns immediately.
// Cancelling ctx closes the session.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened {
		return ErrAlreadyOpened
	}
	if s.State() == StateClosed {
		return ErrClosed
	}
	s.opened = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	log.WithFields(s.fields).WithFields(logger.Fields{
		"at": "(Session) Open",
	}).Debug("Connecting")

	s.wg.Add(1)
	go s.run()
	return nil
}

// Send encodes and writes a message. Only valid once established.
func (s *Session) Send(command string, o wire.Object) error {
	if st := s.State(); st != StateEstablished {
		return oops.Errorf("%w: cannot send %s in state %s", ErrNotEstablished, command, st)
	}
	if err := s.write(command, o); err != nil {
		if errors.Is(err, ErrSocket) {
			s.terminate(err)
		}
		return err
	}
	return nil
}

// State returns the current handshake state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Established reports whether the handshake ever completed, including
// for a session that has since closed.
func (s *Session) Established() bool {
	return s.established.Load()
}

// Addr returns the remote address.
func (s *Session) Addr() netip.AddrPort {
	return s.addr
}

// Nonce returns the nonce sent in our version message.
func (s *Session) Nonce() uint64 {
	return s.nonce
}

// PeerVersion returns the version object received from the remote node.
func (s *Session) PeerVersion() (wire.Object, bool) {
	v := s.peerVersion.Load()
	if v == nil {
		return nil, false
	}
	return *v, true
}

// Done is closed once the session has terminated.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the termination error, or nil while the session is running.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Close terminates the session with ErrClosed. It is safe to call more than once
// and from the termination callback.
func (s *Session) Close() error {
	s.terminate(ErrClosed)
	return nil
}

// Wait blocks until the session goroutines have exited.
func (s *Session) Wait() {
	s.wg.Wait()
}

func (s *Session) run() {
	defer s.wg.Done()
	defer s.reframer.Reset()

	conn, err := s.cfg.Dialer.DialContext(s.ctx, s.cfg.Network, s.addr.String())
	if err != nil {
		s.terminate(oops.Errorf("%w: connect: %v", ErrSocket, err))
		return
	}
	if !s.attach(conn) {
		return
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.SessionOpened()
	}

	if err := s.write(wire.CmdVersion, s.versionObject()); err != nil {
		s.terminate(err)
		return
	}
	s.advance(StateVersionSent)
	s.versionDeadline = s.cfg.Clock.TickAfter(s.cfg.HandshakeTimeouts.Version)
	s.verackDeadline = s.cfg.Clock.TickAfter(s.cfg.HandshakeTimeouts.Verack)

	log.WithFields(s.fields).WithFields(logger.Fields{
		"at":    "(Session) run",
		"nonce": s.nonce,
	}).Debug("Version sent")

	chunks := make(chan []byte)
	readErr := make(chan error, 1)
	s.wg.Add(1)
	go s.readLoop(conn, chunks, readErr)

	for {
		select {
		case chunk := <-chunks:
			if err := s.reframer.Feed(chunk, s.handle); err != nil {
				s.terminate(err)
				return
			}

		case err := <-readErr:
			s.terminate(err)
			return

		case <-s.versionDeadline:
			s.timeout(wire.CmdVersion, s.cfg.HandshakeTimeouts.Version)
			return

		case <-s.verackDeadline:
			s.timeout(wire.CmdVerack, s.cfg.HandshakeTimeouts.Verack)
			return

		case <-s.ctx.Done():
			s.terminate(oops.Errorf("%w: %v", ErrClosed, s.ctx.Err()))
			return
		}
	}
}

// readLoop forwards socket reads to run until the connection fails.
func (s *Session) readLoop(conn net.Conn, chunks chan<- []byte, errc chan<- error) {
	defer s.wg.Done()

	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case chunks <- chunk:
			case <-s.ctx.Done():
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				errc <- oops.Errorf("%w: connection closed by peer", ErrSocket)
			} else {
				errc <- oops.Errorf("%w: read: %v", ErrSocket, err)
			}
			return
		}
	}
}

// handle applies one decoded message to the handshake state machine.
func (s *Session) handle(msg wire.Message) error {
	switch msg.Command {
	case wire.CmdVersion:
		if s.versionSeen {
			return oops.Errorf("%w: duplicate version", ErrProtocolViolation)
		}
		s.versionSeen = true
		s.versionDeadline = nil
		obj := msg.Object
		s.peerVersion.Store(&obj)

		if err := s.write(wire.CmdVerack, wire.Verack()); err != nil {
			return err
		}
		if s.verackSeen {
			s.establish()
		} else {
			s.advance(StateVersionRecd)
		}
		return nil

	case wire.CmdVerack:
		if s.verackSeen {
			return oops.Errorf("%w: duplicate verack", ErrProtocolViolation)
		}
		s.verackSeen = true
		s.verackDeadline = nil
		if s.versionSeen {
			s.establish()
		}
		return nil
	}

	if !s.versionSeen || !s.verackSeen {
		return oops.Errorf("%w: %s before handshake completed", ErrProtocolViolation, msg.Command)
	}

	if msg.Command == wire.CmdPing {
		if nonce, ok := msg.Object.Uint64("nonce"); ok {
			if err := s.write(wire.CmdPong, wire.Pong(nonce)); err != nil {
				return err
			}
		}
	}
	if s.cfg.Handler != nil {
		return s.cfg.Handler(s, msg)
	}
	return nil
}

func (s *Session) establish() {
	if !s.advance(StateEstablished) {
		return
	}
	s.established.Store(true)
	fields := logger.Fields{"at": "(Session) establish"}
	if v, ok := s.PeerVersion(); ok {
		fields["user_agent"], _ = v.String("user_agent")
		fields["version"], _ = v.Int32("version")
	}
	log.WithFields(s.fields).WithFields(fields).Info("Handshake complete")

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.SessionEstablished()
	}
}

func (s *Session) timeout(waitingFor string, d time.Duration) {
	log.WithFields(s.fields).WithFields(logger.Fields{
		"at":          "(Session) run",
		"waiting_for": waitingFor,
		"timeout":     d,
	}).Info("timing out...")
	s.terminate(oops.Errorf("%w: no %s within %s", ErrHandshakeTimeout, waitingFor, d))
}

func (s *Session) versionObject() wire.Object {
	return wire.NewVersion(wire.VersionParams{
		ProtocolVersion: s.cfg.ProtocolVersion,
		Services:        0,
		Timestamp:       s.cfg.Clock.Now().Unix(),
		AddrRecv:        wire.ZeroNetAddr,
		AddrFrom:        wire.ZeroNetAddr,
		Nonce:           s.nonce,
		UserAgent:       s.cfg.UserAgent,
		StartHeight:     0,
		Relay:           false,
	})
}

// write frames and sends one message. Writes are serialized.
func (s *Session) write(command string, o wire.Object) error {
	frame, err := wire.EncodeMessage(command, o)
	if err != nil {
		return err
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return oops.Errorf("%w: no connection for %s", ErrSocket, command)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return oops.Errorf("%w: set write deadline: %v", ErrSocket, err)
	}
	if _, err := conn.Write(frame); err != nil {
		return oops.Errorf("%w: write %s: %v", ErrSocket, command, err)
	}
	return nil
}

// attach records the dialed connection unless the session closed meanwhile.
func (s *Session) attach(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() == StateClosed {
		conn.Close()
		return false
	}
	s.conn = conn
	return true
}

// advance moves to the given state unless the session is closed.
func (s *Session) advance(to State) bool {
	for {
		cur := s.state.Load()
		if State(cur) == StateClosed {
			return false
		}
		if s.state.CompareAndSwap(cur, int32(to)) {
			return true
		}
	}
}

// terminate closes the session once and notifies the owner.
func (s *Session) terminate(err error) {
	s.closeOnce.Do(func() {
		prev := State(s.state.Swap(int32(StateClosed)))
		s.err = err

		s.mu.Lock()
		if s.cancel != nil {
			s.cancel()
		}
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
		}

		reason := TerminationReason(err)
		log.WithError(err).WithFields(s.fields).WithFields(logger.Fields{
			"at":     "(Session) terminate",
			"state":  prev.String(),
			"reason": reason,
		}).Info("disconnecting...")

		if s.cfg.Metrics != nil {
			s.cfg.Metrics.SessionTerminated(reason)
		}
		close(s.done)

		if s.onTerminated != nil {
			s.onTerminated(s, err)
		}
	})
}
