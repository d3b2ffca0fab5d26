package pool

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"time"

	"github.com/btcpeer/btcpeer/lib/peer"
	"github.com/cenkalti/backoff"
	"github.com/go-i2p/logger"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/samber/oops"
	"golang.org/x/time/rate"
)

// AddressSource supplies candidate peer addresses.
// bootstrap.SeedSource implements it.
type AddressSource interface {
	Addresses(ctx context.Context) ([]netip.Addr, error)
}

// Stats is a snapshot of the pool.
type Stats struct {
	Slots       int
	Alive       int
	Established int
}

// Pool keeps a fixed number of sessions alive. Every slot holds at most one
// session; when it terminates, exactly one replacement is opened into the
// same slot.
type Pool struct {
	source  AddressSource
	cfg     Config
	clock   clock.Clock
	limiter *rate.Limiter
	status  ticker.Ticker

	mu      sync.Mutex
	slots   []*peer.Session
	addrs   []netip.Addr
	next    int // round-robin cursor into addrs
	backoff *backoff.ExponentialBackOff
	stopped bool

	statusOnce sync.Once
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a pool drawing addresses from source. No session is opened until Init.
func New(source AddressSource, cfg Config) *Pool {
	def := DefaultConfig()
	if cfg.Peer.Clock == nil {
		cfg.Peer.Clock = clock.NewDefaultClock()
	}
	if cfg.DialInterval <= 0 {
		cfg.DialInterval = def.DialInterval
	}
	if cfg.DialBurst <= 0 {
		cfg.DialBurst = def.DialBurst
	}
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff.Initial = def.Backoff.Initial
	}
	if cfg.Backoff.Max <= 0 {
		cfg.Backoff.Max = def.Backoff.Max
	}
	if cfg.Backoff.Multiplier < 1 {
		cfg.Backoff.Multiplier = def.Backoff.Multiplier
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = def.StatusInterval
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.Backoff.Initial
	b.MaxInterval = cfg.Backoff.Max
	b.Multiplier = cfg.Backoff.Multiplier
	b.RandomizationFactor = cfg.Backoff.Jitter
	b.MaxElapsedTime = 0
	b.Clock = cfg.Peer.Clock
	b.Reset()

	status := cfg.StatusTicker
	if status == nil {
		status = ticker.New(cfg.StatusInterval)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		source:  source,
		cfg:     cfg,
		clock:   cfg.Peer.Clock,
		limiter: rate.NewLimiter(rate.Every(cfg.DialInterval), cfg.DialBurst),
		status:  status,
		backoff: b,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Init adds n slots and opens one session into each, sequentially.
// It returns once every session has been started, or when ctx is done.
// Resolution failures are retried with backoff.
func (p *Pool) Init(ctx context.Context, n int) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrStopped
	}
	offset := len(p.slots)
	p.slots = append(p.slots, make([]*peer.Session, n)...)
	p.mu.Unlock()

	p.startStatus()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	for i := 0; i < n; i++ {
		if err := p.fill(ctx, offset+i); err != nil {
			return oops.Wrapf(err, "initializing slot %d of %d", i+1, n)
		}
	}

	log.WithFields(logger.Fields{
		"at":    "(Pool) Init",
		"slots": offset + n,
	}).Info("Peer pool initialized")
	return nil
}

// Alive returns the number of sessions that have not closed.
func (p *Pool) Alive() int {
	return p.Stats().Alive
}

// Stats returns a snapshot of slot usage.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Stats{Slots: len(p.slots)}
	for _, s := range p.slots {
		if s == nil {
			continue
		}
		switch s.State() {
		case peer.StateClosed:
		case peer.StateEstablished:
			st.Alive++
			st.Established++
		default:
			st.Alive++
		}
	}
	return st
}

// Sessions returns the current session of every occupied slot.
func (p *Pool) Sessions() []*peer.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*peer.Session, 0, len(p.slots))
	for _, s := range p.slots {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Stop closes every session and prevents further replacements.
// It does not wait; use Wait.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	sessions := make([]*peer.Session, 0, len(p.slots))
	for _, s := range p.slots {
		if s != nil {
			sessions = append(sessions, s)
		}
	}
	p.mu.Unlock()

	p.cancel()
	for _, s := range sessions {
		s.Close()
	}
	p.status.Stop()

	log.WithFields(logger.Fields{
		"at":       "(Pool) Stop",
		"sessions": len(sessions),
	}).Info("Peer pool stopped")
}

// Wait blocks until all pool and session goroutines have exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// fill opens a session into slot, retrying address resolution with backoff.
func (p *Pool) fill(ctx context.Context, slot int) error {
	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return oops.Wrapf(err, "waiting to dial slot %d", slot)
		}

		addr, err := p.nextAddr(ctx)
		if err != nil {
			delay := p.nextBackoff()
			log.WithError(err).WithFields(logger.Fields{
				"at":       "(Pool) fill",
				"slot":     slot,
				"retry_in": delay,
			}).Warn("Seed resolution failed, retrying")
			if err := p.sleep(ctx, delay); err != nil {
				return err
			}
			continue
		}
		return p.open(slot, addr)
	}
}

// open starts a session for addr in slot.
func (p *Pool) open(slot int, addr netip.Addr) error {
	s := peer.New(netip.AddrPortFrom(addr, p.cfg.Peer.Port), p.cfg.Peer,
		func(s *peer.Session, err error) {
			p.replaceSlot(slot, s, err)
		})

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrStopped
	}
	p.slots[slot] = s
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		<-s.Done()
		s.Wait()
	}()

	log.WithFields(logger.Fields{
		"at":   "(Pool) open",
		"slot": slot,
		"peer": s.Addr().String(),
	}).Info("Opening session")

	if err := s.Open(p.ctx); err != nil {
		return oops.Wrapf(err, "opening slot %d", slot)
	}
	p.reportAlive()
	return nil
}

// replaceSlot is the termination callback of the session in slot.
// Callbacks from a session that no longer owns its slot are ignored.
func (p *Pool) replaceSlot(slot int, s *peer.Session, cause error) {
	p.mu.Lock()
	if p.stopped || slot >= len(p.slots) || p.slots[slot] != s {
		p.mu.Unlock()
		log.WithFields(logger.Fields{
			"at":   "(Pool) replaceSlot",
			"slot": slot,
			"peer": s.Addr().String(),
		}).Debug("Ignoring termination of session that no longer owns its slot")
		return
	}
	p.slots[slot] = nil

	var delay time.Duration
	if s.Established() {
		p.backoff.Reset()
	} else {
		delay = p.nextBackoffLocked()
	}
	p.wg.Add(1)
	p.mu.Unlock()

	log.WithError(cause).WithFields(logger.Fields{
		"at":       "(Pool) replaceSlot",
		"slot":     slot,
		"peer":     s.Addr().String(),
		"reason":   peer.TerminationReason(cause),
		"retry_in": delay,
	}).Info("Replacing session")
	p.reportAlive()

	go func() {
		defer p.wg.Done()
		if err := p.sleep(p.ctx, delay); err != nil {
			return
		}
		if err := p.fill(p.ctx, slot); err != nil && !errors.Is(err, ErrStopped) && p.ctx.Err() == nil {
			log.WithError(err).WithFields(logger.Fields{
				"at":   "(Pool) replaceSlot",
				"slot": slot,
			}).Error("Replacement failed")
		}
	}()
}

// nextAddr returns the next address in round-robin order, resolving again
// once the current list is used up.
func (p *Pool) nextAddr(ctx context.Context) (netip.Addr, error) {
	p.mu.Lock()
	if p.next < len(p.addrs) {
		a := p.addrs[p.next]
		p.next++
		p.mu.Unlock()
		return a, nil
	}
	p.mu.Unlock()

	addrs, err := p.source.Addresses(ctx)
	if err != nil {
		return netip.Addr{}, err
	}
	if len(addrs) == 0 {
		return netip.Addr{}, ErrNoAddresses
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.addrs = addrs
	p.next = 1
	return addrs[0], nil
}

func (p *Pool) nextBackoff() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextBackoffLocked()
}

func (p *Pool) nextBackoffLocked() time.Duration {
	d := p.backoff.NextBackOff()
	if d == backoff.Stop {
		d = p.cfg.Backoff.Max
	}
	return d
}

func (p *Pool) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-p.clock.TickAfter(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) reportAlive() {
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.PoolAlive(p.Alive())
	}
}

func (p *Pool) startStatus() {
	p.statusOnce.Do(func() {
		p.mu.Lock()
		if p.stopped {
			p.mu.Unlock()
			return
		}
		p.wg.Add(1)
		p.mu.Unlock()

		p.status.Resume()
		go p.statusLoop()
	})
}

func (p *Pool) statusLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.status.Ticks():
			st := p.Stats()
			log.WithFields(logger.Fields{
				"at":          "(Pool) statusLoop",
				"slots":       st.Slots,
				"alive":       st.Alive,
				"established": st.Established,
			}).Info("Peer pool status")
			p.reportAlive()
		case <-p.ctx.Done():
			return
		}
	}
}
