package pool

import (
	"context"
	"net"
	"net/netip"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/btcpeer/btcpeer/lib/bootstrap"
	"github.com/btcpeer/btcpeer/lib/peer"
	"github.com/btcpeer/btcpeer/lib/wire"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 3 * time.Second

type dial struct {
	address string
	server  net.Conn
}

// remoteDialer connects sessions to in-process remotes over net.Pipe.
// With respond set, the remote completes the handshake.
type remoteDialer struct {
	respond bool

	mu    sync.Mutex
	dials []dial
}

func (d *remoteDialer) DialContext(ctx context.Context, _, address string) (net.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, server := net.Pipe()
	d.mu.Lock()
	d.dials = append(d.dials, dial{address: address, server: server})
	d.mu.Unlock()
	go serveRemote(server, d.respond)
	return client, nil
}

func (d *remoteDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

func (d *remoteDialer) serverFor(address string) net.Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, dl := range d.dials {
		if dl.address == address {
			return dl.server
		}
	}
	return nil
}

func serveRemote(conn net.Conn, respond bool) {
	defer conn.Close()
	version, _ := wire.EncodeMessage(wire.CmdVersion, wire.NewVersion(wire.VersionParams{
		ProtocolVersion: 70016,
		AddrRecv:        wire.ZeroNetAddr,
		AddrFrom:        wire.ZeroNetAddr,
		Nonce:           7,
		UserAgent:       "/remote/",
	}))
	verack, _ := wire.EncodeMessage(wire.CmdVerack, wire.Verack())

	rf := wire.NewReframer(0)
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			_ = rf.Feed(buf[:n], func(m wire.Message) error {
				if respond && m.Command == wire.CmdVersion {
					go conn.Write(append(append([]byte(nil), version...), verack...))
				}
				return nil
			})
		}
		if err != nil {
			return
		}
	}
}

type fakeSource struct {
	mu    sync.Mutex
	calls int
	fail  int
	addrs []netip.Addr
}

func (f *fakeSource) Addresses(context.Context) ([]netip.Addr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fail || len(f.addrs) == 0 {
		return nil, bootstrap.ErrResolver
	}
	return f.addrs, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type aliveRecorder struct {
	mu   sync.Mutex
	seen []int
	max  int
}

func (r *aliveRecorder) PoolAlive(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, n)
	if n > r.max {
		r.max = n
	}
}

func (r *aliveRecorder) snapshot() ([]int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.seen...), r.max
}

var (
	addrA = netip.MustParseAddr("192.0.2.10")
	addrB = netip.MustParseAddr("192.0.2.11")
)

func testConfig(d peer.Dialer) Config {
	cfg := DefaultConfig()
	cfg.Peer.Dialer = d
	cfg.DialInterval = time.Millisecond
	cfg.DialBurst = 100
	cfg.Backoff = BackoffConfig{Initial: time.Millisecond, Max: 5 * time.Millisecond, Multiplier: 2}
	cfg.StatusTicker = ticker.NewForce(time.Hour)
	return cfg
}

func startPool(t *testing.T, src AddressSource, cfg Config, n int) *Pool {
	t.Helper()
	p := New(src, cfg)
	require.NoError(t, p.Init(context.Background(), n))
	t.Cleanup(func() {
		p.Stop()
		p.Wait()
	})
	return p
}

// watchBound samples the pool until the test ends and fails if more than n
// sessions are ever alive.
func watchBound(t *testing.T, p *Pool, n int) {
	var over atomic.Int32
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
			}
			if p.Alive() > n || len(p.Sessions()) > n {
				over.Add(1)
			}
			time.Sleep(100 * time.Microsecond)
		}
	}()
	t.Cleanup(func() {
		close(done)
		assert.Zero(t, over.Load(), "more than %d sessions alive", n)
	})
}

func TestInitRoundRobin(t *testing.T) {
	d := &remoteDialer{respond: true}
	src := &fakeSource{addrs: []netip.Addr{addrA, addrB}}
	p := startPool(t, src, testConfig(d), 3)

	sessions := p.Sessions()
	require.Len(t, sessions, 3)
	assert.Equal(t, addrA, sessions[0].Addr().Addr())
	assert.Equal(t, addrB, sessions[1].Addr().Addr())
	assert.Equal(t, addrA, sessions[2].Addr().Addr())
	assert.Equal(t, uint16(wire.DefaultPort), sessions[0].Addr().Port())
	assert.Equal(t, 2, src.callCount())

	require.Eventually(t, func() bool {
		return p.Stats().Established == 3
	}, waitFor, time.Millisecond)
	assert.Equal(t, Stats{Slots: 3, Alive: 3, Established: 3}, p.Stats())
}

func TestReplaceAfterDisconnect(t *testing.T) {
	d := &remoteDialer{respond: true}
	src := &fakeSource{addrs: []netip.Addr{addrA, addrB}}
	p := startPool(t, src, testConfig(d), 2)
	watchBound(t, p, 2)

	require.Eventually(t, func() bool {
		return p.Stats().Established == 2
	}, waitFor, time.Millisecond)
	old := p.Sessions()[0]

	server := d.serverFor(netip.AddrPortFrom(addrA, wire.DefaultPort).String())
	require.NotNil(t, server)
	server.Close()

	<-old.Done()
	require.ErrorIs(t, old.Err(), peer.ErrSocket)

	require.Eventually(t, func() bool {
		s := p.Sessions()
		return len(s) == 2 && s[0] != old && p.Stats().Established == 2
	}, waitFor, time.Millisecond)
	assert.Equal(t, 3, d.count())
	assert.NotContains(t, p.Sessions(), old)
	assert.Equal(t, peer.StateClosed, old.State())
}

func TestReplaceAfterHandshakeTimeout(t *testing.T) {
	d := &remoteDialer{respond: false}
	src := &fakeSource{addrs: []netip.Addr{addrA}}
	cfg := testConfig(d)
	cfg.Peer.HandshakeTimeouts = peer.HandshakeTimeouts{Version: 20 * time.Millisecond, Verack: 20 * time.Millisecond}
	rec := &aliveRecorder{}
	cfg.Metrics = rec

	p := startPool(t, src, cfg, 1)
	watchBound(t, p, 1)
	first := p.Sessions()[0]

	<-first.Done()
	require.ErrorIs(t, first.Err(), peer.ErrHandshakeTimeout)

	require.Eventually(t, func() bool {
		return d.count() >= 3
	}, waitFor, time.Millisecond)

	_, maxAlive := rec.snapshot()
	assert.LessOrEqual(t, maxAlive, 1)
}

// TestConcurrentClosesReplaceEachSlotOnce verifies that closing a subset of
// sessions at once brings the pool back to full strength with exactly one
// replacement per closed session.
func TestConcurrentClosesReplaceEachSlotOnce(t *testing.T) {
	const (
		slots  = 4
		closed = 3
		rounds = 5
	)
	d := &remoteDialer{respond: true}
	src := &fakeSource{addrs: []netip.Addr{addrA, addrB}}
	p := startPool(t, src, testConfig(d), slots)
	watchBound(t, p, slots)

	established := func() bool {
		return p.Stats() == Stats{Slots: slots, Alive: slots, Established: slots}
	}
	require.Eventually(t, established, waitFor, time.Millisecond)

	for round := 1; round <= rounds; round++ {
		victims := p.Sessions()[:closed]

		var wg sync.WaitGroup
		for _, s := range victims {
			wg.Add(1)
			go func(s *peer.Session) {
				defer wg.Done()
				s.Close()
			}(s)
		}
		wg.Wait()

		require.Eventually(t, func() bool {
			current := p.Sessions()
			for _, v := range victims {
				if slices.Contains(current, v) {
					return false
				}
			}
			return established()
		}, waitFor, time.Millisecond, "round %d", round)
		assert.Equal(t, slots+closed*round, d.count(), "round %d", round)
	}
}

func TestResolverFailureRetried(t *testing.T) {
	d := &remoteDialer{respond: true}
	src := &fakeSource{fail: 2, addrs: []netip.Addr{addrA}}
	p := startPool(t, src, testConfig(d), 1)

	assert.Equal(t, 3, src.callCount())
	require.Len(t, p.Sessions(), 1)
}

func TestInitHonoursContext(t *testing.T) {
	src := &fakeSource{}
	p := New(src, testConfig(&remoteDialer{}))
	defer func() {
		p.Stop()
		p.Wait()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.Error(t, p.Init(ctx, 1))
	assert.Empty(t, p.Sessions())
	assert.Greater(t, src.callCount(), 1)
}

func TestStaleTerminationIgnored(t *testing.T) {
	d := &remoteDialer{respond: true}
	src := &fakeSource{addrs: []netip.Addr{addrA}}
	p := startPool(t, src, testConfig(d), 1)
	current := p.Sessions()[0]

	stray := peer.New(netip.AddrPortFrom(addrB, 0), peer.DefaultConfig(), nil)
	p.replaceSlot(0, stray, peer.ErrClosed)
	p.replaceSlot(5, stray, peer.ErrClosed)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []*peer.Session{current}, p.Sessions())
	assert.Equal(t, 1, d.count())
}

func TestStop(t *testing.T) {
	d := &remoteDialer{respond: true}
	src := &fakeSource{addrs: []netip.Addr{addrA, addrB}}
	p := New(src, testConfig(d))
	require.NoError(t, p.Init(context.Background(), 2))
	// Init returns once sessions are started; dials happen in the background.
	require.Eventually(t, func() bool {
		return p.Stats().Established == 2
	}, waitFor, time.Millisecond)
	sessions := p.Sessions()

	p.Stop()
	p.Wait()
	p.Stop()

	for _, s := range sessions {
		assert.Equal(t, peer.StateClosed, s.State())
		assert.ErrorIs(t, s.Err(), peer.ErrClosed)
	}
	assert.Equal(t, 2, d.count())
	assert.Zero(t, p.Alive())
	assert.ErrorIs(t, p.Init(context.Background(), 1), ErrStopped)
}

func TestStatusTick(t *testing.T) {
	d := &remoteDialer{respond: true}
	src := &fakeSource{addrs: []netip.Addr{addrA, addrB}}
	cfg := testConfig(d)
	rec := &aliveRecorder{}
	cfg.Metrics = rec
	force := cfg.StatusTicker.(*ticker.Force)

	p := startPool(t, src, cfg, 2)
	require.Eventually(t, func() bool {
		return p.Stats().Established == 2
	}, waitFor, time.Millisecond)

	before, _ := rec.snapshot()
	select {
	case force.Force <- time.Now():
	case <-time.After(waitFor):
		t.Fatal("status loop not running")
	}
	require.Eventually(t, func() bool {
		seen, _ := rec.snapshot()
		return len(seen) > len(before) && seen[len(seen)-1] == 2
	}, waitFor, time.Millisecond)
}

func TestSeedSourceIntegration(t *testing.T) {
	d := &remoteDialer{respond: true}
	src := bootstrap.NewSeedSource(bootstrap.NewStaticResolver(addrB, addrA), "seed.example")
	p := startPool(t, src, testConfig(d), 2)

	sessions := p.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, addrB, sessions[0].Addr().Addr())
	assert.Equal(t, addrA, sessions[1].Addr().Addr())
}
