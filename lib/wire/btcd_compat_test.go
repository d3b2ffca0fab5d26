package wire

import (
	"bytes"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	btcwire "github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const compatPver = 70012

func btcdFrame(t *testing.T, msg btcwire.Message) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, btcwire.WriteMessage(&buf, msg, compatPver, btcwire.MainNet))
	return buf.Bytes()
}

func TestVersionMatchesBtcd(t *testing.T) {
	zero := btcwire.NewNetAddressIPPort(net.IPv4zero, 0, 0)
	ref := &btcwire.MsgVersion{
		ProtocolVersion: compatPver,
		Services:        0,
		Timestamp:       time.Unix(1700000000, 0),
		AddrYou:         *zero,
		AddrMe:          *zero,
		Nonce:           0x0123456789ABCDEF,
		UserAgent:       "/Satoshi:28.1.0/",
		LastBlock:       0,
		DisableRelayTx:  true,
	}

	ours := mustFrame(t, CmdVersion, sampleVersion())
	assert.Equal(t, btcdFrame(t, ref), ours)

	msg, _, err := btcwire.ReadMessage(bytes.NewReader(ours), compatPver, btcwire.MainNet)
	require.NoError(t, err)
	got, ok := msg.(*btcwire.MsgVersion)
	require.True(t, ok)
	assert.Equal(t, int32(compatPver), got.ProtocolVersion)
	assert.Equal(t, uint64(0x0123456789ABCDEF), got.Nonce)
	assert.Equal(t, "/Satoshi:28.1.0/", got.UserAgent)
	assert.True(t, got.DisableRelayTx)
}

func TestVerackAndPingMatchBtcd(t *testing.T) {
	assert.Equal(t, btcdFrame(t, btcwire.NewMsgVerAck()), mustFrame(t, CmdVerack, Verack()))
	assert.Equal(t, btcdFrame(t, btcwire.NewMsgPing(0xDEADBEEF)), mustFrame(t, CmdPing, Ping(0xDEADBEEF)))
	assert.Equal(t, btcdFrame(t, btcwire.NewMsgPong(7)), mustFrame(t, CmdPong, Pong(7)))
}

func TestGetDataMatchesBtcd(t *testing.T) {
	display := "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"
	h, err := chainhash.NewHashFromStr(display)
	require.NoError(t, err)

	ref := btcwire.NewMsgGetData()
	require.NoError(t, ref.AddInvVect(btcwire.NewInvVect(btcwire.InvTypeBlock, h)))

	ours := mustFrame(t, CmdGetData, Object{
		"inventory": []any{InvVect{Type: InvTypeBlock, Hash: display}},
	})
	assert.Equal(t, btcdFrame(t, ref), ours)
}

func TestAddrMatchesBtcd(t *testing.T) {
	ts := time.Unix(1700000123, 0)
	na := btcwire.NewNetAddressTimestamp(ts, btcwire.SFNodeNetwork, net.IPv4(203, 0, 113, 9), 8333)
	ref := btcwire.NewMsgAddr()
	require.NoError(t, ref.AddAddress(na))

	ours := mustFrame(t, CmdAddr, Object{
		"addr_list": []any{NetAddr{
			Time:     uint32(ts.Unix()),
			Services: uint64(btcwire.SFNodeNetwork),
			Addr:     netip.MustParseAddr("203.0.113.9"),
			Port:     8333,
		}},
	})
	assert.Equal(t, btcdFrame(t, ref), ours)

	// And btcd frames decode through our reframer.
	r := NewReframer(0)
	var c collector
	require.NoError(t, r.Feed(btcdFrame(t, ref), c.handle))
	require.Len(t, c.msgs, 1)
	list := c.msgs[0].Object["addr_list"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, netip.MustParseAddr("203.0.113.9"), list[0].(NetAddr).Addr)
}
