package transport

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	addrA = netip.MustParseAddrPort("10.0.0.1:19132")
	addrB = netip.MustParseAddrPort("10.0.0.2:19132")
)

func TestMemoryNetworkDelivery(t *testing.T) {
	network := NewMemoryNetwork(nil)
	a, err := network.Listen(addrA)
	require.NoError(t, err)
	defer a.Close()
	b, err := network.Listen(addrB)
	require.NoError(t, err)
	defer b.Close()

	inbox := make(chan received, 4)
	b.RegisterHandler(func(data []byte, sender, receiver netip.AddrPort) {
		assert.Equal(t, addrB, receiver)
		inbox <- received{data: data, sender: sender}
	})

	payload := []byte{0x00, 0x01}
	require.NoError(t, a.SendTo(payload, addrB))
	payload[0] = 0xff

	select {
	case got := <-inbox:
		assert.Equal(t, []byte{0x00, 0x01}, got.data)
		assert.Equal(t, addrA, got.sender)
	case <-time.After(time.Second):
		t.Fatal("datagram not delivered")
	}

	assert.Equal(t, []DeliveryRecord{{From: addrA, To: addrB, Size: 2, Delivered: true}}, network.Deliveries())
}

func TestMemoryNetworkLosesUnroutableDatagrams(t *testing.T) {
	network := NewMemoryNetwork(nil)
	a, err := network.Listen(addrA)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.SendTo([]byte{0x00}, addrB))

	records := network.Deliveries()
	require.Len(t, records, 1)
	assert.False(t, records[0].Delivered)
}

func TestMemoryNetworkAddressInUse(t *testing.T) {
	network := NewMemoryNetwork(nil)
	a, err := network.Listen(addrA)
	require.NoError(t, err)

	_, err = network.Listen(addrA)
	assert.ErrorIs(t, err, ErrAddressInUse)

	require.NoError(t, a.Close())
	again, err := network.Listen(addrA)
	require.NoError(t, err)
	again.Close()
}

func TestMemoryTransportClose(t *testing.T) {
	network := NewMemoryNetwork(nil)
	a, err := network.Listen(addrA)
	require.NoError(t, err)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.ErrorIs(t, a.SendTo([]byte{0x00}, addrB), ErrClosed)
}

func TestTransportsSatisfyInterface(t *testing.T) {
	var _ Transport = (*UDPTransport)(nil)
	var _ Transport = (*MemoryTransport)(nil)
}
