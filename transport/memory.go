package transport

import (
	"errors"
	"io"
	"net/netip"
	"sync"

	"github.com/opd-ai/raknet/limits"
	"github.com/sirupsen/logrus"
)

// ErrAddressInUse is returned when two memory transports claim one address.
var ErrAddressInUse = errors.New("transport: address in use")

// memoryQueueSize is how many datagrams a memory transport buffers before
// dropping, like a full socket receive buffer.
const memoryQueueSize = 256

// DeliveryRecord represents a datagram handed to a MemoryNetwork.
type DeliveryRecord struct {
	From      netip.AddrPort
	To        netip.AddrPort
	Size      int
	Delivered bool
}

// MemoryNetwork connects MemoryTransports inside one process. Datagrams to
// unknown addresses or full queues are lost, as on a real network, and every
// send is logged for test verification.
type MemoryNetwork struct {
	logger logrus.FieldLogger

	mu        sync.RWMutex
	endpoints map[netip.AddrPort]*MemoryTransport
	log       []DeliveryRecord
}

// NewMemoryNetwork returns an empty network.
func NewMemoryNetwork(logger logrus.FieldLogger) *MemoryNetwork {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &MemoryNetwork{
		logger:    logger,
		endpoints: make(map[netip.AddrPort]*MemoryTransport),
	}
}

// Listen attaches a transport at addr.
func (n *MemoryNetwork) Listen(addr netip.AddrPort) (*MemoryTransport, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.endpoints[addr]; ok {
		return nil, ErrAddressInUse
	}
	t := &MemoryTransport{
		network: n,
		addr:    addr,
		queue:   make(chan memoryDatagram, memoryQueueSize),
		done:    make(chan struct{}),
	}
	n.endpoints[addr] = t
	go t.processPackets()
	return t, nil
}

// Deliveries returns a copy of the delivery log.
func (n *MemoryNetwork) Deliveries() []DeliveryRecord {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]DeliveryRecord(nil), n.log...)
}

func (n *MemoryNetwork) deliver(from, to netip.AddrPort, data []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()

	record := DeliveryRecord{From: from, To: to, Size: len(data)}
	if t, ok := n.endpoints[to]; ok {
		dg := memoryDatagram{data: append([]byte(nil), data...), sender: from}
		select {
		case t.queue <- dg:
			record.Delivered = true
		default:
		}
	}
	n.log = append(n.log, record)

	if !record.Delivered {
		n.logger.WithFields(logrus.Fields{
			"function": "deliver",
			"from":     from.String(),
			"to":       to.String(),
			"size":     len(data),
		}).Debug("Datagram lost")
	}
}

func (n *MemoryNetwork) detach(t *MemoryTransport) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.endpoints[t.addr] == t {
		delete(n.endpoints, t.addr)
		close(t.queue)
	}
}

type memoryDatagram struct {
	data   []byte
	sender netip.AddrPort
}

// MemoryTransport is one endpoint of a MemoryNetwork. It implements
// Transport and delivers inbound datagrams in order on its own goroutine.
type MemoryTransport struct {
	network *MemoryNetwork
	addr    netip.AddrPort
	queue   chan memoryDatagram
	done    chan struct{}

	mu      sync.RWMutex
	handler DatagramHandler
	closed  bool
}

// RegisterHandler sets the inbound datagram handler.
func (t *MemoryTransport) RegisterHandler(handler DatagramHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
}

// SendTo queues one datagram for the endpoint at to.
func (t *MemoryTransport) SendTo(data []byte, to netip.AddrPort) error {
	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if err := limits.ValidateDatagram(data); err != nil {
		return err
	}
	t.network.deliver(t.addr, to, data)
	return nil
}

// LocalAddr returns the address the transport is attached at.
func (t *MemoryTransport) LocalAddr() netip.AddrPort {
	return t.addr
}

// Close detaches the transport and waits for queued datagrams to drain.
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.network.detach(t)
	<-t.done
	return nil
}

func (t *MemoryTransport) processPackets() {
	defer close(t.done)
	for dg := range t.queue {
		t.mu.RLock()
		handler := t.handler
		t.mu.RUnlock()
		if handler != nil {
			handler(dg.data, dg.sender, t.addr)
		}
	}
}
