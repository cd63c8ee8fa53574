package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/opd-ai/raknet/limits"
	"github.com/sirupsen/logrus"
)

// readTimeout bounds each blocking read so the loop notices cancellation.
const readTimeout = 100 * time.Millisecond

// UDPTransport implements Transport over a single UDP socket.
type UDPTransport struct {
	conn      *net.UDPConn
	localAddr netip.AddrPort
	logger    logrus.FieldLogger

	mu      sync.RWMutex
	handler DatagramHandler

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewUDPTransport creates a new UDP transport listening on listenAddr and
// starts its read loop. Datagrams are passed to the registered handler one
// at a time, in arrival order, on the read goroutine.
func NewUDPTransport(listenAddr string, logger logrus.FieldLogger) (*UDPTransport, error) {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	pc, err := net.ListenPacket("udp", listenAddr)
	if err != nil {
		return nil, err
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("listen %s: not a UDP socket", listenAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &UDPTransport{
		conn:      conn,
		localAddr: conn.LocalAddr().(*net.UDPAddr).AddrPort(),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	go t.processPackets()

	logger.WithFields(logrus.Fields{
		"function": "NewUDPTransport",
		"local":    t.localAddr.String(),
	}).Debug("UDP transport listening")
	return t, nil
}

// RegisterHandler sets the inbound datagram handler. The data slice passed
// to it is a private copy the handler may keep.
func (t *UDPTransport) RegisterHandler(handler DatagramHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
}

// SendTo sends one datagram to the specified address.
func (t *UDPTransport) SendTo(data []byte, to netip.AddrPort) error {
	if t.ctx.Err() != nil {
		return ErrClosed
	}
	if err := limits.ValidateDatagram(data); err != nil {
		return err
	}
	_, err := t.conn.WriteToUDPAddrPort(data, to)
	return err
}

// Close shuts down the transport and waits for the read loop to exit.
func (t *UDPTransport) Close() error {
	t.cancel()
	err := t.conn.Close()
	<-t.done
	return err
}

// LocalAddr returns the local address the transport is listening on.
func (t *UDPTransport) LocalAddr() netip.AddrPort {
	return t.localAddr
}

func (t *UDPTransport) processPackets() {
	defer close(t.done)
	buffer := make([]byte, limits.MaxDatagramSize)

	for {
		select {
		case <-t.ctx.Done():
			return
		default:
			if !t.processIncomingPacket(buffer) {
				return
			}
		}
	}
}

// processIncomingPacket reads and dispatches one datagram. It returns false
// once the socket is closed.
func (t *UDPTransport) processIncomingPacket(buffer []byte) bool {
	_ = t.conn.SetReadDeadline(time.Now().Add(readTimeout))

	n, addr, err := t.conn.ReadFromUDPAddrPort(buffer)
	if err != nil {
		return t.handleReadError(err)
	}

	t.mu.RLock()
	handler := t.handler
	t.mu.RUnlock()
	if handler == nil {
		return true
	}

	data := make([]byte, n)
	copy(data, buffer[:n])
	handler(data, netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port()), t.localAddr)
	return true
}

func (t *UDPTransport) handleReadError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, net.ErrClosed) || t.ctx.Err() != nil {
		return false
	}
	t.logger.WithFields(logrus.Fields{
		"function": "processIncomingPacket",
		"local":    t.localAddr.String(),
		"error":    err.Error(),
	}).Warn("UDP read failed")
	return true
}
