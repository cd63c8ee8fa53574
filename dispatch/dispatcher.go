package dispatch

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"sync"
	"time"

	"github.com/opd-ai/raknet/protocol"
	"github.com/opd-ai/raknet/session"
	"github.com/sirupsen/logrus"
)

// ErrBlocked marks traffic refused by a BlockFunc.
var ErrBlocked = errors.New("dispatch: traffic blocked")

// Handler processes one decoded message on the session it arrived on.
type Handler func(tm protocol.TargetedMessage, s *session.Session) error

// BlockFunc reports whether a raw datagram must be dropped before decoding.
type BlockFunc func(data []byte, sender, receiver netip.AddrPort) bool

type binding struct {
	handler Handler
	create  bool
}

// Config wires a Dispatcher to its collaborators.
type Config struct {
	Catalog  *protocol.Catalog
	Registry *session.Registry
	// Uptime returns the local RakNet time in milliseconds. It defaults to
	// the time since the dispatcher was created.
	Uptime func() int64
	Logger logrus.FieldLogger
}

// Dispatcher turns raw datagrams into handler calls: blocked-traffic check,
// decode, session lookup, then the handler bound to the message id.
type Dispatcher struct {
	catalog  *protocol.Catalog
	registry *session.Registry
	uptime   func() int64
	logger   logrus.FieldLogger

	mu       sync.RWMutex
	handlers map[byte]binding
	blockers []BlockFunc
}

// New returns a dispatcher with the keepalive and frame set handlers
// installed.
func New(cfg Config) *Dispatcher {
	if cfg.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		cfg.Logger = l
	}
	if cfg.Catalog == nil {
		cfg.Catalog = protocol.NewCatalog(cfg.Logger)
	}
	if cfg.Uptime == nil {
		start := time.Now()
		cfg.Uptime = func() int64 { return time.Since(start).Milliseconds() }
	}
	d := &Dispatcher{
		catalog:  cfg.Catalog,
		registry: cfg.Registry,
		uptime:   cfg.Uptime,
		logger:   cfg.Logger,
		handlers: make(map[byte]binding),
	}
	d.HandleExisting(protocol.IDConnectedPing, d.handleConnectedPing)
	d.HandleExisting(protocol.IDConnectedPong, d.handleConnectedPong)
	d.HandleExisting(protocol.IDDetectLostConnections, d.handleDetectLostConnections)
	for id := int(protocol.IDFrameSetFirst); id <= int(protocol.IDFrameSetLast); id++ {
		d.HandleExisting(byte(id), d.handleFrameSet)
	}
	return d
}

// Handle binds h to id. The first message of that id from an unknown pair
// creates its session.
func (d *Dispatcher) Handle(id byte, h Handler) {
	d.bind(id, binding{handler: h, create: true})
}

// HandleExisting binds h to id for pairs that already have a session;
// messages from unknown pairs are dropped.
func (d *Dispatcher) HandleExisting(id byte, h Handler) {
	d.bind(id, binding{handler: h})
}

func (d *Dispatcher) bind(id byte, b binding) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[id] = b
}

// Block adds a predicate consulted before every datagram is decoded.
func (d *Dispatcher) Block(f BlockFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blockers = append(d.blockers, f)
}

func (d *Dispatcher) blocked(data []byte, sender, receiver netip.AddrPort) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, f := range d.blockers {
		if f(data, sender, receiver) {
			return true
		}
	}
	return false
}

// HandleDatagram processes one datagram from sender received on receiver
// and returns what it decoded to. It never fails: blocked, undecodable and
// unhandled traffic is logged at trace level and dropped.
func (d *Dispatcher) HandleDatagram(data []byte, sender, receiver netip.AddrPort) protocol.TargetedMessage {
	if d.blocked(data, sender, receiver) {
		inv := protocol.InvalidMessage{Err: ErrBlocked}
		if len(data) > 0 {
			inv.MessageID = data[0]
		}
		d.logger.WithFields(logrus.Fields{
			"function": "HandleDatagram",
			"sender":   sender.String(),
			"size":     len(data),
		}).Trace("Dropped blocked datagram")
		return protocol.TargetedMessage{Sender: sender, Receiver: receiver, Message: inv}
	}

	tm := d.catalog.DecodeTargeted(data, sender, receiver)
	d.deliver(tm)
	return tm
}

func (d *Dispatcher) deliver(tm protocol.TargetedMessage) {
	id := tm.Message.ID()
	logger := d.logger.WithFields(logrus.Fields{
		"function": "deliver",
		"sender":   tm.Sender.String(),
		"receiver": tm.Receiver.String(),
		"message":  protocol.Name(id),
	})

	if inv, ok := tm.Message.(protocol.InvalidMessage); ok {
		logger.WithFields(logrus.Fields{
			"payload_size": len(inv.Payload),
			"error":        fmt.Sprint(inv.Err),
		}).Trace("Dropped invalid message")
		return
	}
	logger.Trace("Inbound message")

	d.mu.RLock()
	b, ok := d.handlers[id]
	d.mu.RUnlock()
	if !ok {
		logger.Trace("No handler for message")
		return
	}

	var s *session.Session
	if b.create {
		var err error
		if s, err = d.registry.GetOrCreate(tm.Sender, tm.Receiver); err != nil {
			logger.WithField("error", err.Error()).Debug("No session for message")
			return
		}
	} else if s, ok = d.registry.GetIfPresent(tm.Sender, tm.Receiver); !ok {
		logger.Trace("Dropped message for unknown session")
		return
	}

	if err := b.handler(tm, s); err != nil {
		logger.WithFields(logrus.Fields{
			"session": s.ID().String(),
			"error":   err.Error(),
		}).Debug("Handler failed")
	}
}
