package protocol

import (
	"fmt"
	"io"
	"sync"

	"github.com/opd-ai/raknet/codec"
	"github.com/sirupsen/logrus"
)

// DecodeFunc decodes a message body; the id byte has already been consumed.
// Decoders record failures on r or return them; either way the result is
// replaced with an InvalidMessage.
type DecodeFunc func(r *codec.Reader) (Message, error)

var builtinDecoders = func() (table [256]DecodeFunc) {
	table[IDConnectedPing] = decodeConnectedPing
	table[IDUnconnectedPing] = decodeUnconnectedPing
	table[IDUnconnectedPingOpenConnections] = decodeUnconnectedPingOpenConnections
	table[IDConnectedPong] = decodeConnectedPong
	table[IDDetectLostConnections] = decodeDetectLostConnections
	table[IDOpenConnectionRequest1] = decodeOpenConnectionRequest1
	table[IDOpenConnectionReply1] = decodeOpenConnectionReply1
	table[IDOpenConnectionRequest2] = decodeOpenConnectionRequest2
	table[IDOpenConnectionReply2] = decodeOpenConnectionReply2
	table[IDConnectionRequest] = decodeConnectionRequest
	table[IDRemoteSystemRequiresPublicKey] = decodeRemoteSystemRequiresPublicKey
	table[IDOurSystemRequiresSecurity] = decodeOurSystemRequiresSecurity
	table[IDPublicKeyMismatch] = decodePublicKeyMismatch
	table[IDOutOfBandInternal] = decodeOutOfBandInternal
	table[IDSndReceiptAcked] = decodeSndReceiptAcked
	table[IDSndReceiptLoss] = decodeSndReceiptLoss
	for id := int(IDFrameSetFirst); id <= int(IDFrameSetLast); id++ {
		table[id] = frameSetDecoder(byte(id))
	}
	return table
}()

// Catalog maps message ids to decoders. It starts with the built-in
// messages; applications add their own ids with Register.
type Catalog struct {
	mu       sync.RWMutex
	decoders [256]DecodeFunc
	logger   logrus.FieldLogger
}

// NewCatalog returns a catalog holding the built-in decoders. A nil logger
// discards output.
func NewCatalog(logger logrus.FieldLogger) *Catalog {
	if logger == nil {
		logger = discardLogger()
	}
	return &Catalog{decoders: builtinDecoders, logger: logger}
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Register binds fn to id. Built-in ids cannot be rebound and a nil decoder
// is refused; both cases are logged and reported as false.
func (c *Catalog) Register(id byte, fn DecodeFunc) bool {
	logger := c.logger.WithFields(logrus.Fields{
		"function": "Register",
		"id":       fmt.Sprintf("0x%02x", id),
	})
	if fn == nil {
		logger.Warn("Refusing nil decoder")
		return false
	}
	if IsBuiltinID(id) {
		logger.WithField("name", Name(id)).Warn("Refusing to replace built-in decoder")
		return false
	}

	c.mu.Lock()
	replaced := c.decoders[id] != nil
	c.decoders[id] = fn
	c.mu.Unlock()

	if replaced {
		logger.Warn("Replaced registered decoder")
	} else {
		logger.Debug("Registered decoder")
	}
	return true
}

// Decode decodes one datagram. It never fails: unknown ids and decode errors
// produce an InvalidMessage.
func (c *Catalog) Decode(data []byte) Message {
	if len(data) == 0 {
		return newInvalid(data, fmt.Errorf("%w: empty datagram", codec.ErrShortBuffer))
	}
	c.mu.RLock()
	fn := c.decoders[data[0]]
	c.mu.RUnlock()
	return decodeWith(fn, data)
}

// Decode decodes data with the built-in catalog.
func Decode(data []byte) Message {
	if len(data) == 0 {
		return newInvalid(data, fmt.Errorf("%w: empty datagram", codec.ErrShortBuffer))
	}
	return decodeWith(builtinDecoders[data[0]], data)
}

func decodeWith(fn DecodeFunc, data []byte) (msg Message) {
	if fn == nil {
		return newInvalid(data, nil)
	}
	defer func() {
		if p := recover(); p != nil {
			msg = newInvalid(data, fmt.Errorf("%w: decoder panic: %v", ErrMalformed, p))
		}
	}()
	r := codec.NewReader(data[1:])
	m, err := fn(r)
	if err == nil {
		err = r.Err()
	}
	if err == nil && m == nil {
		err = fmt.Errorf("%w: decoder returned no message", ErrMalformed)
	}
	if err != nil {
		return newInvalid(data, fmt.Errorf("decode %s: %w", Name(data[0]), err))
	}
	return m
}
