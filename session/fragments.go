package session

import (
	"fmt"

	"github.com/opd-ai/raknet/limits"
	"github.com/opd-ai/raknet/protocol"
)

type compound struct {
	parts    [][]byte
	received int
}

// AddFragment buffers one part of a fragmented frame. When the last part
// arrives the joined body is returned with complete set. Unfragmented frames
// are returned as they are.
func (s *Session) AddFragment(f protocol.Frame) (body []byte, complete bool, err error) {
	if !f.Fragmented {
		return f.Body, true, nil
	}
	if err := limits.ValidateFragmentCount(f.CompoundSize); err != nil {
		return nil, false, fmt.Errorf("%w: compound %d: %w", ErrFragment, f.CompoundID, err)
	}
	if f.CompoundIndex >= f.CompoundSize {
		return nil, false, fmt.Errorf("%w: compound %d index %d of %d",
			ErrFragment, f.CompoundID, f.CompoundIndex, f.CompoundSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == IsNotConnected {
		return nil, false, fmt.Errorf("%w: session removed", ErrFragment)
	}
	if s.fragments == nil {
		s.fragments = make(map[uint16]*compound)
	}
	c, ok := s.fragments[f.CompoundID]
	if !ok {
		if len(s.fragments) >= limits.MaxSplitPackets {
			return nil, false, fmt.Errorf("%w: %d compounds pending", ErrFragment, len(s.fragments))
		}
		c = &compound{parts: make([][]byte, f.CompoundSize)}
		s.fragments[f.CompoundID] = c
	}
	if len(c.parts) != int(f.CompoundSize) {
		return nil, false, fmt.Errorf("%w: compound %d size changed from %d to %d",
			ErrFragment, f.CompoundID, len(c.parts), f.CompoundSize)
	}
	if c.parts[f.CompoundIndex] == nil {
		part := make([]byte, len(f.Body))
		copy(part, f.Body)
		c.parts[f.CompoundIndex] = part
		c.received++
	}
	if c.received < len(c.parts) {
		return nil, false, nil
	}

	delete(s.fragments, f.CompoundID)
	size := 0
	for _, p := range c.parts {
		size += len(p)
	}
	body = make([]byte, 0, size)
	for _, p := range c.parts {
		body = append(body, p...)
	}
	return body, true, nil
}
