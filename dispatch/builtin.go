package dispatch

import (
	"fmt"

	"github.com/opd-ai/raknet/protocol"
	"github.com/opd-ai/raknet/session"
	"github.com/sirupsen/logrus"
)

// mismatched drops a message whose type does not belong to its id, as
// returned by a misbehaving registered decoder.
func (d *Dispatcher) mismatched(function string, tm protocol.TargetedMessage) error {
	d.logger.WithFields(logrus.Fields{
		"function": function,
		"sender":   tm.Sender.String(),
		"message":  protocol.Name(tm.Message.ID()),
		"type":     fmt.Sprintf("%T", tm.Message),
	}).Warn("Dropped message of unexpected type")
	return nil
}

func (d *Dispatcher) handleConnectedPing(tm protocol.TargetedMessage, s *session.Session) error {
	ping, ok := tm.Message.(protocol.ConnectedPing)
	if !ok {
		return d.mismatched("handleConnectedPing", tm)
	}
	return s.Send(protocol.ConnectedPong{PingTime: ping.Time, PongTime: d.uptime()})
}

func (d *Dispatcher) handleConnectedPong(tm protocol.TargetedMessage, s *session.Session) error {
	pong, ok := tm.Message.(protocol.ConnectedPong)
	if !ok {
		return d.mismatched("handleConnectedPong", tm)
	}
	if !s.RecordPong(pong, d.uptime()) {
		return fmt.Errorf("pong for ping at %d arrived before it was sent", pong.PingTime)
	}
	return nil
}

func (d *Dispatcher) handleDetectLostConnections(_ protocol.TargetedMessage, s *session.Session) error {
	return s.Send(protocol.ConnectedPing{Time: d.uptime()})
}

// handleFrameSet reassembles the frames of a data datagram and delivers
// each complete body as a message of its own. Frame sets nested inside
// frames are dropped.
func (d *Dispatcher) handleFrameSet(tm protocol.TargetedMessage, s *session.Session) error {
	set, ok := tm.Message.(protocol.FrameSet)
	if !ok {
		return d.mismatched("handleFrameSet", tm)
	}
	logger := d.logger.WithFields(logrus.Fields{
		"function":  "handleFrameSet",
		"session":   s.ID().String(),
		"set_index": set.SetIndex,
	})

	for _, f := range set.Frames {
		body, complete, err := s.AddFragment(f)
		if err != nil {
			logger.WithField("error", err.Error()).Debug("Dropped fragment")
			continue
		}
		if !complete {
			continue
		}
		inner := d.catalog.Decode(body)
		if protocol.IsFrameSetID(inner.ID()) {
			logger.Trace("Dropped nested frame set")
			continue
		}
		d.deliver(protocol.TargetedMessage{Sender: tm.Sender, Receiver: tm.Receiver, Message: inner})
	}
	return nil
}
