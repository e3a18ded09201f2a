// Package emitter sends mapped mouth signals as OSC messages over UDP.
package emitter

import (
	"io"

	"github.com/ayusman/mouthosc/internal/signal"
	"github.com/hypebeast/go-osc/osc"
	"github.com/sirupsen/logrus"
)

// Sender is the subset of the go-osc client the emitter uses.
type Sender interface {
	Send(packet osc.Packet) error
}

// Emitter is a signal.Sink that sends one OSC message per signal.
// Delivery is fire-and-forget: send errors are logged at debug level and dropped.
type Emitter struct {
	sender Sender
	log    *logrus.Entry
}

// NewEmitter creates an Emitter targeting host:port. It fails when the
// target cannot be resolved, so a bad address is reported at startup.
func NewEmitter(host string, port int, log *logrus.Entry) (*Emitter, error) {
	sender, err := NewUDPSender(host, port)
	if err != nil {
		return nil, err
	}
	log.WithField("target", sender.RemoteAddr().String()).Info("Sending OSC")
	return NewEmitterWithSender(sender, log), nil
}

// NewEmitterWithSender creates an Emitter on top of an existing sender.
func NewEmitterWithSender(sender Sender, log *logrus.Entry) *Emitter {
	return &Emitter{
		sender: sender,
		log:    log,
	}
}

// Message builds the OSC message for one signal: the channel address with a single float32 argument.
func Message(s signal.Signal) *osc.Message {
	msg := osc.NewMessage(s.Channel.Address())
	msg.Append(float32(s.Value))
	return msg
}

// Emit sends width then height as two separate datagrams.
func (e *Emitter) Emit(p signal.Pair) {
	for _, s := range p.Signals() {
		if err := e.sender.Send(Message(s)); err != nil {
			e.log.WithFields(logrus.Fields{
				"address": s.Channel.Address(),
				"error":   err,
			}).Debug("OSC send failed")
		}
	}
}

// Close releases the sender when it holds a socket.
func (e *Emitter) Close() error {
	if c, ok := e.sender.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
