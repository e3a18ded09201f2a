package signal

import (
	"errors"
	"io"
	"sync"
)

// Sink receives mapped pairs. Emission is fire-and-forget: a sink handles
// its own delivery failures and never reports them back to the caller.
type Sink interface {
	Emit(p Pair)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(p Pair)

// Emit calls f(p).
func (f SinkFunc) Emit(p Pair) { f(p) }

// Multi fans pairs out to several sinks in registration order.
type Multi struct {
	sinks []Sink
}

// NewMulti creates a Multi over the given sinks. Nil sinks are skipped.
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		m.Add(s)
	}
	return m
}

// Add appends a sink.
func (m *Multi) Add(s Sink) {
	if s == nil {
		return
	}
	m.sinks = append(m.sinks, s)
}

// Len returns the number of registered sinks.
func (m *Multi) Len() int {
	return len(m.sinks)
}

// Emit hands p to every sink.
func (m *Multi) Emit(p Pair) {
	for _, s := range m.sinks {
		s.Emit(p)
	}
}

// Close closes every sink that implements io.Closer and joins their errors.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Recorder is an in-memory Sink that keeps every pair it receives.
type Recorder struct {
	mu    sync.Mutex
	pairs []Pair
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit stores p.
func (r *Recorder) Emit(p Pair) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairs = append(r.pairs, p)
}

// Pairs returns a copy of the received pairs in order.
func (r *Recorder) Pairs() []Pair {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Pair, len(r.pairs))
	copy(out, r.pairs)
	return out
}

// Signals returns the received signals flattened in emission order.
func (r *Recorder) Signals() []Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Signal, 0, 2*len(r.pairs))
	for _, p := range r.pairs {
		s := p.Signals()
		out = append(out, s[:]...)
	}
	return out
}
