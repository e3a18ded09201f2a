package store

import (
	"errors"
	"sync"
	"time"

	"github.com/ayusman/mouthosc/internal/signal"
	"github.com/sirupsen/logrus"
)

// ErrSessionClosed is returned when closing a recorder twice.
var ErrSessionClosed = errors.New("session already closed")

// DefaultFlushEvery is how many pairs the recorder buffers before writing.
const DefaultFlushEvery = 30

// Recorder is a signal.Sink that writes emitted pairs into a session.
// Writes are batched; failures are logged and the batch is dropped.
type Recorder struct {
	sessions   *SessionRepository
	session    *Session
	log        *logrus.Entry
	flushEvery int
	now        func() time.Time

	mu      sync.Mutex
	pending []Sample
	seq     int
	closed  bool
}

// NewRecorder starts a session and returns a recorder bound to it.
func NewRecorder(s *Store, target, topology string, log *logrus.Entry) (*Recorder, error) {
	sessions := s.Sessions()
	sess, err := sessions.Start(target, topology)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"session": sess.ID,
		"db":      s.Path(),
	}).Info("Recording session")

	return &Recorder{
		sessions:   sessions,
		session:    sess,
		log:        log,
		flushEvery: DefaultFlushEvery,
		now:        time.Now,
	}, nil
}

// Session returns the session being recorded.
func (r *Recorder) Session() *Session {
	return r.session
}

// Emit buffers one pair and flushes when the batch is full.
func (r *Recorder) Emit(p signal.Pair) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	r.pending = append(r.pending, Sample{
		Seq:       r.seq,
		Width:     p.Width.Value,
		Height:    p.Height.Value,
		EmittedAt: r.now().UnixMilli(),
	})
	r.seq++

	if len(r.pending) >= r.flushEvery {
		r.flushLocked()
	}
}

// Flush writes any buffered pairs.
func (r *Recorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked()
}

func (r *Recorder) flushLocked() {
	if len(r.pending) == 0 {
		return
	}
	if err := r.sessions.AppendSamples(r.session.ID, r.pending); err != nil {
		r.log.WithFields(logrus.Fields{
			"session": r.session.ID,
			"dropped": len(r.pending),
			"error":   err,
		}).Warn("Failed to write samples")
	}
	r.pending = r.pending[:0]
}

// Close flushes buffered pairs and stamps the session end time.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrSessionClosed
	}
	r.closed = true

	r.flushLocked()
	return r.sessions.End(r.session.ID)
}
