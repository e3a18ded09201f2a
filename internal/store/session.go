package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Session represents one recorded run.
type Session struct {
	ID        string     `json:"id"`
	Target    string     `json:"target"`
	Topology  string     `json:"topology"`
	Pairs     int        `json:"pairs"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Sample is one recorded width/height pair.
type Sample struct {
	Seq       int     `json:"seq"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	EmittedAt int64   `json:"emitted_at_ms"`
}

// ChannelSummary describes the distribution of one channel over a session.
type ChannelSummary struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Summary aggregates a recorded session.
type Summary struct {
	Session *Session       `json:"session"`
	Count   int            `json:"count"`
	Width   ChannelSummary `json:"width"`
	Height  ChannelSummary `json:"height"`
}

// SessionRepository provides operations on recorded sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Start inserts a new open session with a fresh ID.
func (r *SessionRepository) Start(target, topology string) (*Session, error) {
	sess := &Session{
		ID:        uuid.NewString(),
		Target:    target,
		Topology:  topology,
		StartedAt: time.Now(),
	}

	_, err := r.db.Exec(
		`INSERT INTO sessions (id, target, topology, pairs, started_at) VALUES (?, ?, ?, 0, ?)`,
		sess.ID, sess.Target, sess.Topology, sess.StartedAt,
	)
	if err != nil {
		return nil, err
	}

	return sess, nil
}

// End stamps the end time of a session.
func (r *SessionRepository) End(id string) error {
	res, err := r.db.Exec(`UPDATE sessions SET ended_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*Session, error) {
	sess := &Session{}
	var ended sql.NullTime

	err := r.db.QueryRow(
		`SELECT id, target, topology, pairs, started_at, ended_at FROM sessions WHERE id = ?`,
		id,
	).Scan(&sess.ID, &sess.Target, &sess.Topology, &sess.Pairs, &sess.StartedAt, &ended)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if ended.Valid {
		sess.EndedAt = &ended.Time
	}
	return sess, nil
}

// List returns all sessions, newest first.
func (r *SessionRepository) List() ([]Session, error) {
	rows, err := r.db.Query(
		`SELECT id, target, topology, pairs, started_at, ended_at FROM sessions ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var ended sql.NullTime
		if err := rows.Scan(&sess.ID, &sess.Target, &sess.Topology, &sess.Pairs, &sess.StartedAt, &ended); err != nil {
			return nil, err
		}
		if ended.Valid {
			t := ended.Time
			sess.EndedAt = &t
		}
		sessions = append(sessions, sess)
	}

	return sessions, rows.Err()
}

// Delete removes a session and its samples.
func (r *SessionRepository) Delete(id string) error {
	res, err := r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendSamples inserts samples for a session in a single transaction
// and bumps the session's pair count.
func (r *SessionRepository) AppendSamples(sessionID string, samples []Sample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO signal_samples (session_id, seq, width, height, emitted_at_ms) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, smp := range samples {
		if _, err := stmt.Exec(sessionID, smp.Seq, smp.Width, smp.Height, smp.EmittedAt); err != nil {
			return err
		}
	}

	_, err = tx.Exec(`UPDATE sessions SET pairs = pairs + ? WHERE id = ?`, len(samples), sessionID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Samples returns every sample of a session in emission order.
func (r *SessionRepository) Samples(sessionID string) ([]Sample, error) {
	rows, err := r.db.Query(
		`SELECT seq, width, height, emitted_at_ms
		 FROM signal_samples
		 WHERE session_id = ?
		 ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var smp Sample
		if err := rows.Scan(&smp.Seq, &smp.Width, &smp.Height, &smp.EmittedAt); err != nil {
			return nil, err
		}
		samples = append(samples, smp)
	}

	return samples, rows.Err()
}

// Summary computes per-channel statistics for a session.
func (r *SessionRepository) Summary(sessionID string) (*Summary, error) {
	sess, err := r.GetByID(sessionID)
	if err != nil {
		return nil, err
	}

	samples, err := r.Samples(sessionID)
	if err != nil {
		return nil, err
	}

	widths := make([]float64, len(samples))
	heights := make([]float64, len(samples))
	for i, smp := range samples {
		widths[i] = smp.Width
		heights[i] = smp.Height
	}

	return &Summary{
		Session: sess,
		Count:   len(samples),
		Width:   summarize(widths),
		Height:  summarize(heights),
	}, nil
}

func summarize(values []float64) ChannelSummary {
	if len(values) == 0 {
		return ChannelSummary{}
	}

	var cs ChannelSummary
	cs.Mean, cs.StdDev = stat.MeanStdDev(values, nil)
	if len(values) == 1 {
		cs.StdDev = 0
	}
	cs.Min = floats.Min(values)
	cs.Max = floats.Max(values)
	return cs
}
