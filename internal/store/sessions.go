package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// StopReason explains why a pipeline run ended.
type StopReason string

const (
	// StopRequested means the run was stopped by an operator.
	StopRequested StopReason = "requested"
	// StopRuntimeError means the run was torn down after a graph error.
	StopRuntimeError StopReason = "runtime-error"
	// StopEndOfStream means the source signalled end of stream.
	StopEndOfStream StopReason = "eos"
)

// Session represents one pipeline run.
type Session struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	StoppedAt  *time.Time `json:"stopped_at,omitempty"`
	StopReason StopReason `json:"stop_reason,omitempty"`
	Frames     int64      `json:"frames"`
	Detections int64      `json:"detections"`
}

// SessionEvent is a recorded pipeline event within a session.
type SessionEvent struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionRepository provides persistence for pipeline runs.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Begin records the start of a new run and returns its session.
func (r *SessionRepository) Begin(startedAt time.Time) (*Session, error) {
	sess := &Session{
		ID:        uuid.New().String(),
		StartedAt: startedAt,
	}

	_, err := r.db.Exec(
		`INSERT INTO sessions (id, started_at) VALUES (?, ?)`,
		sess.ID, sess.StartedAt,
	)
	if err != nil {
		return nil, err
	}

	return sess, nil
}

// Finish closes a run with its final counters.
func (r *SessionRepository) Finish(id string, stoppedAt time.Time, reason StopReason, frames, detections int64) error {
	res, err := r.db.Exec(
		`UPDATE sessions SET stopped_at = ?, stop_reason = ?, frames = ?, detections = ?
		 WHERE id = ?`,
		stoppedAt, string(reason), frames, detections, id,
	)
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
	var stoppedAt sql.NullTime
	var reason string

	err := r.db.QueryRow(
		`SELECT id, started_at, stopped_at, stop_reason, frames, detections
		 FROM sessions WHERE id = ?`,
		id,
	).Scan(&sess.ID, &sess.StartedAt, &stoppedAt, &reason, &sess.Frames, &sess.Detections)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if stoppedAt.Valid {
		sess.StoppedAt = &stoppedAt.Time
	}
	sess.StopReason = StopReason(reason)
	return sess, nil
}

// List returns the most recent sessions, newest first.
func (r *SessionRepository) List(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(
		`SELECT id, started_at, stopped_at, stop_reason, frames, detections
		 FROM sessions ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess := &Session{}
		var stoppedAt sql.NullTime
		var reason string

		if err := rows.Scan(&sess.ID, &sess.StartedAt, &stoppedAt, &reason, &sess.Frames, &sess.Detections); err != nil {
			return nil, err
		}
		if stoppedAt.Valid {
			sess.StoppedAt = &stoppedAt.Time
		}
		sess.StopReason = StopReason(reason)
		sessions = append(sessions, sess)
	}

	return sessions, rows.Err()
}

// AddEvent records a pipeline event against a session.
func (r *SessionRepository) AddEvent(sessionID, eventType, message string) error {
	_, err := r.db.Exec(
		`INSERT INTO session_events (session_id, type, message) VALUES (?, ?, ?)`,
		sessionID, eventType, message,
	)
	return err
}

// Events returns all events recorded for a session, oldest first.
func (r *SessionRepository) Events(sessionID string) ([]*SessionEvent, error) {
	rows, err := r.db.Query(
		`SELECT id, session_id, type, message, created_at
		 FROM session_events WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*SessionEvent
	for rows.Next() {
		ev := &SessionEvent{}
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.Type, &ev.Message, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	return events, rows.Err()
}
