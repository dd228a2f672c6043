package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// TrainingSession records one training run: when it started, when its
// weights were saved, and how many samples each class ended up with.
type TrainingSession struct {
	ID              string     `json:"id"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	NoActionSamples int        `json:"noaction_samples"`
	DownSamples     int        `json:"down_samples"`
	UpSamples       int        `json:"up_samples"`
}

// SessionRepository provides access to training sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the training session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Create inserts a new, unfinished session. ID and StartedAt are filled in
// when empty.
func (r *SessionRepository) Create(ts *TrainingSession) error {
	if ts.ID == "" {
		ts.ID = uuid.New().String()
	}
	if ts.StartedAt.IsZero() {
		ts.StartedAt = time.Now()
	}

	_, err := r.db.Exec(
		`INSERT INTO training_sessions (id, started_at, noaction_samples, down_samples, up_samples)
		 VALUES (?, ?, ?, ?, ?)`,
		ts.ID, ts.StartedAt, ts.NoActionSamples, ts.DownSamples, ts.UpSamples,
	)
	return err
}

// Finish marks a session as saved with its final per-class sample counts.
func (r *SessionRepository) Finish(id string, noAction, down, up int) error {
	result, err := r.db.Exec(
		`UPDATE training_sessions
		 SET finished_at = ?, noaction_samples = ?, down_samples = ?, up_samples = ?
		 WHERE id = ?`,
		time.Now(), noAction, down, up, id,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*TrainingSession, error) {
	row := r.db.QueryRow(
		`SELECT id, started_at, finished_at, noaction_samples, down_samples, up_samples
		 FROM training_sessions WHERE id = ?`,
		id,
	)

	ts, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return ts, nil
}

// List returns sessions, most recent first, up to limit (0 for all).
func (r *SessionRepository) List(limit int) ([]*TrainingSession, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(
		`SELECT id, started_at, finished_at, noaction_samples, down_samples, up_samples
		 FROM training_sessions ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*TrainingSession
	for rows.Next() {
		ts, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, ts)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(s scanner) (*TrainingSession, error) {
	ts := &TrainingSession{}
	var finished sql.NullTime

	err := s.Scan(&ts.ID, &ts.StartedAt, &finished, &ts.NoActionSamples, &ts.DownSamples, &ts.UpSamples)
	if err != nil {
		return nil, err
	}

	if finished.Valid {
		t := finished.Time
		ts.FinishedAt = &t
	}
	return ts, nil
}
