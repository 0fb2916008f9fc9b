package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/workoutwise/formcheck/internal/exercise"
	"github.com/workoutwise/formcheck/internal/placement"
	"github.com/workoutwise/formcheck/internal/session"
)

// ErrSessionNotFound is returned when no summary has the requested id.
var ErrSessionNotFound = errors.New("session not found")

// DefaultHistoryLimit bounds ListSessions when the caller passes 0.
const DefaultHistoryLimit = 100

const summaryColumns = `session_id, user_id, exercise, mode, started_unix, finished_unix,
	rep_count, form_status, stage, last_probability, foot_status, knee_status,
	correct_seconds, incorrect_seconds, video_seconds, diagnostics_json`

// RecordSession stores a session summary, replacing any earlier summary
// with the same id.
func (db *DB) RecordSession(s session.Summary) error {
	if s.ID == "" {
		return errors.New("session summary has no id")
	}
	diag, err := json.Marshal(s.Diagnostics)
	if err != nil {
		return fmt.Errorf("failed to encode diagnostics: %w", err)
	}
	var finished sql.NullFloat64
	if s.FinishedAt != nil {
		finished = sql.NullFloat64{Float64: unixSeconds(*s.FinishedAt), Valid: true}
	}

	_, err = db.Exec(`
		INSERT OR REPLACE INTO session_summaries (`+summaryColumns+`, frames, skipped_frames)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, string(s.Exercise), string(s.Mode),
		unixSeconds(s.StartedAt), finished,
		s.RepCount, s.FormStatus, s.Stage, s.LastProbability,
		string(s.FootStatus), string(s.KneeStatus),
		s.CorrectSeconds, s.IncorrectSeconds, s.VideoSeconds,
		string(diag), s.Diagnostics.Frames, s.Diagnostics.Skipped(),
	)
	if err != nil {
		return fmt.Errorf("failed to record session %s: %w", s.ID, err)
	}
	return nil
}

// GetSession loads one stored summary.
func (db *DB) GetSession(id string) (session.Summary, error) {
	row := db.QueryRow(`SELECT `+summaryColumns+` FROM session_summaries WHERE session_id = ?`, id)
	s, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Summary{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, err
}

// ListSessions returns a user's stored summaries, newest first.
func (db *DB) ListSessions(userID string, limit int) ([]session.Summary, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := db.Query(`SELECT `+summaryColumns+` FROM session_summaries
		WHERE user_id = ? ORDER BY started_unix DESC, session_id LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []session.Summary{}
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SessionCounts returns the number of stored sessions per exercise.
func (db *DB) SessionCounts() (map[exercise.Kind]int, error) {
	rows, err := db.Query(`SELECT exercise, COUNT(*) FROM session_summaries GROUP BY exercise`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[exercise.Kind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[exercise.Kind(kind)] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner) (session.Summary, error) {
	var (
		s          session.Summary
		kind, mode string
		foot, knee string
		started    float64
		finished   sql.NullFloat64
		diag       string
	)
	err := row.Scan(
		&s.ID, &s.UserID, &kind, &mode, &started, &finished,
		&s.RepCount, &s.FormStatus, &s.Stage, &s.LastProbability, &foot, &knee,
		&s.CorrectSeconds, &s.IncorrectSeconds, &s.VideoSeconds, &diag,
	)
	if err != nil {
		return session.Summary{}, err
	}
	s.Exercise = exercise.Kind(kind)
	s.Mode = session.Mode(mode)
	s.FootStatus = placement.Placement(foot)
	s.KneeStatus = placement.Placement(knee)
	s.StartedAt = fromUnixSeconds(started)
	if finished.Valid {
		t := fromUnixSeconds(finished.Float64)
		s.FinishedAt = &t
	}
	if err := json.Unmarshal([]byte(diag), &s.Diagnostics); err != nil {
		return session.Summary{}, fmt.Errorf("failed to decode diagnostics for %s: %w", s.ID, err)
	}
	return s, nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// fromUnixSeconds keeps microsecond precision, which is all a double holds
// for present-day timestamps.
func fromUnixSeconds(v float64) time.Time {
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*1e3).UTC()
}
