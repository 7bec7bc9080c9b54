// Package store handles SQLite persistence for sessions, frames, the
// energy index and points of interest.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrianomoraes/k5-spectrum-viewer/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// ErrSessionCorrupt marks a session whose frame sequence is broken. The
// frames before the break are still returned so partial replay works.
var ErrSessionCorrupt = errors.New("session frame sequence corrupt")

// Store wraps SQLite access for recorded sessions.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY,
			identifier TEXT NOT NULL UNIQUE,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL DEFAULT '',
			pixel_offset INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS frames (
			session_id INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			offset_ms INTEGER NOT NULL,
			amplitudes TEXT NOT NULL,
			center_freq TEXT NOT NULL,
			start_freq TEXT NOT NULL,
			end_freq TEXT NOT NULL,
			modulation TEXT NOT NULL,
			bandwidth TEXT NOT NULL,
			rssi TEXT NOT NULL,
			energy INTEGER NOT NULL,
			PRIMARY KEY (session_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS energy_index (
			session_id INTEGER NOT NULL,
			bucket_idx INTEGER NOT NULL,
			first_frame INTEGER NOT NULL,
			frame_count INTEGER NOT NULL,
			energy INTEGER NOT NULL,
			PRIMARY KEY (session_id, bucket_idx)
		);`,
		`CREATE TABLE IF NOT EXISTS pois (
			id INTEGER PRIMARY KEY,
			session_id INTEGER,
			frequency_mhz REAL NOT NULL,
			offset_ms INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			description TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);`,
		`CREATE INDEX IF NOT EXISTS idx_pois_session ON pois(session_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// BeginSession opens a new session row and returns its id. The human
// readable identifier is derived from the start time.
func (s *Store) BeginSession(ctx context.Context, start time.Time) (int64, error) {
	identifier := "rec_" + start.Format("20060102_150405")
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (identifier, started_at) VALUES (?, ?)`,
		identifier, start.Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("failed to insert session: %w", err)
	}
	return res.LastInsertId()
}

// AppendFrame stores one frame of an open session.
func (s *Store) AppendFrame(ctx context.Context, sessionID int64, frame *model.SpectrumFrame) error {
	amps, err := json.Marshal(frame.Amplitudes)
	if err != nil {
		return fmt.Errorf("failed to encode amplitudes: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO frames (session_id, seq, offset_ms, amplitudes, center_freq, start_freq, end_freq, modulation, bandwidth, rssi, energy)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, frame.Seq, frame.Offset.Milliseconds(), string(amps),
		frame.CenterFreq, frame.StartFreq, frame.EndFreq,
		frame.Modulation, frame.Bandwidth, frame.RSSI, frame.Energy)
	if err != nil {
		return fmt.Errorf("failed to insert frame: %w", err)
	}
	return nil
}

// FinishSession fixes the end timestamp and replaces the session's energy
// index, making the session immutable from the reader's point of view.
func (s *Store) FinishSession(ctx context.Context, sessionID int64, end time.Time, buckets []model.EnergyBucket) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE id = ?`,
		end.Format(time.RFC3339Nano), sessionID); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM energy_index WHERE session_id = ?`, sessionID); err != nil {
		return err
	}
	if len(buckets) > 0 {
		stmt, perr := tx.PrepareContext(ctx,
			`INSERT INTO energy_index (session_id, bucket_idx, first_frame, frame_count, energy)
			 VALUES (?, ?, ?, ?, ?)`)
		if perr != nil {
			err = perr
			return err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for _, bk := range buckets {
			if _, err = stmt.ExecContext(ctx, sessionID, bk.Index, bk.FirstFrame, bk.FrameCount, bk.Energy); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// SetCalibration updates a session's render-time pixel offset.
func (s *Store) SetCalibration(ctx context.Context, sessionID int64, cal model.Calibration) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET pixel_offset = ? WHERE id = ?`, cal.PixelOffset, sessionID)
	return err
}

// GetSession loads one session row.
func (s *Store) GetSession(ctx context.Context, sessionID int64) (model.Session, error) {
	var sess model.Session
	var startedAt, endedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, identifier, started_at, ended_at, pixel_offset FROM sessions WHERE id = ?`,
		sessionID).Scan(&sess.ID, &sess.Identifier, &startedAt, &endedAt, &sess.Calibration.PixelOffset)
	if err != nil {
		return model.Session{}, err
	}
	if sess.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return model.Session{}, err
	}
	if endedAt != "" {
		if sess.EndedAt, err = time.Parse(time.RFC3339Nano, endedAt); err != nil {
			return model.Session{}, err
		}
	}
	return sess, nil
}

// LoadFrames returns a session's frames in sequence order. A broken
// sequence (duplicate or decreasing seq, undecodable amplitudes) stops
// the load at the break: the valid prefix is returned together with
// ErrSessionCorrupt so callers can warn and replay what survived.
func (s *Store) LoadFrames(ctx context.Context, sessionID int64) ([]model.SpectrumFrame, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, offset_ms, amplitudes, center_freq, start_freq, end_freq, modulation, bandwidth, rssi, energy
		 FROM frames WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var frames []model.SpectrumFrame
	lastSeq := int64(-1)
	for rows.Next() {
		var f model.SpectrumFrame
		var offsetMS int64
		var amps string
		if err := rows.Scan(&f.Seq, &offsetMS, &amps, &f.CenterFreq, &f.StartFreq, &f.EndFreq, &f.Modulation, &f.Bandwidth, &f.RSSI, &f.Energy); err != nil {
			return frames, ErrSessionCorrupt
		}
		if f.Seq <= lastSeq {
			return frames, ErrSessionCorrupt
		}
		if err := json.Unmarshal([]byte(amps), &f.Amplitudes); err != nil {
			return frames, ErrSessionCorrupt
		}
		f.Offset = time.Duration(offsetMS) * time.Millisecond
		lastSeq = f.Seq
		frames = append(frames, f)
	}
	if err := rows.Err(); err != nil {
		return frames, err
	}
	return frames, nil
}

// LoadEnergyIndex returns a session's stored seek-bar buckets.
func (s *Store) LoadEnergyIndex(ctx context.Context, sessionID int64) ([]model.EnergyBucket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT bucket_idx, first_frame, frame_count, energy
		 FROM energy_index WHERE session_id = ? ORDER BY bucket_idx ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var buckets []model.EnergyBucket
	for rows.Next() {
		var bk model.EnergyBucket
		if err := rows.Scan(&bk.Index, &bk.FirstFrame, &bk.FrameCount, &bk.Energy); err != nil {
			return nil, err
		}
		buckets = append(buckets, bk)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return buckets, nil
}

// ListSessions returns session summaries, newest first, narrowed by the
// filter.
func (s *Store) ListSessions(ctx context.Context, filter model.SessionFilter) ([]model.SessionSummary, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.Search != "" {
		clauses = append(clauses, "s.identifier LIKE ?")
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Since != nil {
		clauses = append(clauses, "s.started_at >= ?")
		args = append(args, filter.Since.Format(time.RFC3339Nano))
	}
	query := fmt.Sprintf(`SELECT s.id, s.identifier, s.started_at, s.ended_at, s.pixel_offset,
			COUNT(f.seq) AS frame_count,
			COALESCE(MAX(f.energy), 0) AS max_energy,
			(SELECT COUNT(*) FROM pois p WHERE p.session_id = s.id) AS poi_count
		FROM sessions s
		LEFT JOIN frames f ON f.session_id = s.id
		WHERE %s
		GROUP BY s.id
		HAVING COALESCE(MAX(f.energy), 0) >= ?
		ORDER BY s.started_at DESC`, strings.Join(clauses, " AND "))
	args = append(args, filter.MinEnergy)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.SessionSummary
	for rows.Next() {
		var sum model.SessionSummary
		var startedAt, endedAt string
		if err := rows.Scan(&sum.ID, &sum.Identifier, &startedAt, &endedAt, &sum.Calibration.PixelOffset, &sum.FrameCount, &sum.MaxEnergy, &sum.POICount); err != nil {
			return nil, err
		}
		if sum.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, err
		}
		if endedAt != "" {
			if sum.EndedAt, err = time.Parse(time.RFC3339Nano, endedAt); err != nil {
				return nil, err
			}
			sum.Duration = sum.EndedAt.Sub(sum.StartedAt)
		}
		result = append(result, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteSession removes a session with its frames, index and bookmarks.
func (s *Store) DeleteSession(ctx context.Context, sessionID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()
	for _, stmt := range []string{
		`DELETE FROM frames WHERE session_id = ?`,
		`DELETE FROM energy_index WHERE session_id = ?`,
		`DELETE FROM pois WHERE session_id = ?`,
		`DELETE FROM sessions WHERE id = ?`,
	} {
		if _, err = tx.ExecContext(ctx, stmt, sessionID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CreatePOI stores a bookmark and returns its id. A nil SessionID marks
// a point of interest taken live, outside any recording.
func (s *Store) CreatePOI(ctx context.Context, poi model.POI) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pois (session_id, frequency_mhz, offset_ms, created_at, description)
		 VALUES (?, ?, ?, ?, ?)`,
		poi.SessionID, poi.FrequencyMHz, poi.Offset.Milliseconds(),
		poi.CreatedAt.Format(time.RFC3339Nano), poi.Description)
	if err != nil {
		return 0, fmt.Errorf("failed to insert poi: %w", err)
	}
	return res.LastInsertId()
}

// ListPOIs returns a session's bookmarks, or the live ones for a nil id.
func (s *Store) ListPOIs(ctx context.Context, sessionID *int64) ([]model.POI, error) {
	var rows *sql.Rows
	var err error
	if sessionID == nil {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, session_id, frequency_mhz, offset_ms, created_at, description
			 FROM pois WHERE session_id IS NULL ORDER BY created_at ASC`)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, session_id, frequency_mhz, offset_ms, created_at, description
			 FROM pois WHERE session_id = ? ORDER BY offset_ms ASC`, *sessionID)
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.POI
	for rows.Next() {
		var poi model.POI
		var offsetMS int64
		var createdAt string
		if err := rows.Scan(&poi.ID, &poi.SessionID, &poi.FrequencyMHz, &offsetMS, &createdAt, &poi.Description); err != nil {
			return nil, err
		}
		poi.Offset = time.Duration(offsetMS) * time.Millisecond
		if poi.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, err
		}
		result = append(result, poi)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// DeletePOI removes one bookmark.
func (s *Store) DeletePOI(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pois WHERE id = ?`, id)
	return err
}
