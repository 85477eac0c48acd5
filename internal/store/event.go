package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
)

// EventRepository stores gesture events per session.
type EventRepository struct {
	db *sql.DB
}

// Events returns the event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Append inserts events for a session in one transaction.
// Events keep the Seq assigned by the live log.
func (r *EventRepository) Append(sessionID string, evs ...gesture.Event) error {
	if len(evs) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO events (session_id, seq, kind, hand_id, x, y, start_x, start_y, ts_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range evs {
		var startX, startY sql.NullFloat64
		if e.Line != nil {
			startX = sql.NullFloat64{Float64: e.Line.Start.X, Valid: true}
			startY = sql.NullFloat64{Float64: e.Line.Start.Y, Valid: true}
		}
		if _, err := stmt.Exec(
			sessionID, e.Seq, string(e.Kind), e.HandID.String(),
			e.Point.X, e.Point.Y, startX, startY, e.Timestamp.UnixNano(),
		); err != nil {
			return fmt.Errorf("insert event %d: %w", e.Seq, err)
		}
	}

	return tx.Commit()
}

// ListBySession returns a session's events with Seq greater than since, in
// order. A limit of zero or less returns all of them.
func (r *EventRepository) ListBySession(sessionID string, since uint64, limit int) ([]gesture.Event, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(
		`SELECT seq, kind, hand_id, x, y, start_x, start_y, ts_ns
		 FROM events WHERE session_id = ? AND seq > ?
		 ORDER BY seq ASC LIMIT ?`,
		sessionID, since, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []gesture.Event{}
	for rows.Next() {
		var (
			e              gesture.Event
			kind, handID   string
			startX, startY sql.NullFloat64
			tsNano         int64
		)
		if err := rows.Scan(&e.Seq, &kind, &handID, &e.Point.X, &e.Point.Y, &startX, &startY, &tsNano); err != nil {
			return nil, err
		}

		e.Kind = gesture.Kind(kind)
		e.HandID, err = uuid.Parse(handID)
		if err != nil {
			return nil, fmt.Errorf("event %d hand id: %w", e.Seq, err)
		}
		if startX.Valid && startY.Valid {
			e.Line = &gesture.Line{
				Start: detector.Point{X: startX.Float64, Y: startY.Float64},
				End:   e.Point,
			}
		}
		e.Timestamp = time.Unix(0, tsNano)
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// CountBySession returns the number of events stored for a session.
func (r *EventRepository) CountBySession(sessionID string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM events WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}
