package store

import (
	"context"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// timeArray adapts a timestamp slice for use with ANY($n).
func timeArray(v []time.Time) driver.Valuer {
	return pq.Array(v)
}

const insertReading = `
INSERT INTO power_readings ("timestamp", plant_id, power_w)
VALUES (:timestamp, :plant_id, :power_w)
ON CONFLICT ("timestamp", plant_id) DO NOTHING`

// SaveReadingsBatch inserts measured production rows, ignoring duplicates on
// (timestamp, plant_id). The ingest layer validates the whole file before
// calling this, so a batch is all-or-nothing at the validation level.
func (s *Store) SaveReadingsBatch(ctx context.Context, rows []ReadingRow) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if _, err := s.db.NamedExecContext(ctx, insertReading, rows); err != nil {
		return fmt.Errorf("insert %d reading rows: %w", len(rows), err)
	}
	return nil
}

// ReadingsInRange returns a plant's readings between from and to inclusive,
// ordered by timestamp.
func (s *Store) ReadingsInRange(ctx context.Context, plantID int, from, to time.Time) ([]ReadingRow, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var rows []ReadingRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT "timestamp", plant_id, power_w
		FROM power_readings
		WHERE plant_id = $1 AND "timestamp" BETWEEN $2 AND $3
		ORDER BY "timestamp"`, plantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("select readings for plant %d: %w", plantID, err)
	}
	return rows, nil
}

// ReadingsAt returns the readings matching an exact set of timestamps.
// The playground uses this to score ad-hoc predictions against ground truth.
func (s *Store) ReadingsAt(ctx context.Context, plantID int, timestamps []time.Time) ([]ReadingRow, error) {
	if len(timestamps) == 0 {
		return nil, nil
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var rows []ReadingRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT "timestamp", plant_id, power_w
		FROM power_readings
		WHERE plant_id = $1 AND "timestamp" = ANY($2)
		ORDER BY "timestamp"`, plantID, timeArray(timestamps))
	if err != nil {
		return nil, fmt.Errorf("select readings at timestamps for plant %d: %w", plantID, err)
	}
	return rows, nil
}
