package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/copresence/internal/monitoring"
	"github.com/banshee-data/copresence/internal/sighting"
)

// InsertSightings appends ss to the sightings table in a single
// transaction. Row ids follow slice order, so log order is preserved.
func (db *DB) InsertSightings(ss []sighting.Sighting) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	if n, err := insertSightings(tx, ss); err != nil {
		return n, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert: %w", err)
	}
	return len(ss), nil
}

// ImportDataset replaces the stored sightings with those of d. Importing
// the same log twice leaves the table as it was after the first import.
func (db *DB) ImportDataset(d *sighting.Dataset) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM sightings`); err != nil {
		return 0, fmt.Errorf("clear sightings: %w", err)
	}
	n, err := insertSightings(tx, d.Sightings())
	if err != nil {
		return n, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	monitoring.Logf("[db] imported %d sightings", n)
	return n, nil
}

func insertSightings(tx *sql.Tx, ss []sighting.Sighting) (int, error) {
	stmt, err := tx.Prepare(`INSERT INTO sightings (uid, ts_unix_ns, floor, x, y) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, s := range ss {
		if _, err := stmt.Exec(s.UserID, s.Timestamp.UnixNano(), s.Floor, s.X, s.Y); err != nil {
			return i, fmt.Errorf("insert sighting %d (%s): %w", i, s.UserID, err)
		}
	}
	return len(ss), nil
}

// Pair returns the stored sightings of uid1 and uid2 in insertion order.
// Seq carries the row id. DB implements meeting.Source.
func (db *DB) Pair(uid1, uid2 string) ([]sighting.Sighting, error) {
	rows, err := db.Query(`
		SELECT sighting_id, uid, ts_unix_ns, floor, x, y
		FROM sightings
		WHERE uid IN (?, ?)
		ORDER BY sighting_id`, uid1, uid2)
	if err != nil {
		return nil, fmt.Errorf("query pair %s/%s: %w", uid1, uid2, err)
	}
	return scanSightings(rows)
}

// Dataset loads the whole table into memory in insertion order.
func (db *DB) Dataset() (*sighting.Dataset, error) {
	rows, err := db.Query(`
		SELECT sighting_id, uid, ts_unix_ns, floor, x, y
		FROM sightings
		ORDER BY sighting_id`)
	if err != nil {
		return nil, fmt.Errorf("query sightings: %w", err)
	}
	ss, err := scanSightings(rows)
	if err != nil {
		return nil, err
	}
	return sighting.NewDataset(ss), nil
}

// Users returns the distinct stored user ids, sorted.
func (db *DB) Users() ([]string, error) {
	rows, err := db.Query(`SELECT DISTINCT uid FROM sightings ORDER BY uid`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		users = append(users, uid)
	}
	return users, rows.Err()
}

// CountSightings returns the number of stored sightings.
func (db *DB) CountSightings() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sightings`).Scan(&n)
	return n, err
}

func scanSightings(rows *sql.Rows) ([]sighting.Sighting, error) {
	defer rows.Close()

	var out []sighting.Sighting
	for rows.Next() {
		var (
			s  sighting.Sighting
			id int64
			ns int64
		)
		if err := rows.Scan(&id, &s.UserID, &ns, &s.Floor, &s.X, &s.Y); err != nil {
			return nil, err
		}
		s.Seq = int(id)
		s.Timestamp = time.Unix(0, ns).UTC()
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
