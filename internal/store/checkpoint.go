package store

import (
	"database/sql"
	"errors"
	"strconv"
	"time"
)

func checkpointKey(conversationID string) string {
	return "checkpoint:" + conversationID
}

// SetCheckpoint records the time of the last successful history sync.
func (db *DB) SetCheckpoint(conversationID string, at time.Time) error {
	_, err := db.Exec(`
		INSERT INTO sync_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		checkpointKey(conversationID), strconv.FormatInt(at.UnixMilli(), 10))
	return err
}

// GetCheckpoint returns the last sync time, or the zero time if none.
func (db *DB) GetCheckpoint(conversationID string) (time.Time, error) {
	var v string
	err := db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, checkpointKey(conversationID)).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
