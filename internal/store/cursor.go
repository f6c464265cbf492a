package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ImportCursor returns the backfill cursor for a channel, or nil when no
// import has touched it yet.
func (s *Store) ImportCursor(channelID string) (*Cursor, error) {
	var c Cursor
	var updatedAt int64
	err := s.db.QueryRow(`
		SELECT channel_id, oldest_id, latest_id, updated_at
		FROM import_cursors
		WHERE channel_id = ?
	`, channelID).Scan(&c.ChannelID, &c.OldestID, &c.LatestID, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get import cursor: %w", err)
	}
	c.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &c, nil
}

// SetImportCursor upserts the per-channel cursor row. Cursors drive
// resumption efficiency only; content correctness never depends on them.
func (s *Store) SetImportCursor(channelID, oldestID, latestID string) error {
	_, err := s.db.Exec(`
		INSERT INTO import_cursors (channel_id, oldest_id, latest_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(channel_id) DO UPDATE SET
			oldest_id = excluded.oldest_id,
			latest_id = excluded.latest_id,
			updated_at = excluded.updated_at
	`, channelID, oldestID, latestID, nowMillis())
	if err != nil {
		return fmt.Errorf("failed to set import cursor: %w", err)
	}
	return nil
}
