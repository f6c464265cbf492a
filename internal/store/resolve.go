package store

import "strings"

// Name resolution: filter arguments may arrive as human names instead of
// ids. Each resolver matches case-insensitively and falls back to the raw
// input when nothing matches, so ids always work verbatim.

// ResolveChannel maps a channel name (optional leading '#') to its id.
func (s *Store) ResolveChannel(nameOrID string) string {
	name := strings.TrimPrefix(nameOrID, "#")
	var id string
	err := s.db.QueryRow(
		`SELECT id FROM channels WHERE LOWER(name) = LOWER(?) LIMIT 1`, name,
	).Scan(&id)
	if err != nil {
		return nameOrID
	}
	return id
}

// ResolveGuild maps a guild name to its id.
func (s *Store) ResolveGuild(nameOrID string) string {
	var id string
	err := s.db.QueryRow(
		`SELECT id FROM guilds WHERE LOWER(name) = LOWER(?) LIMIT 1`, nameOrID,
	).Scan(&id)
	if err != nil {
		return nameOrID
	}
	return id
}

// ResolveUser maps a username or display name to a user id.
func (s *Store) ResolveUser(nameOrID string) string {
	var id string
	err := s.db.QueryRow(`
		SELECT id FROM users
		WHERE LOWER(username) = LOWER(?) OR LOWER(display_name) = LOWER(?)
		LIMIT 1
	`, nameOrID, nameOrID).Scan(&id)
	if err != nil {
		return nameOrID
	}
	return id
}
