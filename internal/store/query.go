package store

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// MessageRow is a message joined with its resolved author, channel, and
// guild names, as returned by the query family.
type MessageRow struct {
	ID          string     `json:"id"`
	ChannelID   string     `json:"channel_id"`
	ChannelName string     `json:"channel_name"`
	GuildID     string     `json:"guild_id,omitempty"`
	GuildName   string     `json:"guild_name,omitempty"`
	AuthorID    string     `json:"author_id"`
	AuthorName  string     `json:"author_name"`
	Content     string     `json:"content"`
	ThreadID    string     `json:"thread_id,omitempty"`
	ReferenceID string     `json:"reference_id,omitempty"`
	ReplyCount  int        `json:"reply_count"`
	CreatedAt   time.Time  `json:"created_at"`
	EditedAt    *time.Time `json:"edited_at,omitempty"`
}

// SearchResult is a MessageRow plus its full-text relevance rank.
type SearchResult struct {
	MessageRow
	Rank float64 `json:"rank"`
}

// Filters constrains message queries. Channel, Guild, and Author accept
// either canonical ids or human names; names are resolved case-insensitively
// and unknown values pass through unchanged so ids keep working verbatim.
type Filters struct {
	Channel string
	Guild   string
	Author  string
	Before  time.Time // created_at < Before
	After   time.Time // created_at > After
	Limit   int
}

// Stats summarizes the corpus.
type Stats struct {
	Messages int `json:"messages"`
	Channels int `json:"channels"`
	Users    int `json:"users"`
	Guilds   int `json:"guilds"`
	Threads  int `json:"threads"`
}

// ChannelInfo is a channel listing row.
type ChannelInfo struct {
	ID        string `json:"id"`
	GuildID   string `json:"guild_id,omitempty"`
	GuildName string `json:"guild_name,omitempty"`
	Name      string `json:"name"`
	Type      int    `json:"type"`
	Topic     string `json:"topic,omitempty"`
	ParentID  string `json:"parent_id,omitempty"`
	Position  int    `json:"position"`
}

// GuildInfo is a guild listing row.
type GuildInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Icon        string `json:"icon,omitempty"`
	OwnerID     string `json:"owner_id,omitempty"`
	MemberCount int    `json:"member_count"`
}

const messageColumns = `
	m.id, m.channel_id, COALESCE(ch.name, ''),
	COALESCE(m.guild_id, ''), COALESCE(g.name, ''),
	m.author_id,
	COALESCE(CASE WHEN u.display_name != '' THEN u.display_name ELSE u.username END, ''),
	m.content, COALESCE(m.thread_id, ''), COALESCE(m.reference_id, ''), m.reply_count,
	m.created_at, m.edited_at
`

const messageJoins = `
	LEFT JOIN users u ON u.id = m.author_id
	LEFT JOIN channels ch ON ch.id = m.channel_id
	LEFT JOIN guilds g ON g.id = m.guild_id
`

func scanMessageRow(scan func(dest ...interface{}) error, row *MessageRow) error {
	var createdAt int64
	var editedAt sql.NullInt64
	if err := scan(
		&row.ID, &row.ChannelID, &row.ChannelName,
		&row.GuildID, &row.GuildName,
		&row.AuthorID, &row.AuthorName,
		&row.Content, &row.ThreadID, &row.ReferenceID, &row.ReplyCount,
		&createdAt, &editedAt,
	); err != nil {
		return err
	}
	row.CreatedAt = time.UnixMilli(createdAt).UTC()
	if editedAt.Valid {
		t := time.UnixMilli(editedAt.Int64).UTC()
		row.EditedAt = &t
	}
	return nil
}

func (s *Store) queryMessages(query string, args ...interface{}) ([]MessageRow, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("message query failed: %w", err)
	}
	defer rows.Close()

	var out []MessageRow
	for rows.Next() {
		var row MessageRow
		if err := scanMessageRow(rows.Scan, &row); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

var nonAlnum = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// ftsQuery turns free text into an OR-of-tokens FTS5 match expression.
// Non-alphanumeric characters are stripped, empty tokens discarded, and the
// remainder OR-joined: any matching token counts as a hit. Natural-language
// questions should surface something rather than require an exact phrase.
func ftsQuery(text string) string {
	cleaned := nonAlnum.ReplaceAllString(text, " ")
	tokens := strings.Fields(cleaned)
	quoted := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		quoted = append(quoted, `"`+tok+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// Search runs a full-text query over message content and resolved author and
// channel names, ranked by relevance. A query that sanitizes to zero tokens
// returns an empty result set, not an error.
func (s *Store) Search(text string, f Filters) ([]SearchResult, error) {
	match := ftsQuery(text)
	if match == "" {
		return nil, nil
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 25
	}

	query := `
		SELECT ` + messageColumns + `, messages_fts.rank
		FROM messages_fts
		JOIN messages m ON m.rowid = messages_fts.rowid
		` + messageJoins + `
		WHERE messages_fts MATCH ?
	`
	args := []interface{}{match}

	if f.Channel != "" {
		query += " AND m.channel_id = ?"
		args = append(args, s.ResolveChannel(f.Channel))
	}
	if f.Guild != "" {
		query += " AND m.guild_id = ?"
		args = append(args, s.ResolveGuild(f.Guild))
	}
	if f.Author != "" {
		query += " AND m.author_id = ?"
		args = append(args, s.ResolveUser(f.Author))
	}
	if !f.Before.IsZero() {
		query += " AND m.created_at < ?"
		args = append(args, f.Before.UnixMilli())
	}
	if !f.After.IsZero() {
		query += " AND m.created_at > ?"
		args = append(args, f.After.UnixMilli())
	}

	query += " ORDER BY messages_fts.rank LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var sr SearchResult
		var createdAt int64
		var editedAt sql.NullInt64
		if err := rows.Scan(
			&sr.ID, &sr.ChannelID, &sr.ChannelName,
			&sr.GuildID, &sr.GuildName,
			&sr.AuthorID, &sr.AuthorName,
			&sr.Content, &sr.ThreadID, &sr.ReferenceID, &sr.ReplyCount,
			&createdAt, &editedAt,
			&sr.Rank,
		); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		sr.CreatedAt = time.UnixMilli(createdAt).UTC()
		if editedAt.Valid {
			t := time.UnixMilli(editedAt.Int64).UTC()
			sr.EditedAt = &t
		}
		results = append(results, sr)
	}
	return results, rows.Err()
}

// Context returns up to windowSize messages centered on the target message
// within one channel, chronologically ordered: floor(windowSize/2) strictly
// before the target and floor(windowSize/2) from the target onward. If one
// side has fewer neighbors the window is not backfilled from the other side.
// An unknown message id yields an empty result.
func (s *Store) Context(channelID, messageID string, windowSize int) ([]MessageRow, error) {
	channelID = s.ResolveChannel(channelID)
	if windowSize <= 0 {
		windowSize = 10
	}
	half := windowSize / 2

	var targetTS int64
	err := s.db.QueryRow(
		`SELECT created_at FROM messages WHERE id = ? AND channel_id = ?`,
		messageID, channelID,
	).Scan(&targetTS)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to locate context target: %w", err)
	}

	// Id tie-breaks cast to INTEGER: snowflakes order numerically, and as
	// TEXT a longer id sorts after a shorter one regardless of value.
	before, err := s.queryMessages(`
		SELECT `+messageColumns+`
		FROM messages m
		`+messageJoins+`
		WHERE m.channel_id = ?
		  AND (m.created_at < ? OR (m.created_at = ? AND CAST(m.id AS INTEGER) < CAST(? AS INTEGER)))
		ORDER BY m.created_at DESC, CAST(m.id AS INTEGER) DESC
		LIMIT ?
	`, channelID, targetTS, targetTS, messageID, half)
	if err != nil {
		return nil, err
	}

	after, err := s.queryMessages(`
		SELECT `+messageColumns+`
		FROM messages m
		`+messageJoins+`
		WHERE m.channel_id = ?
		  AND (m.created_at > ? OR (m.created_at = ? AND CAST(m.id AS INTEGER) >= CAST(? AS INTEGER)))
		ORDER BY m.created_at ASC, CAST(m.id AS INTEGER) ASC
		LIMIT ?
	`, channelID, targetTS, targetTS, messageID, half)
	if err != nil {
		return nil, err
	}

	// The before-side was fetched newest-first; flip it back.
	out := make([]MessageRow, 0, len(before)+len(after))
	for i := len(before) - 1; i >= 0; i-- {
		out = append(out, before[i])
	}
	return append(out, after...), nil
}

// Thread returns every message living inside the thread channel or carrying
// the thread id (covering the parent message that spawned it), oldest first.
func (s *Store) Thread(threadID string) ([]MessageRow, error) {
	return s.queryMessages(`
		SELECT `+messageColumns+`
		FROM messages m
		`+messageJoins+`
		WHERE m.channel_id = ? OR m.thread_id = ?
		ORDER BY m.created_at ASC, CAST(m.id AS INTEGER) ASC
	`, threadID, threadID)
}

// Replies returns every message that references the target, oldest first.
func (s *Store) Replies(messageID string) ([]MessageRow, error) {
	return s.queryMessages(`
		SELECT `+messageColumns+`
		FROM messages m
		`+messageJoins+`
		WHERE m.reference_id = ?
		ORDER BY m.created_at ASC, CAST(m.id AS INTEGER) ASC
	`, messageID)
}

// Recent returns the latest messages in a channel, newest first.
func (s *Store) Recent(channelID string, limit int) ([]MessageRow, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryMessages(`
		SELECT `+messageColumns+`
		FROM messages m
		`+messageJoins+`
		WHERE m.channel_id = ?
		ORDER BY m.created_at DESC, CAST(m.id AS INTEGER) DESC
		LIMIT ?
	`, s.ResolveChannel(channelID), limit)
}

// MessagesByUser returns messages authored by a user, newest first,
// optionally constrained by channel or guild.
func (s *Store) MessagesByUser(userID string, f Filters) ([]MessageRow, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + messageColumns + `
		FROM messages m
		` + messageJoins + `
		WHERE m.author_id = ?
	`
	args := []interface{}{s.ResolveUser(userID)}

	if f.Channel != "" {
		query += " AND m.channel_id = ?"
		args = append(args, s.ResolveChannel(f.Channel))
	}
	if f.Guild != "" {
		query += " AND m.guild_id = ?"
		args = append(args, s.ResolveGuild(f.Guild))
	}

	query += " ORDER BY m.created_at DESC, CAST(m.id AS INTEGER) DESC LIMIT ?"
	args = append(args, limit)

	return s.queryMessages(query, args...)
}

// GetStats counts the corpus.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{}
	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM messages", &stats.Messages},
		{"SELECT COUNT(*) FROM channels", &stats.Channels},
		{"SELECT COUNT(*) FROM users", &stats.Users},
		{"SELECT COUNT(*) FROM guilds", &stats.Guilds},
		{"SELECT COUNT(DISTINCT thread_id) FROM messages WHERE thread_id IS NOT NULL", &stats.Threads},
	}
	for _, c := range counts {
		if err := s.db.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("stats query failed: %w", err)
		}
	}
	return stats, nil
}

// ListChannels returns channel metadata, ordered by (guild, position). The
// guild filter accepts an id or a name.
func (s *Store) ListChannels(guildFilter string) ([]ChannelInfo, error) {
	query := `
		SELECT c.id, COALESCE(c.guild_id, ''), COALESCE(g.name, ''),
		       c.name, c.type, c.topic, COALESCE(c.parent_id, ''), c.position
		FROM channels c
		LEFT JOIN guilds g ON g.id = c.guild_id
	`
	var args []interface{}
	if guildFilter != "" {
		query += " WHERE c.guild_id = ?"
		args = append(args, s.ResolveGuild(guildFilter))
	}
	query += " ORDER BY c.guild_id, c.position, c.name"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	var out []ChannelInfo
	for rows.Next() {
		var c ChannelInfo
		if err := rows.Scan(&c.ID, &c.GuildID, &c.GuildName, &c.Name, &c.Type, &c.Topic, &c.ParentID, &c.Position); err != nil {
			return nil, fmt.Errorf("failed to scan channel row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListGuilds returns guild metadata ordered by name.
func (s *Store) ListGuilds() ([]GuildInfo, error) {
	rows, err := s.db.Query(`
		SELECT id, name, icon, owner_id, member_count
		FROM guilds
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list guilds: %w", err)
	}
	defer rows.Close()

	var out []GuildInfo
	for rows.Next() {
		var g GuildInfo
		if err := rows.Scan(&g.ID, &g.Name, &g.Icon, &g.OwnerID, &g.MemberCount); err != nil {
			return nil, fmt.Errorf("failed to scan guild row: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
