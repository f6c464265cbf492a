package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// execer is satisfied by both *sql.DB and *sql.Tx so the single-row upserts
// can run standalone or inside a page transaction.
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// nullString maps "" to NULL for optional id columns.
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// jsonText serializes v, defaulting to fallback on nil or marshal failure.
func jsonText(v interface{}, fallback string) string {
	if v == nil {
		return fallback
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fallback
	}
	return string(b)
}

// UpsertGuild inserts or updates a guild, refreshing updated_at.
func (s *Store) UpsertGuild(g GuildRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO guilds (id, name, icon, owner_id, member_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			icon = excluded.icon,
			owner_id = excluded.owner_id,
			member_count = excluded.member_count,
			updated_at = excluded.updated_at
	`, g.ID, g.Name, g.Icon, g.OwnerID, g.MemberCount, nowMillis())
	if err != nil {
		return fmt.Errorf("failed to upsert guild %s: %w", g.ID, err)
	}
	return nil
}

// UpsertChannel inserts or updates a channel (threads included).
func (s *Store) UpsertChannel(c ChannelRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO channels (id, guild_id, name, type, topic, parent_id, position, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			guild_id = excluded.guild_id,
			name = excluded.name,
			type = excluded.type,
			topic = excluded.topic,
			parent_id = excluded.parent_id,
			position = excluded.position,
			updated_at = excluded.updated_at
	`, c.ID, nullString(c.GuildID), c.Name, c.Type, c.Topic, nullString(c.ParentID), c.Position, nowMillis())
	if err != nil {
		return fmt.Errorf("failed to upsert channel %s: %w", c.ID, err)
	}
	return nil
}

// UpsertUser inserts or updates a global user identity.
func (s *Store) UpsertUser(u UserRecord) error {
	return upsertUser(s.db, u)
}

func upsertUser(e execer, u UserRecord) error {
	if u.ID == "" {
		return nil
	}
	_, err := e.Exec(`
		INSERT INTO users (id, username, display_name, discriminator, bot, avatar, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			display_name = excluded.display_name,
			discriminator = excluded.discriminator,
			bot = excluded.bot,
			avatar = excluded.avatar,
			updated_at = excluded.updated_at
	`, u.ID, u.Username, u.DisplayName, u.Discriminator, u.Bot, u.Avatar, nowMillis())
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", u.ID, err)
	}
	return nil
}

// UpsertMember upserts the member's user identity and the per-guild overlay
// in one transaction, keyed by (guild_id, user_id).
func (s *Store) UpsertMember(m MemberRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertUser(tx, m.User); err != nil {
		return err
	}

	var joinedAt interface{}
	if !m.JoinedAt.IsZero() {
		joinedAt = m.JoinedAt.UnixMilli()
	}
	if _, err := tx.Exec(`
		INSERT INTO members (guild_id, user_id, nick, roles, joined_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(guild_id, user_id) DO UPDATE SET
			nick = excluded.nick,
			roles = excluded.roles,
			joined_at = excluded.joined_at,
			updated_at = excluded.updated_at
	`, m.GuildID, m.User.ID, m.Nick, jsonText(m.Roles, "[]"), joinedAt, nowMillis()); err != nil {
		return fmt.Errorf("failed to upsert member %s/%s: %w", m.GuildID, m.User.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpsertRole inserts or updates per-guild role metadata.
func (s *Store) UpsertRole(r RoleRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO roles (id, guild_id, name, color, position, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			guild_id = excluded.guild_id,
			name = excluded.name,
			color = excluded.color,
			position = excluded.position,
			updated_at = excluded.updated_at
	`, r.ID, r.GuildID, r.Name, r.Color, r.Position, nowMillis())
	if err != nil {
		return fmt.Errorf("failed to upsert role %s: %w", r.ID, err)
	}
	return nil
}

// UpsertEmoji inserts or updates per-guild custom emoji metadata.
func (s *Store) UpsertEmoji(e EmojiRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO emoji (id, guild_id, name, animated, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			guild_id = excluded.guild_id,
			name = excluded.name,
			animated = excluded.animated,
			updated_at = excluded.updated_at
	`, e.ID, e.GuildID, e.Name, e.Animated, nowMillis())
	if err != nil {
		return fmt.Errorf("failed to upsert emoji %s: %w", e.ID, err)
	}
	return nil
}

// UpsertMessage upserts a single message and its author in one transaction.
// This is the path the live listener shares with the importer.
func (s *Store) UpsertMessage(m MessageRecord) error {
	return s.UpsertMessageBatch([]MessageRecord{m})
}

// UpsertMessageBatch persists one page of messages atomically: every message
// and its author land in a single transaction, so a page is never partially
// visible. Re-ingesting an id updates mutable fields without creating a
// duplicate row or losing created_at; the full-text index is patched by the
// schema triggers inside the same transaction.
func (s *Store) UpsertMessageBatch(msgs []MessageRecord) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range msgs {
		if err := upsertUser(tx, m.Author); err != nil {
			return err
		}
		if err := upsertMessage(tx, m); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func upsertMessage(e execer, m MessageRecord) error {
	var editedAt interface{}
	if m.EditedAt != nil {
		editedAt = m.EditedAt.UnixMilli()
	}

	raw := "{}"
	if len(m.Raw) > 0 {
		raw = string(m.Raw)
	}

	// created_at is deliberately absent from the update list: it is
	// immutable across re-ingestion.
	_, err := e.Exec(`
		INSERT INTO messages (
			id, channel_id, guild_id, author_id, content,
			thread_id, reference_id, reply_count,
			reactions, attachments, embeds, raw,
			created_at, edited_at, imported_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			channel_id = excluded.channel_id,
			guild_id = excluded.guild_id,
			author_id = excluded.author_id,
			content = excluded.content,
			thread_id = excluded.thread_id,
			reference_id = excluded.reference_id,
			reply_count = excluded.reply_count,
			reactions = excluded.reactions,
			attachments = excluded.attachments,
			embeds = excluded.embeds,
			raw = excluded.raw,
			edited_at = excluded.edited_at,
			imported_at = excluded.imported_at
	`,
		m.ID, m.ChannelID, nullString(m.GuildID), m.Author.ID, m.Content,
		nullString(m.ThreadID), nullString(m.ReferenceID), m.ReplyCount,
		jsonText(m.Reactions, "[]"), jsonText(m.Attachments, "[]"), jsonText(m.Embeds, "[]"), raw,
		m.CreatedAt.UnixMilli(), editedAt, nowMillis(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert message %s: %w", m.ID, err)
	}
	return nil
}

// UpsertPinned persists a channel's pinned messages: each one is upserted as
// both a message and a pin record in one transaction.
func (s *Store) UpsertPinned(channelID, guildID string, msgs []MessageRecord) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := nowMillis()
	for _, m := range msgs {
		if err := upsertUser(tx, m.Author); err != nil {
			return err
		}
		if err := upsertMessage(tx, m); err != nil {
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO pins (channel_id, message_id, guild_id, pinned_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(channel_id, message_id) DO UPDATE SET
				guild_id = excluded.guild_id
		`, channelID, m.ID, nullString(guildID), now); err != nil {
			return fmt.Errorf("failed to upsert pin %s/%s: %w", channelID, m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// BeginRun records the start of an import run.
func (s *Store) BeginRun(runID string) error {
	_, err := s.db.Exec(`
		INSERT INTO import_runs (id, started_at) VALUES (?, ?)
	`, runID, nowMillis())
	if err != nil {
		return fmt.Errorf("failed to record import run: %w", err)
	}
	return nil
}

// FinishRun records the end of an import run with its totals.
func (s *Store) FinishRun(runID string, guilds, channels, messages int) error {
	_, err := s.db.Exec(`
		UPDATE import_runs
		SET finished_at = ?, guilds = ?, channels = ?, messages = ?
		WHERE id = ?
	`, nowMillis(), guilds, channels, messages, runID)
	if err != nil {
		return fmt.Errorf("failed to finish import run: %w", err)
	}
	return nil
}
