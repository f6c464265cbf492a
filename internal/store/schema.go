package store

// schema is executed on open. Every statement is idempotent so opening an
// existing corpus is a no-op.
//
// messages_fts indexes (content, resolved author display name, resolved
// channel name) and is patched by synchronous triggers on the messages
// table: inserts resolve names at write time, updates are expressed as
// delete+insert since the indexed fields can change on edit. The index row
// shares the message row's rowid, so it has no independent lifecycle.
const schema = `
CREATE TABLE IF NOT EXISTS guilds (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL DEFAULT '',
	icon         TEXT NOT NULL DEFAULT '',
	owner_id     TEXT NOT NULL DEFAULT '',
	member_count INTEGER NOT NULL DEFAULT 0,
	updated_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS channels (
	id         TEXT PRIMARY KEY,
	guild_id   TEXT,
	name       TEXT NOT NULL DEFAULT '',
	type       INTEGER NOT NULL DEFAULT 0,
	topic      TEXT NOT NULL DEFAULT '',
	parent_id  TEXT,
	position   INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_channels_guild ON channels(guild_id, position);

CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL DEFAULT '',
	display_name  TEXT NOT NULL DEFAULT '',
	discriminator TEXT NOT NULL DEFAULT '',
	bot           INTEGER NOT NULL DEFAULT 0,
	avatar        TEXT NOT NULL DEFAULT '',
	updated_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS members (
	guild_id   TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	nick       TEXT NOT NULL DEFAULT '',
	roles      TEXT NOT NULL DEFAULT '[]',
	joined_at  INTEGER,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (guild_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id           TEXT PRIMARY KEY,
	channel_id   TEXT NOT NULL,
	guild_id     TEXT,
	author_id    TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL DEFAULT '',
	thread_id    TEXT,
	reference_id TEXT,
	reply_count  INTEGER NOT NULL DEFAULT 0,
	reactions    TEXT NOT NULL DEFAULT '[]',
	attachments  TEXT NOT NULL DEFAULT '[]',
	embeds       TEXT NOT NULL DEFAULT '[]',
	raw          TEXT NOT NULL DEFAULT '{}',
	created_at   INTEGER NOT NULL,
	edited_at    INTEGER,
	imported_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_author  ON messages(author_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_thread  ON messages(thread_id);
CREATE INDEX IF NOT EXISTS idx_messages_ref     ON messages(reference_id);

CREATE TABLE IF NOT EXISTS roles (
	id         TEXT PRIMARY KEY,
	guild_id   TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	color      INTEGER NOT NULL DEFAULT 0,
	position   INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS pins (
	channel_id TEXT NOT NULL,
	message_id TEXT NOT NULL,
	guild_id   TEXT,
	pinned_at  INTEGER NOT NULL,
	PRIMARY KEY (channel_id, message_id)
);

CREATE TABLE IF NOT EXISTS emoji (
	id         TEXT PRIMARY KEY,
	guild_id   TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	animated   INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS import_cursors (
	channel_id TEXT PRIMARY KEY,
	oldest_id  TEXT NOT NULL DEFAULT '',
	latest_id  TEXT NOT NULL DEFAULT '',
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS import_runs (
	id          TEXT PRIMARY KEY,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER,
	guilds      INTEGER NOT NULL DEFAULT 0,
	channels    INTEGER NOT NULL DEFAULT 0,
	messages    INTEGER NOT NULL DEFAULT 0
);

CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
	content,
	author_name,
	channel_name,
	message_id UNINDEXED
);

CREATE TRIGGER IF NOT EXISTS messages_fts_insert AFTER INSERT ON messages BEGIN
	INSERT INTO messages_fts (rowid, content, author_name, channel_name, message_id)
	VALUES (
		new.rowid,
		new.content,
		COALESCE((SELECT CASE WHEN display_name != '' THEN display_name ELSE username END
		          FROM users WHERE id = new.author_id), ''),
		COALESCE((SELECT name FROM channels WHERE id = new.channel_id), ''),
		new.id
	);
END;

CREATE TRIGGER IF NOT EXISTS messages_fts_update AFTER UPDATE ON messages BEGIN
	DELETE FROM messages_fts WHERE rowid = old.rowid;
	INSERT INTO messages_fts (rowid, content, author_name, channel_name, message_id)
	VALUES (
		new.rowid,
		new.content,
		COALESCE((SELECT CASE WHEN display_name != '' THEN display_name ELSE username END
		          FROM users WHERE id = new.author_id), ''),
		COALESCE((SELECT name FROM channels WHERE id = new.channel_id), ''),
		new.id
	);
END;

CREATE TRIGGER IF NOT EXISTS messages_fts_delete AFTER DELETE ON messages BEGIN
	DELETE FROM messages_fts WHERE rowid = old.rowid;
END;
`
