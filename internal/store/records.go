package store

import (
	"encoding/json"
	"time"
)

// Normalized record types handed to the upsert family. All alias fallback
// and defaulting for the remote API's shapes happens at the adapter
// boundary; by the time a record reaches the store every field is settled.

// GuildRecord describes a guild (server).
type GuildRecord struct {
	ID          string
	Name        string
	Icon        string
	OwnerID     string
	MemberCount int
}

// ChannelRecord describes a channel. A thread is a channel whose Type marks
// it as such and whose ParentID is the originating channel.
type ChannelRecord struct {
	ID       string
	GuildID  string // empty for DMs
	Name     string
	Type     int
	Topic    string
	ParentID string
	Position int
}

// UserRecord is a global identity, independent of any guild.
type UserRecord struct {
	ID            string
	Username      string
	DisplayName   string
	Discriminator string
	Bot           bool
	Avatar        string
}

// MemberRecord is the per-guild overlay for a user.
type MemberRecord struct {
	GuildID  string
	User     UserRecord
	Nick     string
	Roles    []string
	JoinedAt time.Time
}

// Reaction is one emoji tally on a message.
type Reaction struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

// Attachment is one file attached to a message.
type Attachment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Size        int    `json:"size"`
	ContentType string `json:"content_type,omitempty"`
}

// Embed is one rich embed on a message.
type Embed struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
}

// MessageRecord describes a message plus its author. The author rides along
// so a page of messages and its users can be committed in one transaction.
type MessageRecord struct {
	ID          string
	ChannelID   string
	GuildID     string
	Author      UserRecord
	Content     string
	ThreadID    string // set when the message spawned or belongs to a thread
	ReferenceID string // id of the message this one replies to
	ReplyCount  int
	Reactions   []Reaction
	Attachments []Attachment
	Embeds      []Embed
	Raw         json.RawMessage
	CreatedAt   time.Time
	EditedAt    *time.Time
}

// RoleRecord is per-guild role metadata.
type RoleRecord struct {
	ID       string
	GuildID  string
	Name     string
	Color    int
	Position int
}

// EmojiRecord is per-guild custom emoji metadata.
type EmojiRecord struct {
	ID       string
	GuildID  string
	Name     string
	Animated bool
}

// Cursor tracks incremental backfill progress for one channel. Resumption
// uses LatestID; OldestID is recorded for observability only.
type Cursor struct {
	ChannelID string
	OldestID  string
	LatestID  string
	UpdatedAt time.Time
}
