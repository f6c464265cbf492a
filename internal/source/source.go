// Package source adapts the external chat API to the normalized records the
// store consumes. The importer and the live listener both go through the
// mapping here, so every write path shares one upsert contract.
package source

import (
	"time"

	"github.com/scribe-archive/scribe/internal/store"
)

// PageOptions selects one bounded page of messages. The upstream API returns
// at most Limit messages per call, newest-first. After and Before are
// message ids (snowflakes); at most one is set.
type PageOptions struct {
	After  string
	Before string
	Limit  int
}

// ThreadPage is one page of archived threads.
type ThreadPage struct {
	Threads    []store.ChannelRecord
	HasMore    bool
	NextBefore *time.Time
}

// Source is the outbound surface the ingestion pipeline depends on. The
// production implementation is the Discord adapter; tests substitute fakes.
type Source interface {
	Guilds() ([]store.GuildRecord, error)
	Members(guildID string) ([]store.MemberRecord, error)
	Channels(guildID string) ([]store.ChannelRecord, error)
	Roles(guildID string) ([]store.RoleRecord, error)
	Emojis(guildID string) ([]store.EmojiRecord, error)
	MessagePage(channelID string, opts PageOptions) ([]store.MessageRecord, error)
	ActiveThreads(guildID string) ([]store.ChannelRecord, error)
	ArchivedThreads(channelID string, before *time.Time, limit int) (ThreadPage, error)
	Pinned(channelID string) ([]store.MessageRecord, error)
}
