package source

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/scribe-archive/scribe/internal/ratelimit"
	"github.com/scribe-archive/scribe/internal/store"
)

const (
	memberPageSize = 1000
	guildPageSize  = 200
)

// Adapter implements Source over the Discord REST API. Every outbound call
// goes through the shared limiter, so raising ingestion concurrency never
// raises the external call rate.
type Adapter struct {
	sess    *discordgo.Session
	limiter *ratelimit.Limiter
}

// Connect builds an authenticated adapter. No network traffic happens until
// the first call (or Open for the gateway).
func Connect(token string, limiter *ratelimit.Limiter) (*Adapter, error) {
	if token == "" {
		return nil, fmt.Errorf("discord token is required")
	}
	sess, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	return &Adapter{sess: sess, limiter: limiter}, nil
}

// Session exposes the underlying gateway session for the live listener.
func (a *Adapter) Session() *discordgo.Session {
	return a.sess
}

// Guilds lists the guilds the token can see, fetching each guild's full
// record for owner and member count.
func (a *Adapter) Guilds() ([]store.GuildRecord, error) {
	var out []store.GuildRecord
	after := ""
	for {
		a.limiter.Acquire()
		page, err := a.sess.UserGuilds(guildPageSize, "", after, true)
		if err != nil {
			return nil, fmt.Errorf("failed to list guilds: %w", err)
		}
		for _, ug := range page {
			a.limiter.Acquire()
			g, err := a.sess.Guild(ug.ID)
			if err != nil {
				// Fall back to the listing row; owner id is simply unknown.
				out = append(out, store.GuildRecord{
					ID:          ug.ID,
					Name:        ug.Name,
					Icon:        ug.Icon,
					MemberCount: ug.ApproximateMemberCount,
				})
				continue
			}
			out = append(out, MapGuild(g))
		}
		if len(page) < guildPageSize {
			return out, nil
		}
		after = page[len(page)-1].ID
	}
}

// Members bulk-fetches the guild's member list.
func (a *Adapter) Members(guildID string) ([]store.MemberRecord, error) {
	var out []store.MemberRecord
	after := ""
	for {
		a.limiter.Acquire()
		page, err := a.sess.GuildMembers(guildID, after, memberPageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch members for guild %s: %w", guildID, err)
		}
		for _, m := range page {
			rec := MapMember(guildID, m)
			out = append(out, rec)
			after = rec.User.ID
		}
		if len(page) < memberPageSize {
			return out, nil
		}
	}
}

// Channels lists the guild's channels.
func (a *Adapter) Channels(guildID string) ([]store.ChannelRecord, error) {
	a.limiter.Acquire()
	channels, err := a.sess.GuildChannels(guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch channels for guild %s: %w", guildID, err)
	}
	out := make([]store.ChannelRecord, 0, len(channels))
	for _, ch := range channels {
		out = append(out, MapChannel(ch))
	}
	return out, nil
}

// Roles lists the guild's roles.
func (a *Adapter) Roles(guildID string) ([]store.RoleRecord, error) {
	a.limiter.Acquire()
	roles, err := a.sess.GuildRoles(guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles for guild %s: %w", guildID, err)
	}
	out := make([]store.RoleRecord, 0, len(roles))
	for _, r := range roles {
		out = append(out, store.RoleRecord{
			ID:       r.ID,
			GuildID:  guildID,
			Name:     r.Name,
			Color:    r.Color,
			Position: r.Position,
		})
	}
	return out, nil
}

// Emojis lists the guild's custom emoji.
func (a *Adapter) Emojis(guildID string) ([]store.EmojiRecord, error) {
	a.limiter.Acquire()
	emojis, err := a.sess.GuildEmojis(guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch emoji for guild %s: %w", guildID, err)
	}
	out := make([]store.EmojiRecord, 0, len(emojis))
	for _, e := range emojis {
		out = append(out, store.EmojiRecord{
			ID:       e.ID,
			GuildID:  guildID,
			Name:     e.Name,
			Animated: e.Animated,
		})
	}
	return out, nil
}

// MessagePage fetches one bounded page of messages.
func (a *Adapter) MessagePage(channelID string, opts PageOptions) ([]store.MessageRecord, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	a.limiter.Acquire()
	msgs, err := a.sess.ChannelMessages(channelID, limit, opts.Before, opts.After, "")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages for channel %s: %w", channelID, err)
	}
	out := make([]store.MessageRecord, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MapMessage(m))
	}
	return out, nil
}

// ActiveThreads lists the guild's currently active threads.
func (a *Adapter) ActiveThreads(guildID string) ([]store.ChannelRecord, error) {
	a.limiter.Acquire()
	list, err := a.sess.GuildThreadsActive(guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active threads for guild %s: %w", guildID, err)
	}
	out := make([]store.ChannelRecord, 0, len(list.Threads))
	for _, th := range list.Threads {
		out = append(out, MapChannel(th))
	}
	return out, nil
}

// ArchivedThreads fetches one page of a channel's archived threads.
func (a *Adapter) ArchivedThreads(channelID string, before *time.Time, limit int) (ThreadPage, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	a.limiter.Acquire()
	list, err := a.sess.ThreadsArchived(channelID, before, limit)
	if err != nil {
		return ThreadPage{}, fmt.Errorf("failed to fetch archived threads for channel %s: %w", channelID, err)
	}

	page := ThreadPage{HasMore: list.HasMore}
	for _, th := range list.Threads {
		page.Threads = append(page.Threads, MapChannel(th))
		if th.ThreadMetadata != nil {
			ts := th.ThreadMetadata.ArchiveTimestamp
			page.NextBefore = &ts
		}
	}
	return page, nil
}

// Pinned fetches a channel's pinned messages.
func (a *Adapter) Pinned(channelID string) ([]store.MessageRecord, error) {
	a.limiter.Acquire()
	msgs, err := a.sess.ChannelMessagesPinned(channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pins for channel %s: %w", channelID, err)
	}
	out := make([]store.MessageRecord, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MapMessage(m))
	}
	return out, nil
}

// IsTextType reports whether a channel type carries a regular message
// history worth backfilling. Threads are handled by their own phase.
func IsTextType(t int) bool {
	switch discordgo.ChannelType(t) {
	case discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews:
		return true
	}
	return false
}

// IsThreadParentType reports whether a channel type can own archived
// threads: plain text channels plus forum and media channels, whose posts
// are threads and have no regular message history of their own.
func IsThreadParentType(t int) bool {
	if IsTextType(t) {
		return true
	}
	switch discordgo.ChannelType(t) {
	case discordgo.ChannelTypeGuildForum, discordgo.ChannelTypeGuildMedia:
		return true
	}
	return false
}

// IsThreadType reports whether a channel type is a thread.
func IsThreadType(t int) bool {
	switch discordgo.ChannelType(t) {
	case discordgo.ChannelTypeGuildNewsThread,
		discordgo.ChannelTypeGuildPublicThread,
		discordgo.ChannelTypeGuildPrivateThread:
		return true
	}
	return false
}

// MapGuild normalizes a full guild object.
func MapGuild(g *discordgo.Guild) store.GuildRecord {
	count := g.MemberCount
	if count == 0 {
		count = g.ApproximateMemberCount
	}
	return store.GuildRecord{
		ID:          g.ID,
		Name:        g.Name,
		Icon:        g.Icon,
		OwnerID:     g.OwnerID,
		MemberCount: count,
	}
}

// MapChannel normalizes a channel or thread object.
func MapChannel(ch *discordgo.Channel) store.ChannelRecord {
	return store.ChannelRecord{
		ID:       ch.ID,
		GuildID:  ch.GuildID,
		Name:     ch.Name,
		Type:     int(ch.Type),
		Topic:    ch.Topic,
		ParentID: ch.ParentID,
		Position: ch.Position,
	}
}

// MapUser normalizes a user object. Display name falls back through the
// API's naming generations.
func MapUser(u *discordgo.User) store.UserRecord {
	if u == nil {
		return store.UserRecord{}
	}
	display := u.GlobalName
	if display == "" {
		display = u.Username
	}
	return store.UserRecord{
		ID:            u.ID,
		Username:      u.Username,
		DisplayName:   display,
		Discriminator: u.Discriminator,
		Bot:           u.Bot,
		Avatar:        u.Avatar,
	}
}

// MapMember normalizes a guild member with its embedded user.
func MapMember(guildID string, m *discordgo.Member) store.MemberRecord {
	return store.MemberRecord{
		GuildID:  guildID,
		User:     MapUser(m.User),
		Nick:     m.Nick,
		Roles:    m.Roles,
		JoinedAt: m.JoinedAt,
	}
}

// MapMessage normalizes a message, flattening reactions, attachments, and
// embeds and keeping the raw payload as a snapshot.
func MapMessage(m *discordgo.Message) store.MessageRecord {
	rec := store.MessageRecord{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Author:    MapUser(m.Author),
		Content:   m.Content,
		CreatedAt: m.Timestamp,
		EditedAt:  m.EditedTimestamp,
	}

	if m.MessageReference != nil {
		rec.ReferenceID = m.MessageReference.MessageID
	}
	if m.Thread != nil {
		rec.ThreadID = m.Thread.ID
		rec.ReplyCount = m.Thread.MessageCount
	}

	for _, r := range m.Reactions {
		if r == nil || r.Emoji == nil {
			continue
		}
		rec.Reactions = append(rec.Reactions, store.Reaction{Emoji: r.Emoji.Name, Count: r.Count})
	}
	for _, att := range m.Attachments {
		if att == nil {
			continue
		}
		rec.Attachments = append(rec.Attachments, store.Attachment{
			ID:          att.ID,
			Name:        att.Filename,
			URL:         att.URL,
			Size:        att.Size,
			ContentType: att.ContentType,
		})
	}
	for _, em := range m.Embeds {
		if em == nil {
			continue
		}
		rec.Embeds = append(rec.Embeds, store.Embed{
			Title:       em.Title,
			Description: em.Description,
			URL:         em.URL,
		})
	}

	if raw, err := json.Marshal(m); err == nil {
		rec.Raw = raw
	}
	return rec
}
