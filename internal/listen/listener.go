// Package listen applies live gateway events through the same store upserts
// the importer uses: one shared ingestion contract, two drivers.
package listen

import (
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"

	"github.com/scribe-archive/scribe/internal/source"
	"github.com/scribe-archive/scribe/internal/store"
)

// Listener subscribes to gateway events and upserts them as they arrive.
type Listener struct {
	sess     *discordgo.Session
	st       *store.Store
	removers []func()
}

// New wraps an authenticated session.
func New(sess *discordgo.Session, st *store.Store) *Listener {
	return &Listener{sess: sess, st: st}
}

// Start registers handlers and opens the gateway connection.
func (l *Listener) Start() error {
	l.sess.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentMessageContent

	l.removers = append(l.removers,
		l.sess.AddHandler(l.onMessageCreate),
		l.sess.AddHandler(l.onMessageUpdate),
		l.sess.AddHandler(l.onChannelCreate),
		l.sess.AddHandler(l.onChannelUpdate),
		l.sess.AddHandler(l.onThreadCreate),
		l.sess.AddHandler(l.onGuildCreate),
		l.sess.AddHandler(l.onGuildMemberAdd),
	)

	if err := l.sess.Open(); err != nil {
		return fmt.Errorf("failed to open gateway connection: %w", err)
	}
	log.Println("listening for live events")
	return nil
}

// Close removes handlers and closes the gateway connection.
func (l *Listener) Close() error {
	for _, remove := range l.removers {
		remove()
	}
	l.removers = nil
	return l.sess.Close()
}

func (l *Listener) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if err := l.st.UpsertMessage(source.MapMessage(m.Message)); err != nil {
		log.Printf("failed to store message %s: %v", m.ID, err)
	}
}

func (l *Listener) onMessageUpdate(s *discordgo.Session, m *discordgo.MessageUpdate) {
	// Partial edit payloads can omit the author; the import path fills the
	// gap on its next run.
	if m.Author == nil {
		return
	}
	if err := l.st.UpsertMessage(source.MapMessage(m.Message)); err != nil {
		log.Printf("failed to store message edit %s: %v", m.ID, err)
	}
}

func (l *Listener) onChannelCreate(s *discordgo.Session, c *discordgo.ChannelCreate) {
	if err := l.st.UpsertChannel(source.MapChannel(c.Channel)); err != nil {
		log.Printf("failed to store channel %s: %v", c.ID, err)
	}
}

func (l *Listener) onChannelUpdate(s *discordgo.Session, c *discordgo.ChannelUpdate) {
	if err := l.st.UpsertChannel(source.MapChannel(c.Channel)); err != nil {
		log.Printf("failed to store channel update %s: %v", c.ID, err)
	}
}

func (l *Listener) onThreadCreate(s *discordgo.Session, t *discordgo.ThreadCreate) {
	if err := l.st.UpsertChannel(source.MapChannel(t.Channel)); err != nil {
		log.Printf("failed to store thread %s: %v", t.ID, err)
	}
}

func (l *Listener) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if err := l.st.UpsertGuild(source.MapGuild(g.Guild)); err != nil {
		log.Printf("failed to store guild %s: %v", g.ID, err)
		return
	}
	for _, ch := range g.Channels {
		if err := l.st.UpsertChannel(source.MapChannel(ch)); err != nil {
			log.Printf("failed to store channel %s: %v", ch.ID, err)
		}
	}
}

func (l *Listener) onGuildMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if err := l.st.UpsertMember(source.MapMember(m.GuildID, m.Member)); err != nil {
		log.Printf("failed to store member %s: %v", m.User.ID, err)
	}
}
