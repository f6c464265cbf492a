// Package retrieve is the read-only query surface over the corpus. It adds
// no transport concerns: plain filter values in, plain record lists out.
package retrieve

import (
	"fmt"
	"strings"
	"time"

	"github.com/scribe-archive/scribe/internal/store"
)

const contextWindow = 10

// Engine answers retrieval queries against the store.
type Engine struct {
	st *store.Store
}

// New creates a retrieval engine over an open store.
func New(st *store.Store) *Engine {
	return &Engine{st: st}
}

// Hit is one flattened search hit inside an answer.
type Hit struct {
	ID          string    `json:"id"`
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	GuildName   string    `json:"guild_name,omitempty"`
	AuthorName  string    `json:"author_name"`
	Content     string    `json:"content"`
	ThreadID    string    `json:"thread_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Conversation is the context assembled around one or more hits: either a
// full thread or a chronologically centered window.
type Conversation struct {
	Kind        string             `json:"kind"` // "thread" or "context"
	ChannelID   string             `json:"channel_id"`
	ChannelName string             `json:"channel_name"`
	GuildName   string             `json:"guild_name,omitempty"`
	Messages    []store.MessageRow `json:"messages"`
}

// Answer is the result of the compound ask operation.
type Answer struct {
	Query    string                  `json:"query"`
	Hits     []Hit                   `json:"hits"`
	Contexts map[string]Conversation `json:"contexts"`
	Stats    store.Stats             `json:"stats"`
}

// Ask runs a lexical search and assembles conversational context for each
// hit: the full thread when the hit lives in one, a centered window
// otherwise. Hits sharing a thread are deduplicated onto one conversation.
// An empty question is a caller-contract violation, not an empty result.
func (e *Engine) Ask(question string, f store.Filters, topK int) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question is required")
	}
	if topK > 0 {
		f.Limit = topK
	} else if f.Limit <= 0 {
		f.Limit = 8
	}

	hits, err := e.st.Search(question, f)
	if err != nil {
		return nil, err
	}

	ans := &Answer{
		Query:    question,
		Contexts: make(map[string]Conversation),
	}

	for _, h := range hits {
		ans.Hits = append(ans.Hits, Hit{
			ID:          h.ID,
			ChannelID:   h.ChannelID,
			ChannelName: h.ChannelName,
			GuildName:   h.GuildName,
			AuthorName:  h.AuthorName,
			Content:     h.Content,
			ThreadID:    h.ThreadID,
			CreatedAt:   h.CreatedAt,
		})

		var key string
		var conv Conversation
		if h.ThreadID != "" {
			key = "thread:" + h.ThreadID
			if _, ok := ans.Contexts[key]; ok {
				continue
			}
			msgs, err := e.st.Thread(h.ThreadID)
			if err != nil {
				return nil, err
			}
			conv = Conversation{Kind: "thread", Messages: msgs}
		} else {
			key = "context:" + h.ChannelID + ":" + h.ID
			if _, ok := ans.Contexts[key]; ok {
				continue
			}
			msgs, err := e.st.Context(h.ChannelID, h.ID, contextWindow)
			if err != nil {
				return nil, err
			}
			conv = Conversation{Kind: "context", Messages: msgs}
		}

		conv.ChannelID = h.ChannelID
		conv.ChannelName = h.ChannelName
		conv.GuildName = h.GuildName
		ans.Contexts[key] = conv
	}

	stats, err := e.st.GetStats()
	if err != nil {
		return nil, err
	}
	ans.Stats = *stats

	return ans, nil
}

// The remaining operations delegate straight to the store; they exist so
// presentation layers depend on one surface.

func (e *Engine) Search(text string, f store.Filters) ([]store.SearchResult, error) {
	return e.st.Search(text, f)
}

func (e *Engine) Context(channelID, messageID string, windowSize int) ([]store.MessageRow, error) {
	return e.st.Context(channelID, messageID, windowSize)
}

func (e *Engine) Thread(threadID string) ([]store.MessageRow, error) {
	return e.st.Thread(threadID)
}

func (e *Engine) Replies(messageID string) ([]store.MessageRow, error) {
	return e.st.Replies(messageID)
}

func (e *Engine) Recent(channelID string, limit int) ([]store.MessageRow, error) {
	return e.st.Recent(channelID, limit)
}

func (e *Engine) MessagesByUser(userID string, f store.Filters) ([]store.MessageRow, error) {
	return e.st.MessagesByUser(userID, f)
}

func (e *Engine) Stats() (*store.Stats, error) {
	return e.st.GetStats()
}

func (e *Engine) ListChannels(guildFilter string) ([]store.ChannelInfo, error) {
	return e.st.ListChannels(guildFilter)
}

func (e *Engine) ListGuilds() ([]store.GuildInfo, error) {
	return e.st.ListGuilds()
}
