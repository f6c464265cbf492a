// Package ingest orchestrates the archive pipeline: guild metadata, member,
// channel, role, and emoji sync, resumable per-channel message backfill,
// thread discovery, and pin backfill. Errors are contained at the smallest
// unit (one channel, one thread, one pin fetch) and never abort sibling
// work; cursor-based resumption is the retry mechanism.
package ingest

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scribe-archive/scribe/internal/pool"
	"github.com/scribe-archive/scribe/internal/source"
	"github.com/scribe-archive/scribe/internal/store"
)

// Options configures one import run.
type Options struct {
	Concurrency    int      // channel backfill fan-out, applied per phase
	PageSize       int      // upstream page size, max 100
	IncludeThreads bool     // discover and backfill threads
	Guilds         []string // allow-list, ids or names; empty = all
	Channels       []string // allow-list, ids or names; empty = all
}

// Importer drives the pipeline against a Source, writing through the store.
type Importer struct {
	src  source.Source
	st   *store.Store
	opts Options
}

// Result summarizes one run.
type Result struct {
	RunID    string `json:"run_id"`
	Guilds   int    `json:"guilds"`
	Channels int    `json:"channels"`
	Threads  int    `json:"threads"`
	Messages int    `json:"messages"`
	Pins     int    `json:"pins"`
}

// New creates an importer. Concurrency defaults to 2 and page size to 100.
func New(src source.Source, st *store.Store, opts Options) *Importer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.PageSize <= 0 || opts.PageSize > 100 {
		opts.PageSize = 100
	}
	return &Importer{src: src, st: st, opts: opts}
}

// Run executes the full pipeline once. Failing to list guilds is the only
// fatal error; everything below degrades or skips.
func (im *Importer) Run() (*Result, error) {
	res := &Result{RunID: uuid.New().String()}
	if err := im.st.BeginRun(res.RunID); err != nil {
		return nil, err
	}

	guilds, err := im.src.Guilds()
	if err != nil {
		// Close out the run row so it is not mistaken for a crash.
		if ferr := im.st.FinishRun(res.RunID, 0, 0, 0); ferr != nil {
			log.Printf("failed to record run totals: %v", ferr)
		}
		return nil, fmt.Errorf("failed to list guilds: %w", err)
	}

	for _, g := range guilds {
		if !matchAllowList(im.opts.Guilds, g.ID, g.Name) {
			continue
		}
		im.syncGuild(g, res)
		res.Guilds++
	}

	if err := im.st.FinishRun(res.RunID, res.Guilds, res.Channels, res.Messages); err != nil {
		log.Printf("failed to record run totals: %v", err)
	}
	return res, nil
}

// syncGuild runs the per-guild phases sequentially; each phase waits for the
// previous phase's fan-out to finish completely.
func (im *Importer) syncGuild(g store.GuildRecord, res *Result) {
	log.Printf("syncing guild %s (%s)", g.Name, g.ID)

	if err := im.st.UpsertGuild(g); err != nil {
		log.Printf("failed to store guild %s: %v", g.ID, err)
		return
	}

	// Members: on failure, degrade to whatever is already cached locally.
	members, err := im.src.Members(g.ID)
	if err != nil {
		log.Printf("member sync failed for guild %s, keeping cached members: %v", g.ID, err)
	}
	for _, m := range members {
		if err := im.st.UpsertMember(m); err != nil {
			log.Printf("failed to store member %s/%s: %v", m.GuildID, m.User.ID, err)
		}
	}

	channels := im.syncChannels(g)
	im.syncRolesAndEmoji(g.ID)

	// Message backfill over eligible text channels, bounded fan-out. Forum
	// and media channels carry no history themselves but their posts are
	// archived threads, so they join the thread-parent set only.
	eligible := make([]store.ChannelRecord, 0, len(channels))
	parents := make([]store.ChannelRecord, 0, len(channels))
	for _, ch := range channels {
		if !matchAllowList(im.opts.Channels, ch.ID, ch.Name) {
			continue
		}
		if source.IsThreadParentType(ch.Type) {
			parents = append(parents, ch)
		}
		if source.IsTextType(ch.Type) {
			eligible = append(eligible, ch)
		}
	}

	results := pool.Run(eligible, im.opts.Concurrency, func(_ int, ch store.ChannelRecord) backfillResult {
		added, err := im.backfillChannel(ch)
		return backfillResult{channel: ch, added: added, err: err}
	})
	for _, r := range results {
		res.Channels++
		res.Messages += r.added
		r.log()
	}

	// Thread discovery and backfill; a single thread's failure is swallowed.
	if im.opts.IncludeThreads {
		threads := im.discoverThreads(g.ID, parents)
		threadResults := pool.Run(threads, im.opts.Concurrency, func(_ int, th store.ChannelRecord) backfillResult {
			added, err := im.backfillChannel(th)
			return backfillResult{channel: th, added: added, err: err}
		})
		for _, r := range threadResults {
			res.Threads++
			res.Messages += r.added
			r.log()
		}
		eligible = append(eligible, threads...)
	}

	// Pin backfill; some channel types have no pins, failures are non-critical.
	pinResults := pool.Run(eligible, im.opts.Concurrency, func(_ int, ch store.ChannelRecord) backfillResult {
		added, err := im.backfillPins(ch, g.ID)
		return backfillResult{channel: ch, added: added, err: err, kind: "pin backfill"}
	})
	for _, r := range pinResults {
		res.Pins += r.added
		r.log()
	}
}

// syncChannels fetches and stores channel metadata, falling back to the
// locally cached set when the remote fetch fails.
func (im *Importer) syncChannels(g store.GuildRecord) []store.ChannelRecord {
	channels, err := im.src.Channels(g.ID)
	if err != nil {
		log.Printf("channel sync failed for guild %s, using cached channels: %v", g.ID, err)
		cached, cerr := im.st.ListChannels(g.ID)
		if cerr != nil {
			log.Printf("failed to load cached channels for guild %s: %v", g.ID, cerr)
			return nil
		}
		channels = make([]store.ChannelRecord, 0, len(cached))
		for _, c := range cached {
			channels = append(channels, store.ChannelRecord{
				ID:       c.ID,
				GuildID:  c.GuildID,
				Name:     c.Name,
				Type:     c.Type,
				Topic:    c.Topic,
				ParentID: c.ParentID,
				Position: c.Position,
			})
		}
		return channels
	}

	for _, ch := range channels {
		if err := im.st.UpsertChannel(ch); err != nil {
			log.Printf("failed to store channel %s: %v", ch.ID, err)
		}
	}
	return channels
}

func (im *Importer) syncRolesAndEmoji(guildID string) {
	if roles, err := im.src.Roles(guildID); err != nil {
		log.Printf("role sync failed for guild %s: %v", guildID, err)
	} else {
		for _, r := range roles {
			if err := im.st.UpsertRole(r); err != nil {
				log.Printf("failed to store role %s: %v", r.ID, err)
			}
		}
	}

	if emojis, err := im.src.Emojis(guildID); err != nil {
		log.Printf("emoji sync failed for guild %s: %v", guildID, err)
	} else {
		for _, e := range emojis {
			if err := im.st.UpsertEmoji(e); err != nil {
				log.Printf("failed to store emoji %s: %v", e.ID, err)
			}
		}
	}
}

// discoverThreads collects the guild's active threads plus every parent
// channel's archived threads, registering each as a channel.
func (im *Importer) discoverThreads(guildID string, parents []store.ChannelRecord) []store.ChannelRecord {
	seen := make(map[string]bool)
	var threads []store.ChannelRecord

	register := func(th store.ChannelRecord) {
		if seen[th.ID] {
			return
		}
		seen[th.ID] = true
		if err := im.st.UpsertChannel(th); err != nil {
			log.Printf("failed to register thread %s: %v", th.ID, err)
			return
		}
		threads = append(threads, th)
	}

	active, err := im.src.ActiveThreads(guildID)
	if err != nil {
		log.Printf("active thread fetch failed for guild %s: %v", guildID, err)
	}
	for _, th := range active {
		register(th)
	}

	for _, parent := range parents {
		var before *time.Time
		for {
			page, err := im.src.ArchivedThreads(parent.ID, before, im.opts.PageSize)
			if err != nil {
				log.Printf("archived thread fetch failed for channel %s: %v", parent.ID, err)
				break
			}
			for _, th := range page.Threads {
				register(th)
			}
			if !page.HasMore || page.NextBefore == nil {
				break
			}
			before = page.NextBefore
		}
	}

	return threads
}

// backfillChannel pages through a channel's history. The first page after an
// existing cursor is an "after" fetch; subsequent pages walk backward from
// the oldest id seen this run, since the upstream returns a bounded page per
// call, newest-first. Every page is committed atomically and advances the
// cursor before the next fetch, so a crash resumes cleanly.
func (im *Importer) backfillChannel(ch store.ChannelRecord) (int, error) {
	cursor, err := im.st.ImportCursor(ch.ID)
	if err != nil {
		return 0, err
	}

	var oldestSeen, latestSeen string
	afterCursor := false
	if cursor != nil && cursor.LatestID != "" {
		latestSeen = cursor.LatestID
		afterCursor = true
	}

	added := 0
	for {
		opts := source.PageOptions{Limit: im.opts.PageSize}
		if afterCursor {
			opts.After = cursor.LatestID
		} else if oldestSeen != "" {
			opts.Before = oldestSeen
		}

		page, err := im.src.MessagePage(ch.ID, opts)
		if err != nil {
			return added, err
		}
		afterCursor = false

		if len(page) == 0 {
			break
		}

		for i := range page {
			m := &page[i]
			if m.ThreadID == "" && source.IsThreadType(ch.Type) {
				m.ThreadID = ch.ID
			}
			if oldestSeen == "" || snowflakeLess(m.ID, oldestSeen) {
				oldestSeen = m.ID
			}
			if latestSeen == "" || snowflakeLess(latestSeen, m.ID) {
				latestSeen = m.ID
			}
		}

		if err := im.st.UpsertMessageBatch(page); err != nil {
			return added, err
		}
		if err := im.st.SetImportCursor(ch.ID, oldestSeen, latestSeen); err != nil {
			return added, err
		}
		added += len(page)

		if len(page) < im.opts.PageSize {
			break
		}
	}

	return added, nil
}

func (im *Importer) backfillPins(ch store.ChannelRecord, guildID string) (int, error) {
	pinned, err := im.src.Pinned(ch.ID)
	if err != nil {
		return 0, err
	}
	if len(pinned) == 0 {
		return 0, nil
	}
	if err := im.st.UpsertPinned(ch.ID, guildID, pinned); err != nil {
		return 0, err
	}
	return len(pinned), nil
}

type backfillResult struct {
	channel store.ChannelRecord
	added   int
	err     error
	kind    string
}

func (r backfillResult) log() {
	kind := r.kind
	if kind == "" {
		kind = "backfill"
	}
	switch {
	case r.err == nil:
		if r.added > 0 {
			log.Printf("%s: channel %s (%s): %d records", kind, r.channel.Name, r.channel.ID, r.added)
		}
	case source.IsPermission(r.err):
		log.Printf("%s: no access to channel %s (%s), skipping", kind, r.channel.Name, r.channel.ID)
	case source.IsTransient(r.err):
		log.Printf("%s: transient error on channel %s (%s), will retry next run: %v", kind, r.channel.Name, r.channel.ID, r.err)
	default:
		log.Printf("%s: channel %s (%s) failed: %v", kind, r.channel.Name, r.channel.ID, r.err)
	}
}

// matchAllowList reports whether an entity passes the allow-list: empty list
// admits everything, otherwise its id or name must match case-insensitively
// (a leading '#' on entries is ignored).
func matchAllowList(list []string, id, name string) bool {
	if len(list) == 0 {
		return true
	}
	for _, entry := range list {
		entry = strings.TrimPrefix(entry, "#")
		if strings.EqualFold(entry, id) || strings.EqualFold(entry, name) {
			return true
		}
	}
	return false
}
