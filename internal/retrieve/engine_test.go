package retrieve

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/scribe-archive/scribe/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st), st
}

func seedCorpus(t *testing.T, st *store.Store) {
	t.Helper()
	if err := st.UpsertGuild(store.GuildRecord{ID: "g1", Name: "Test Guild"}); err != nil {
		t.Fatalf("UpsertGuild failed: %v", err)
	}
	for _, c := range []store.ChannelRecord{
		{ID: "c1", GuildID: "g1", Name: "general", Type: 0},
		{ID: "t1", GuildID: "g1", Name: "incident thread", Type: 11, ParentID: "c1"},
	} {
		if err := st.UpsertChannel(c); err != nil {
			t.Fatalf("UpsertChannel failed: %v", err)
		}
	}

	author := store.UserRecord{ID: "u1", Username: "alice", DisplayName: "Alice"}
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs := []store.MessageRecord{
		{ID: "m1", ChannelID: "c1", GuildID: "g1", Author: author,
			Content: "deploy went out fine", CreatedAt: base},
		{ID: "m2", ChannelID: "c1", GuildID: "g1", Author: author,
			Content: "actually the deploy is broken", CreatedAt: base.Add(time.Minute)},
		{ID: "m3", ChannelID: "t1", GuildID: "g1", Author: author, ThreadID: "t1",
			Content: "tracking the broken deploy here", CreatedAt: base.Add(2 * time.Minute)},
		{ID: "m4", ChannelID: "t1", GuildID: "g1", Author: author, ThreadID: "t1",
			Content: "root cause found, rolling back", CreatedAt: base.Add(3 * time.Minute)},
	}
	if err := st.UpsertMessageBatch(msgs); err != nil {
		t.Fatalf("UpsertMessageBatch failed: %v", err)
	}
}

func TestAskEmptyQuestion(t *testing.T) {
	e, _ := newTestEngine(t)
	if _, err := e.Ask("", store.Filters{}, 0); err == nil {
		t.Error("expected error for empty question")
	}
	if _, err := e.Ask("   ", store.Filters{}, 0); err == nil {
		t.Error("expected error for whitespace question")
	}
}

func TestAskAssemblesContexts(t *testing.T) {
	e, st := newTestEngine(t)
	seedCorpus(t, st)

	ans, err := e.Ask("broken deploy", store.Filters{}, 10)
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}

	if len(ans.Hits) < 2 {
		t.Fatalf("got %d hits, want at least 2", len(ans.Hits))
	}

	// The thread hit expands to the full thread; the channel hit gets a
	// centered window. Both kinds must be present.
	var threadConv, contextConv bool
	for key, conv := range ans.Contexts {
		switch conv.Kind {
		case "thread":
			threadConv = true
			if key != "thread:t1" {
				t.Errorf("thread context key = %q, want thread:t1", key)
			}
			if len(conv.Messages) != 2 {
				t.Errorf("thread context has %d messages, want 2", len(conv.Messages))
			}
		case "context":
			contextConv = true
			if len(conv.Messages) == 0 {
				t.Error("channel context is empty")
			}
		default:
			t.Errorf("unexpected context kind %q", conv.Kind)
		}
	}
	if !threadConv {
		t.Error("missing thread context")
	}
	if !contextConv {
		t.Error("missing channel context")
	}

	// Multiple hits inside t1 collapse onto one conversation.
	threadKeys := 0
	for key := range ans.Contexts {
		if key == "thread:t1" {
			threadKeys++
		}
	}
	if threadKeys != 1 {
		t.Errorf("got %d thread:t1 contexts, want 1", threadKeys)
	}

	if ans.Stats.Messages != 4 {
		t.Errorf("stats.messages = %d, want 4", ans.Stats.Messages)
	}
}

func TestAskRespectsTopK(t *testing.T) {
	e, st := newTestEngine(t)
	seedCorpus(t, st)

	ans, err := e.Ask("deploy", store.Filters{}, 1)
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if len(ans.Hits) != 1 {
		t.Errorf("got %d hits, want 1", len(ans.Hits))
	}
}

func TestDelegates(t *testing.T) {
	e, st := newTestEngine(t)
	seedCorpus(t, st)

	rows, err := e.Thread("t1")
	if err != nil {
		t.Fatalf("thread failed: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("thread returned %d messages, want 2", len(rows))
	}

	rows, err = e.Recent("general", 0)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("recent returned %d messages, want 2", len(rows))
	}

	stats, err := e.Stats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Threads != 1 {
		t.Errorf("stats.threads = %d, want 1", stats.Threads)
	}
}
