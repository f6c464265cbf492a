package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func seedBasics(t *testing.T, st *Store) {
	t.Helper()
	if err := st.UpsertGuild(GuildRecord{ID: "g1", Name: "Test Guild", MemberCount: 3}); err != nil {
		t.Fatalf("UpsertGuild failed: %v", err)
	}
	if err := st.UpsertChannel(ChannelRecord{ID: "c1", GuildID: "g1", Name: "general", Type: 0}); err != nil {
		t.Fatalf("UpsertChannel failed: %v", err)
	}
	if err := st.UpsertUser(UserRecord{ID: "u1", Username: "alice", DisplayName: "Alice"}); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}
}

func testMessage(id, content string, created time.Time) MessageRecord {
	return MessageRecord{
		ID:        id,
		ChannelID: "c1",
		GuildID:   "g1",
		Author:    UserRecord{ID: "u1", Username: "alice", DisplayName: "Alice"},
		Content:   content,
		CreatedAt: created,
	}
}

func countRows(t *testing.T, st *Store, table string) int {
	t.Helper()
	var n int
	if err := st.DB().QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s failed: %v", table, err)
	}
	return n
}

func TestOpenExistingCorpus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	seedBasics(t, st)
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := st.UpsertMessage(testMessage("m1", "durable content", created)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// Reopening applies the schema again; everything is idempotent and the
	// full-text index is usable immediately.
	st, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer st.Close()

	results, err := st.Search("durable", Filters{})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "m1" {
		t.Errorf("unexpected results after reopen: %v", results)
	}
}

func TestUpsertMessageIdempotent(t *testing.T) {
	st := newTestStore(t)
	seedBasics(t, st)

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := st.UpsertMessage(testMessage("m1", "the deployment is broken", created)); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if err := st.UpsertMessage(testMessage("m1", "the deployment is broken", created)); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	if n := countRows(t, st, "messages"); n != 1 {
		t.Errorf("expected 1 message row, got %d", n)
	}
	if n := countRows(t, st, "messages_fts"); n != 1 {
		t.Errorf("expected 1 fts row, got %d", n)
	}
}

func TestUpsertMessagePreservesCreatedAt(t *testing.T) {
	st := newTestStore(t)
	seedBasics(t, st)

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := st.UpsertMessage(testMessage("m1", "original content", created)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	// Re-ingest with a drifted timestamp and edited content.
	edited := created.Add(time.Hour)
	m := testMessage("m1", "edited content", created.Add(time.Minute))
	m.EditedAt = &edited
	if err := st.UpsertMessage(m); err != nil {
		t.Fatalf("re-upsert failed: %v", err)
	}

	var content string
	var createdAt int64
	var editedAt *int64
	err := st.DB().QueryRow(
		"SELECT content, created_at, edited_at FROM messages WHERE id = 'm1'",
	).Scan(&content, &createdAt, &editedAt)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if content != "edited content" {
		t.Errorf("content not updated: %q", content)
	}
	if createdAt != created.UnixMilli() {
		t.Errorf("created_at changed: got %d, want %d", createdAt, created.UnixMilli())
	}
	if editedAt == nil || *editedAt != edited.UnixMilli() {
		t.Errorf("edited_at not stored: %v", editedAt)
	}

	// The full-text index must follow the edit.
	results, err := st.Search("edited", Filters{})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "m1" {
		t.Errorf("edited content not searchable: %v", results)
	}
	results, err = st.Search("original", Filters{})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("stale content still searchable: %v", results)
	}
}

func TestSearch(t *testing.T) {
	st := newTestStore(t)
	seedBasics(t, st)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs := []MessageRecord{
		testMessage("m1", "the deployment is broken again", base),
		testMessage("m2", "lunch anyone?", base.Add(time.Minute)),
		testMessage("m3", "fixed the deployment", base.Add(2*time.Minute)),
	}
	if err := st.UpsertMessageBatch(msgs); err != nil {
		t.Fatalf("batch upsert failed: %v", err)
	}

	// Natural-language question: any token may match.
	results, err := st.Search("why is the deployment broken?", Filters{})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	ids := make(map[string]bool)
	for _, r := range results {
		ids[r.ID] = true
	}
	if !ids["m1"] || !ids["m3"] {
		t.Errorf("expected m1 and m3 in results, got %v", ids)
	}

	if results[0].ChannelName != "general" {
		t.Errorf("channel name not resolved: %q", results[0].ChannelName)
	}
	if results[0].AuthorName != "Alice" {
		t.Errorf("author display name not resolved: %q", results[0].AuthorName)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	st := newTestStore(t)
	seedBasics(t, st)

	for _, q := range []string{"", "   ", "?!... ---"} {
		results, err := st.Search(q, Filters{})
		if err != nil {
			t.Errorf("search %q returned error: %v", q, err)
		}
		if len(results) != 0 {
			t.Errorf("search %q returned %d results, want 0", q, len(results))
		}
	}
}

func TestSearchFilters(t *testing.T) {
	st := newTestStore(t)
	seedBasics(t, st)
	if err := st.UpsertChannel(ChannelRecord{ID: "c2", GuildID: "g1", Name: "random", Type: 0}); err != nil {
		t.Fatalf("UpsertChannel failed: %v", err)
	}

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m1 := testMessage("m1", "deployment pipeline", base)
	m2 := testMessage("m2", "deployment schedule", base.Add(time.Minute))
	m2.ChannelID = "c2"
	if err := st.UpsertMessageBatch([]MessageRecord{m1, m2}); err != nil {
		t.Fatalf("batch upsert failed: %v", err)
	}

	// Filter by channel name, not id.
	results, err := st.Search("deployment", Filters{Channel: "#random"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "m2" {
		t.Errorf("channel filter: got %v, want only m2", results)
	}

	results, err = st.Search("deployment", Filters{Author: "alice"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("author filter: got %d results, want 2", len(results))
	}
}

func TestContextWindow(t *testing.T) {
	st := newTestStore(t)
	seedBasics(t, st)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var msgs []MessageRecord
	for i := 1; i <= 21; i++ {
		id := fmt.Sprintf("m%02d", i)
		msgs = append(msgs, testMessage(id, fmt.Sprintf("message %d", i), base.Add(time.Duration(i)*time.Minute)))
	}
	if err := st.UpsertMessageBatch(msgs); err != nil {
		t.Fatalf("batch upsert failed: %v", err)
	}

	// A centered target gets five before and five from the target onward.
	rows, err := st.Context("c1", "m11", 10)
	if err != nil {
		t.Fatalf("context failed: %v", err)
	}
	want := []string{"m06", "m07", "m08", "m09", "m10", "m11", "m12", "m13", "m14", "m15"}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d", len(rows), len(want))
	}
	for i, w := range want {
		if rows[i].ID != w {
			t.Errorf("row %d: got %s, want %s", i, rows[i].ID, w)
		}
	}

	// Near the start the window shrinks; the short side is not backfilled.
	rows, err = st.Context("c1", "m02", 10)
	if err != nil {
		t.Fatalf("context failed: %v", err)
	}
	want = []string{"m01", "m02", "m03", "m04", "m05", "m06"}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d", len(rows), len(want))
	}
	for i, w := range want {
		if rows[i].ID != w {
			t.Errorf("row %d: got %s, want %s", i, rows[i].ID, w)
		}
	}
}

func TestSnowflakeOrdering(t *testing.T) {
	st := newTestStore(t)
	seedBasics(t, st)

	// Same timestamp, ids of different digit lengths: "99" precedes "100"
	// numerically even though it sorts after as text.
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs := []MessageRecord{
		testMessage("99", "first", ts),
		testMessage("100", "second", ts),
		testMessage("101", "third", ts),
	}
	if err := st.UpsertMessageBatch(msgs); err != nil {
		t.Fatalf("batch upsert failed: %v", err)
	}

	rows, err := st.Recent("c1", 10)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	want := []string{"101", "100", "99"}
	for i, w := range want {
		if rows[i].ID != w {
			t.Errorf("row %d: got %s, want %s", i, rows[i].ID, w)
		}
	}

	rows, err = st.Context("c1", "100", 2)
	if err != nil {
		t.Fatalf("context failed: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != "99" || rows[1].ID != "100" {
		t.Errorf("unexpected context window: %v", rows)
	}
}

func TestContextUnknownMessage(t *testing.T) {
	st := newTestStore(t)
	seedBasics(t, st)

	rows, err := st.Context("c1", "missing", 10)
	if err != nil {
		t.Fatalf("context returned error: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected empty result, got %d rows", len(rows))
	}
}

func TestThread(t *testing.T) {
	st := newTestStore(t)
	seedBasics(t, st)
	if err := st.UpsertChannel(ChannelRecord{ID: "t1", GuildID: "g1", Name: "a thread", Type: 11, ParentID: "c1"}); err != nil {
		t.Fatalf("UpsertChannel failed: %v", err)
	}

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	parent := testMessage("m1", "starting a thread", base)
	parent.ThreadID = "t1"
	inThread1 := testMessage("m2", "first reply", base.Add(time.Minute))
	inThread1.ChannelID = "t1"
	inThread1.ThreadID = "t1"
	inThread2 := testMessage("m3", "second reply", base.Add(2*time.Minute))
	inThread2.ChannelID = "t1"
	inThread2.ThreadID = "t1"
	unrelated := testMessage("m4", "elsewhere", base.Add(3*time.Minute))

	if err := st.UpsertMessageBatch([]MessageRecord{parent, inThread1, inThread2, unrelated}); err != nil {
		t.Fatalf("batch upsert failed: %v", err)
	}

	rows, err := st.Thread("t1")
	if err != nil {
		t.Fatalf("thread failed: %v", err)
	}
	want := []string{"m1", "m2", "m3"}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d", len(rows), len(want))
	}
	for i, w := range want {
		if rows[i].ID != w {
			t.Errorf("row %d: got %s, want %s", i, rows[i].ID, w)
		}
	}
}

func TestReplies(t *testing.T) {
	st := newTestStore(t)
	seedBasics(t, st)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	root := testMessage("m1", "does anyone know?", base)
	reply1 := testMessage("m2", "yes", base.Add(time.Minute))
	reply1.ReferenceID = "m1"
	reply2 := testMessage("m3", "no", base.Add(2*time.Minute))
	reply2.ReferenceID = "m1"
	other := testMessage("m4", "unrelated", base.Add(3*time.Minute))

	if err := st.UpsertMessageBatch([]MessageRecord{root, reply1, reply2, other}); err != nil {
		t.Fatalf("batch upsert failed: %v", err)
	}

	rows, err := st.Replies("m1")
	if err != nil {
		t.Fatalf("replies failed: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != "m2" || rows[1].ID != "m3" {
		t.Errorf("unexpected replies: %v", rows)
	}
}

func TestRecent(t *testing.T) {
	st := newTestStore(t)
	seedBasics(t, st)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var msgs []MessageRecord
	for i := 1; i <= 5; i++ {
		msgs = append(msgs, testMessage(fmt.Sprintf("m%d", i), fmt.Sprintf("message %d", i), base.Add(time.Duration(i)*time.Minute)))
	}
	if err := st.UpsertMessageBatch(msgs); err != nil {
		t.Fatalf("batch upsert failed: %v", err)
	}

	rows, err := st.Recent("general", 3)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	want := []string{"m5", "m4", "m3"}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d", len(rows), len(want))
	}
	for i, w := range want {
		if rows[i].ID != w {
			t.Errorf("row %d: got %s, want %s", i, rows[i].ID, w)
		}
	}
}

func TestMessagesByUser(t *testing.T) {
	st := newTestStore(t)
	seedBasics(t, st)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mine := testMessage("m1", "hello", base)
	other := testMessage("m2", "hi", base.Add(time.Minute))
	other.Author = UserRecord{ID: "u2", Username: "bob"}
	if err := st.UpsertMessageBatch([]MessageRecord{mine, other}); err != nil {
		t.Fatalf("batch upsert failed: %v", err)
	}

	rows, err := st.MessagesByUser("Alice", Filters{})
	if err != nil {
		t.Fatalf("messages by user failed: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "m1" {
		t.Errorf("unexpected rows: %v", rows)
	}
}

func TestGetStats(t *testing.T) {
	st := newTestStore(t)
	seedBasics(t, st)
	if err := st.UpsertChannel(ChannelRecord{ID: "t1", GuildID: "g1", Name: "thread", Type: 11, ParentID: "c1"}); err != nil {
		t.Fatalf("UpsertChannel failed: %v", err)
	}

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m1 := testMessage("m1", "one", base)
	m2 := testMessage("m2", "two", base.Add(time.Minute))
	m2.ChannelID = "t1"
	m2.ThreadID = "t1"
	if err := st.UpsertMessageBatch([]MessageRecord{m1, m2}); err != nil {
		t.Fatalf("batch upsert failed: %v", err)
	}

	stats, err := st.GetStats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Messages != 2 {
		t.Errorf("messages = %d, want 2", stats.Messages)
	}
	if stats.Channels != 2 {
		t.Errorf("channels = %d, want 2", stats.Channels)
	}
	if stats.Users != 1 {
		t.Errorf("users = %d, want 1", stats.Users)
	}
	if stats.Guilds != 1 {
		t.Errorf("guilds = %d, want 1", stats.Guilds)
	}
	if stats.Threads != 1 {
		t.Errorf("threads = %d, want 1", stats.Threads)
	}
}

func TestResolve(t *testing.T) {
	st := newTestStore(t)
	seedBasics(t, st)

	if got := st.ResolveChannel("#General"); got != "c1" {
		t.Errorf("ResolveChannel = %q, want c1", got)
	}
	if got := st.ResolveChannel("c1"); got != "c1" {
		t.Errorf("ResolveChannel passthrough = %q, want c1", got)
	}
	if got := st.ResolveChannel("nope"); got != "nope" {
		t.Errorf("ResolveChannel unknown = %q, want nope", got)
	}
	if got := st.ResolveGuild("test guild"); got != "g1" {
		t.Errorf("ResolveGuild = %q, want g1", got)
	}
	if got := st.ResolveUser("ALICE"); got != "u1" {
		t.Errorf("ResolveUser = %q, want u1", got)
	}
}

func TestImportCursor(t *testing.T) {
	st := newTestStore(t)

	c, err := st.ImportCursor("c1")
	if err != nil {
		t.Fatalf("get cursor failed: %v", err)
	}
	if c != nil {
		t.Errorf("expected nil cursor for untouched channel, got %v", c)
	}

	if err := st.SetImportCursor("c1", "100", "200"); err != nil {
		t.Fatalf("set cursor failed: %v", err)
	}
	if err := st.SetImportCursor("c1", "100", "300"); err != nil {
		t.Fatalf("update cursor failed: %v", err)
	}

	c, err = st.ImportCursor("c1")
	if err != nil {
		t.Fatalf("get cursor failed: %v", err)
	}
	if c == nil || c.OldestID != "100" || c.LatestID != "300" {
		t.Errorf("unexpected cursor: %+v", c)
	}
}

func TestUpsertPinned(t *testing.T) {
	st := newTestStore(t)
	seedBasics(t, st)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	pins := []MessageRecord{testMessage("m1", "pinned announcement", base)}
	if err := st.UpsertPinned("c1", "g1", pins); err != nil {
		t.Fatalf("upsert pinned failed: %v", err)
	}
	if err := st.UpsertPinned("c1", "g1", pins); err != nil {
		t.Fatalf("re-upsert pinned failed: %v", err)
	}

	if n := countRows(t, st, "pins"); n != 1 {
		t.Errorf("expected 1 pin row, got %d", n)
	}
	if n := countRows(t, st, "messages"); n != 1 {
		t.Errorf("expected 1 message row, got %d", n)
	}
}

func TestListChannelsAndGuilds(t *testing.T) {
	st := newTestStore(t)
	seedBasics(t, st)
	if err := st.UpsertChannel(ChannelRecord{ID: "c2", GuildID: "g1", Name: "alpha", Type: 0, Position: 1}); err != nil {
		t.Fatalf("UpsertChannel failed: %v", err)
	}

	channels, err := st.ListChannels("Test Guild")
	if err != nil {
		t.Fatalf("list channels failed: %v", err)
	}
	if len(channels) != 2 {
		t.Fatalf("got %d channels, want 2", len(channels))
	}
	if channels[0].Position > channels[1].Position {
		t.Errorf("channels not ordered by position")
	}

	guilds, err := st.ListGuilds()
	if err != nil {
		t.Fatalf("list guilds failed: %v", err)
	}
	if len(guilds) != 1 || guilds[0].Name != "Test Guild" {
		t.Errorf("unexpected guilds: %v", guilds)
	}
}

func TestUpsertMemberAndRun(t *testing.T) {
	st := newTestStore(t)
	seedBasics(t, st)

	m := MemberRecord{
		GuildID:  "g1",
		User:     UserRecord{ID: "u2", Username: "bob"},
		Nick:     "bobby",
		Roles:    []string{"r1"},
		JoinedAt: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := st.UpsertMember(m); err != nil {
		t.Fatalf("upsert member failed: %v", err)
	}
	if err := st.UpsertMember(m); err != nil {
		t.Fatalf("re-upsert member failed: %v", err)
	}
	if n := countRows(t, st, "members"); n != 1 {
		t.Errorf("expected 1 member row, got %d", n)
	}
	if n := countRows(t, st, "users"); n != 2 {
		t.Errorf("expected 2 user rows, got %d", n)
	}

	if err := st.BeginRun("run-1"); err != nil {
		t.Fatalf("begin run failed: %v", err)
	}
	if err := st.FinishRun("run-1", 1, 2, 3); err != nil {
		t.Fatalf("finish run failed: %v", err)
	}
	var guilds, channels, messages int
	err := st.DB().QueryRow(
		"SELECT guilds, channels, messages FROM import_runs WHERE id = 'run-1'",
	).Scan(&guilds, &channels, &messages)
	if err != nil {
		t.Fatalf("run query failed: %v", err)
	}
	if guilds != 1 || channels != 2 || messages != 3 {
		t.Errorf("run totals = %d/%d/%d, want 1/2/3", guilds, channels, messages)
	}
}
