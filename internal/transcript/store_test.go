package transcript

import (
	"testing"
	"time"
)

func confirmed(id string, body string) Message {
	return Message{
		ServerID:   id,
		SenderID:   7,
		SenderName: "ana",
		Content:    Text(body),
		CreatedAt:  time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Status:     StatusConfirmed,
	}
}

func pending(corr string, body string) Message {
	return Message{
		CorrelationID: corr,
		SenderID:      1,
		SenderName:    "me",
		Content:       Text(body),
		CreatedAt:     time.Now(),
		Status:        StatusPending,
	}
}

func serverIDs(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ServerID
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSeedKeepsFirstOccurrence(t *testing.T) {
	s := NewStore(1)
	first := confirmed("s1", "first")
	dup := confirmed("s1", "second")
	s.Seed([]Message{first, confirmed("s2", "x"), dup, confirmed("s3", "y")})

	got := s.Snapshot()
	if !equalStrings(serverIDs(got), []string{"s1", "s2", "s3"}) {
		t.Fatalf("got %v, want [s1 s2 s3]", serverIDs(got))
	}
	if got[0].Content.Text != "first" {
		t.Errorf("got content %q, want first", got[0].Content.Text)
	}
}

func TestSeedReplacesContents(t *testing.T) {
	s := NewStore(1)
	s.Append(pending("c1", "hi"))
	s.Seed([]Message{confirmed("s1", "a")})

	if s.Len() != 1 {
		t.Fatalf("got %d entries, want 1", s.Len())
	}
	if s.HasCorrelationID("c1") {
		t.Error("correlation id survived seed")
	}
	if len(s.SinceSeed()) != 0 {
		t.Error("seeded entries reported as local")
	}
}

func TestAppendRefusesDuplicateKeys(t *testing.T) {
	s := NewStore(1)
	if !s.Append(confirmed("s1", "a")) {
		t.Fatal("first append refused")
	}
	if s.Append(confirmed("s1", "b")) {
		t.Error("duplicate server id accepted")
	}
	if !s.Append(pending("c1", "x")) {
		t.Fatal("pending append refused")
	}
	if s.Append(pending("c1", "y")) {
		t.Error("duplicate correlation id accepted")
	}
	if s.Len() != 2 {
		t.Errorf("got %d entries, want 2", s.Len())
	}
}

func TestReplaceKeepsPosition(t *testing.T) {
	s := NewStore(1)
	s.Append(confirmed("s1", "a"))
	s.Append(pending("c1", "hi"))
	s.Append(confirmed("s2", "b"))

	echo := confirmed("s9", "hi")
	if !s.Replace(MatchKey{CorrelationID: "c1"}, echo) {
		t.Fatal("replace failed")
	}

	got := s.Snapshot()
	if !equalStrings(serverIDs(got), []string{"s1", "s9", "s2"}) {
		t.Fatalf("got %v, want [s1 s9 s2]", serverIDs(got))
	}
	if got[1].CorrelationID != "c1" {
		t.Errorf("correlation id dropped: %q", got[1].CorrelationID)
	}
	if got[1].Status != StatusConfirmed {
		t.Errorf("got status %s, want confirmed", got[1].Status)
	}
	if _, ok := s.Find(MatchKey{ServerID: "s9"}); !ok {
		t.Error("new server id not indexed")
	}
}

func TestReplaceRefusesCollision(t *testing.T) {
	s := NewStore(1)
	s.Append(confirmed("s1", "a"))
	s.Append(pending("c1", "hi"))

	if s.Replace(MatchKey{CorrelationID: "c1"}, confirmed("s1", "hi")) {
		t.Error("replace accepted a server id held by another entry")
	}
	if s.Replace(MatchKey{CorrelationID: "missing"}, confirmed("s5", "x")) {
		t.Error("replace of unknown key succeeded")
	}
}

func TestMarkFailedOnlyPending(t *testing.T) {
	s := NewStore(1)
	s.Append(pending("c1", "hi"))

	if !s.MarkFailed("c1", "timeout") {
		t.Fatal("mark failed refused")
	}
	m, _ := s.Find(MatchKey{CorrelationID: "c1"})
	if m.Status != StatusFailed || m.Error != "timeout" {
		t.Errorf("got %s/%q, want failed/timeout", m.Status, m.Error)
	}
	if s.MarkFailed("c1", "again") {
		t.Error("failed entry marked failed twice")
	}
	if s.MarkFailed("nope", "x") {
		t.Error("unknown correlation id marked")
	}
	if s.Len() != 1 {
		t.Errorf("entry removed on failure")
	}
}

func TestRemoveReindexes(t *testing.T) {
	s := NewStore(1)
	s.Append(confirmed("s1", "a"))
	s.Append(pending("c1", "hi"))
	s.Append(confirmed("s2", "b"))

	if !s.Remove(MatchKey{CorrelationID: "c1"}) {
		t.Fatal("remove failed")
	}
	m, ok := s.Find(MatchKey{ServerID: "s2"})
	if !ok || m.Content.Text != "b" {
		t.Errorf("index stale after remove: %+v", m)
	}
}

func TestFindSimilar(t *testing.T) {
	s := NewStore(1)
	s.Append(confirmed("s1", "hello"))

	probe := confirmed("", "hello")
	if _, ok := s.FindSimilar(probe); !ok {
		t.Error("similar message not found")
	}
	probe.CreatedAt = time.Time{}
	if _, ok := s.FindSimilar(probe); ok {
		t.Error("message without timestamp matched")
	}
	probe = confirmed("", "hello")
	probe.SenderID = 0
	probe.SenderName = "ana"
	if _, ok := s.FindSimilar(probe); ok {
		t.Error("name-only sender matched id sender")
	}
}

func TestSnapshotFromMe(t *testing.T) {
	s := NewStore(7)
	s.Append(confirmed("s1", "mine"))
	other := confirmed("s2", "theirs")
	other.SenderID = 42
	s.Append(other)
	s.Append(pending("c1", "sending"))

	got := s.Snapshot()
	want := []bool{true, false, true}
	for i, m := range got {
		if m.FromMe != want[i] {
			t.Errorf("entry %d: FromMe=%v, want %v", i, m.FromMe, want[i])
		}
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	s := NewStore(1)
	s.Append(confirmed("s1", "a"))
	snap := s.Snapshot()
	snap[0].ServerID = "mutated"

	if _, ok := s.Find(MatchKey{ServerID: "s1"}); !ok {
		t.Error("snapshot mutation leaked into store")
	}
}

func TestContentRoundTrip(t *testing.T) {
	f := File{Filename: "notes.pdf", URL: "/uploads/notes.pdf", Mime: "application/pdf", Size: 2048}
	c := ParseContent(Attachment(f).Encode())
	if !c.IsFile() || *c.File != f {
		t.Fatalf("got %+v, want file %+v", c, f)
	}

	for _, s := range []string{"hello", "{not json", `{"type":"image"}`} {
		if got := ParseContent(s); got.IsFile() || got.Text != s {
			t.Errorf("ParseContent(%q) = %+v, want text", s, got)
		}
	}
}
