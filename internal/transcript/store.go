package transcript

// MatchKey selects a store entry by correlation id or server id. When both
// are set the correlation id is tried first.
type MatchKey struct {
	ServerID      string
	CorrelationID string
}

type entry struct {
	msg Message
	// seeded marks entries that came from the last history seed.
	seeded bool
}

// Store is the ordered transcript of one conversation. Ordering is
// insertion order. At most one entry exists per server id and per
// correlation id. Store is not safe for concurrent use; the reconciler
// serializes access.
type Store struct {
	currentUserID int64
	entries       []entry
	byServer      map[string]int
	byCorr        map[string]int
}

// NewStore creates an empty store. currentUserID drives Message.FromMe.
func NewStore(currentUserID int64) *Store {
	return &Store{
		currentUserID: currentUserID,
		byServer:      make(map[string]int),
		byCorr:        make(map[string]int),
	}
}

// Seed replaces the contents with msgs. Duplicate server ids and
// correlation ids are dropped, keeping the first occurrence.
func (s *Store) Seed(msgs []Message) {
	s.entries = s.entries[:0]
	clear(s.byServer)
	clear(s.byCorr)
	for _, m := range msgs {
		if s.conflicts(m, -1) {
			continue
		}
		s.entries = append(s.entries, entry{msg: m, seeded: true})
		s.index(len(s.entries)-1, m)
	}
}

// Append adds m at the end. It refuses (returns false) a message whose
// server id or correlation id is already present.
func (s *Store) Append(m Message) bool {
	if s.conflicts(m, -1) {
		return false
	}
	s.entries = append(s.entries, entry{msg: m})
	s.index(len(s.entries)-1, m)
	return true
}

// Replace overwrites the entry selected by key with m, keeping its
// position. A correlation id already held by the slot is kept when m has
// none. Returns false when no entry matches or m would collide with
// another entry.
func (s *Store) Replace(key MatchKey, m Message) bool {
	i, ok := s.lookup(key)
	if !ok {
		return false
	}
	old := s.entries[i].msg
	if m.CorrelationID == "" {
		m.CorrelationID = old.CorrelationID
	}
	if s.conflicts(m, i) {
		return false
	}
	s.unindex(old)
	s.entries[i].msg = m
	s.index(i, m)
	return true
}

// MarkFailed moves a pending entry to failed. Entries in any other state
// are left untouched.
func (s *Store) MarkFailed(correlationID string, reason string) bool {
	i, ok := s.byCorr[correlationID]
	if !ok || s.entries[i].msg.Status != StatusPending {
		return false
	}
	s.entries[i].msg.Status = StatusFailed
	s.entries[i].msg.Error = reason
	return true
}

// Remove deletes the entry selected by key.
func (s *Store) Remove(key MatchKey) bool {
	i, ok := s.lookup(key)
	if !ok {
		return false
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	s.reindex()
	return true
}

// Find returns the entry selected by key.
func (s *Store) Find(key MatchKey) (Message, bool) {
	i, ok := s.lookup(key)
	if !ok {
		return Message{}, false
	}
	return s.decorate(s.entries[i].msg), true
}

// HasServerID reports whether an entry carries the server id.
func (s *Store) HasServerID(id string) bool {
	if id == "" {
		return false
	}
	_, ok := s.byServer[id]
	return ok
}

// HasCorrelationID reports whether an entry carries the correlation id.
func (s *Store) HasCorrelationID(id string) bool {
	if id == "" {
		return false
	}
	_, ok := s.byCorr[id]
	return ok
}

// FindSimilar returns the first entry with the same author, content and
// creation time as m.
func (s *Store) FindSimilar(m Message) (Message, bool) {
	for _, e := range s.entries {
		if e.msg.Similar(m) {
			return s.decorate(e.msg), true
		}
	}
	return Message{}, false
}

// SinceSeed returns, in order, the entries that did not come from the last
// Seed call: optimistic sends and live arrivals.
func (s *Store) SinceSeed() []Message {
	var out []Message
	for _, e := range s.entries {
		if !e.seeded {
			out = append(out, e.msg)
		}
	}
	return out
}

// Snapshot returns a copy of the transcript in insertion order.
func (s *Store) Snapshot() []Message {
	out := make([]Message, len(s.entries))
	for i, e := range s.entries {
		out[i] = s.decorate(e.msg)
	}
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	return len(s.entries)
}

func (s *Store) decorate(m Message) Message {
	m.FromMe = (s.currentUserID != 0 && m.SenderID == s.currentUserID) ||
		(m.Status != StatusConfirmed && m.CorrelationID != "")
	return m
}

func (s *Store) lookup(key MatchKey) (int, bool) {
	if key.CorrelationID != "" {
		if i, ok := s.byCorr[key.CorrelationID]; ok {
			return i, true
		}
	}
	if key.ServerID != "" {
		if i, ok := s.byServer[key.ServerID]; ok {
			return i, true
		}
	}
	return 0, false
}

// conflicts reports whether m's identifiers are held by an entry other
// than slot self.
func (s *Store) conflicts(m Message, self int) bool {
	if m.ServerID != "" {
		if i, ok := s.byServer[m.ServerID]; ok && i != self {
			return true
		}
	}
	if m.CorrelationID != "" {
		if i, ok := s.byCorr[m.CorrelationID]; ok && i != self {
			return true
		}
	}
	return false
}

func (s *Store) index(i int, m Message) {
	if m.ServerID != "" {
		s.byServer[m.ServerID] = i
	}
	if m.CorrelationID != "" {
		s.byCorr[m.CorrelationID] = i
	}
}

func (s *Store) unindex(m Message) {
	if m.ServerID != "" {
		delete(s.byServer, m.ServerID)
	}
	if m.CorrelationID != "" {
		delete(s.byCorr, m.CorrelationID)
	}
}

func (s *Store) reindex() {
	clear(s.byServer)
	clear(s.byCorr)
	for i, e := range s.entries {
		s.index(i, e.msg)
	}
}
