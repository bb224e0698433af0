package reconcile

import (
	"sync"
	"time"

	"github.com/matheus3301/sbc/internal/bus"
	"github.com/matheus3301/sbc/internal/metrics"
	"github.com/matheus3301/sbc/internal/transcript"
	"go.uber.org/zap"
)

// Outcome is the decision taken for one incoming message.
type Outcome string

const (
	Appended Outcome = "appended"
	Replaced Outcome = "replaced"
	// Duplicate means the server id was already present.
	Duplicate Outcome = "duplicate"
	// Similar means the sender/content/time fallback matched.
	Similar Outcome = "similar"
	// Stale means the delivery belongs to another or a closed conversation.
	Stale Outcome = "stale"
)

// Change is the payload of "transcript.*" bus events.
type Change struct {
	ConversationID string
	Outcome        Outcome
	Message        transcript.Message
	Messages       []transcript.Message
}

// SeedResult reports what a Seed call did.
type SeedResult struct {
	Seeded  int
	Carried int
	// Dropped counts confirmed live arrivals older than the history window.
	Dropped int
}

// Reconciler owns the transcript of one conversation and decides the store
// mutation for every delivery: history seed, send confirmation or live feed.
// All methods are safe for concurrent use; each call is atomic.
type Reconciler struct {
	mu             sync.Mutex
	conversationID string
	store          *transcript.Store
	bus            *bus.Bus
	logger         *zap.Logger
	closed         bool
}

// New creates a reconciler for conversationID. bus may be nil.
func New(conversationID string, currentUserID int64, b *bus.Bus, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		conversationID: conversationID,
		store:          transcript.NewStore(currentUserID),
		bus:            b,
		logger:         logger.With(zap.String("conversation", conversationID)),
	}
}

// ConversationID returns the conversation this reconciler is bound to.
func (r *Reconciler) ConversationID() string {
	return r.conversationID
}

// Track appends an optimistic entry. It fails when the reconciler is closed
// or the correlation id is missing or already used.
func (r *Reconciler) Track(m transcript.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || m.CorrelationID == "" {
		return false
	}
	m.ConversationID = r.conversationID
	m.ServerID = ""
	m.Status = transcript.StatusPending
	if !r.store.Append(m) {
		return false
	}
	r.publish(bus.TranscriptPending, Change{Message: r.find(m.Key())})
	return true
}

// OnIncoming applies one server-originated message:
//  1. a known server id is discarded;
//  2. a known correlation id is confirmed in place;
//  3. a message similar to an existing one is discarded;
//  4. anything else is appended.
func (r *Reconciler) OnIncoming(m transcript.Message) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.apply(m)
	metrics.ReconcileTotal.WithLabelValues(string(out)).Inc()
	metrics.TranscriptMessages.Set(float64(r.store.Len()))
	return out
}

// OnConfirmed applies the confirm response of the send tagged
// correlationID. It shares the OnIncoming path.
func (r *Reconciler) OnConfirmed(correlationID string, m transcript.Message) Outcome {
	m.CorrelationID = correlationID
	return r.OnIncoming(m)
}

func (r *Reconciler) apply(m transcript.Message) Outcome {
	if r.closed || (m.ConversationID != "" && m.ConversationID != r.conversationID) {
		r.logger.Debug("stale delivery dropped",
			zap.String("server_id", m.ServerID),
			zap.String("correlation_id", m.CorrelationID),
			zap.String("target", m.ConversationID))
		return Stale
	}
	m.ConversationID = r.conversationID
	m.Status = transcript.StatusConfirmed
	m.Error = ""

	if r.store.HasServerID(m.ServerID) {
		r.absorb(m)
		return Duplicate
	}

	if m.CorrelationID != "" {
		if slot, ok := r.store.Find(transcript.MatchKey{CorrelationID: m.CorrelationID}); ok {
			switch {
			case slot.Status != transcript.StatusConfirmed || slot.ServerID == "" || slot.ServerID == m.ServerID:
				if r.store.Replace(transcript.MatchKey{CorrelationID: m.CorrelationID}, m) {
					r.logger.Debug("pending confirmed",
						zap.String("server_id", m.ServerID),
						zap.String("correlation_id", m.CorrelationID))
					r.publish(bus.TranscriptReplaced, Change{Outcome: Replaced, Message: r.find(m.Key())})
					return Replaced
				}
			case m.ServerID == "":
				// An id-less repeat of a message that is already confirmed.
				return Duplicate
			default:
				// Another participant's client produced the same correlation
				// id. The slot keeps it; the newcomer is shown without one.
				r.logger.Warn("correlation id collision",
					zap.String("correlation_id", m.CorrelationID),
					zap.String("held_by", slot.ServerID),
					zap.String("server_id", m.ServerID))
				m.CorrelationID = ""
			}
		}
	}

	if prev, ok := r.store.FindSimilar(m); ok {
		r.logger.Debug("similar message discarded",
			zap.String("server_id", m.ServerID),
			zap.String("matched", prev.ServerID))
		return Similar
	}

	if !r.store.Append(m) {
		return Duplicate
	}
	r.publish(bus.TranscriptAppended, Change{Outcome: Appended, Message: r.find(m.Key())})
	return Appended
}

// absorb handles a server id that is already present while the message also
// carries a correlation id held by a different, still unconfirmed slot. This
// happens when history delivered the message before the confirm response:
// the history slot adopts the correlation id and the optimistic slot goes.
func (r *Reconciler) absorb(m transcript.Message) {
	if m.CorrelationID == "" {
		return
	}
	local, ok := r.store.Find(transcript.MatchKey{CorrelationID: m.CorrelationID})
	if !ok || local.ServerID == m.ServerID || local.Status == transcript.StatusConfirmed {
		return
	}
	held, _ := r.store.Find(transcript.MatchKey{ServerID: m.ServerID})
	if held.CorrelationID != "" {
		return
	}
	r.store.Remove(transcript.MatchKey{CorrelationID: m.CorrelationID})
	held.CorrelationID = m.CorrelationID
	r.store.Replace(transcript.MatchKey{ServerID: m.ServerID}, held)
	r.logger.Debug("pending absorbed by history",
		zap.String("server_id", m.ServerID),
		zap.String("correlation_id", m.CorrelationID))
	r.publish(bus.TranscriptReplaced, Change{Outcome: Replaced, Message: r.find(held.Key())})
}

// MarkFailed moves the pending entry correlationID to failed.
func (r *Reconciler) MarkFailed(correlationID string, reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || !r.store.MarkFailed(correlationID, reason) {
		return false
	}
	r.logger.Info("send failed",
		zap.String("correlation_id", correlationID),
		zap.String("error", reason))
	r.publish(bus.TranscriptFailed, Change{Message: r.find(transcript.MatchKey{CorrelationID: correlationID})})
	return true
}

// Dismiss removes a failed entry. Pending and confirmed entries stay.
func (r *Reconciler) Dismiss(correlationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := transcript.MatchKey{CorrelationID: correlationID}
	m, ok := r.store.Find(key)
	if r.closed || !ok || m.Status != transcript.StatusFailed {
		return false
	}
	r.store.Remove(key)
	metrics.TranscriptMessages.Set(float64(r.store.Len()))
	r.publish(bus.TranscriptDismissed, Change{Message: m})
	return true
}

// Seed replaces the transcript with a fresh history fetch. Pending and
// failed sends the history does not contain are carried over after it in
// their previous order. A confirmed live arrival missing from the history
// is carried only when it is newer than every history entry; an older one
// fell out of the history window and is dropped, since re-appending it
// would move it out of order.
func (r *Reconciler) Seed(history []transcript.Message) SeedResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return SeedResult{}
	}

	local := r.store.SinceSeed()
	msgs := make([]transcript.Message, 0, len(history))
	for _, m := range history {
		if m.ConversationID != "" && m.ConversationID != r.conversationID {
			continue
		}
		m.ConversationID = r.conversationID
		m.Status = transcript.StatusConfirmed
		msgs = append(msgs, m)
	}
	r.store.Seed(msgs)
	res := SeedResult{Seeded: r.store.Len()}
	newest := newestCreated(msgs)

	for _, l := range local {
		if r.store.HasServerID(l.ServerID) {
			r.adopt(l)
			continue
		}
		confirmed := l.Status == transcript.StatusConfirmed
		if confirmed && len(msgs) > 0 && !l.CreatedAt.After(newest) {
			res.Dropped++
			continue
		}
		if r.store.HasCorrelationID(l.CorrelationID) {
			if !confirmed || l.ServerID == "" {
				continue
			}
			l.CorrelationID = ""
		}
		if confirmed {
			if _, ok := r.store.FindSimilar(l); ok {
				continue
			}
		}
		if r.store.Append(l) {
			res.Carried++
		}
	}

	metrics.TranscriptMessages.Set(float64(r.store.Len()))
	r.logger.Info("transcript seeded",
		zap.Int("history", res.Seeded),
		zap.Int("carried", res.Carried),
		zap.Int("dropped", res.Dropped))
	r.publish(bus.TranscriptSeeded, Change{Messages: r.store.Snapshot()})
	return res
}

func newestCreated(msgs []transcript.Message) time.Time {
	var newest time.Time
	for _, m := range msgs {
		if m.CreatedAt.After(newest) {
			newest = m.CreatedAt
		}
	}
	return newest
}

// adopt copies the correlation id of a confirmed local entry onto the
// history slot holding the same server id.
func (r *Reconciler) adopt(l transcript.Message) {
	if l.CorrelationID == "" || r.store.HasCorrelationID(l.CorrelationID) {
		return
	}
	key := transcript.MatchKey{ServerID: l.ServerID}
	held, _ := r.store.Find(key)
	if held.CorrelationID != "" {
		return
	}
	held.CorrelationID = l.CorrelationID
	r.store.Replace(key, held)
}

// Find returns the entry selected by key.
func (r *Reconciler) Find(key transcript.MatchKey) (transcript.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Find(key)
}

// Snapshot returns the ordered transcript.
func (r *Reconciler) Snapshot() []transcript.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Snapshot()
}

// Close stops accepting deliveries. Late calls report Stale or false.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *Reconciler) find(key transcript.MatchKey) transcript.Message {
	m, _ := r.store.Find(key)
	return m
}

func (r *Reconciler) publish(kind string, c Change) {
	c.ConversationID = r.conversationID
	r.bus.Emit(kind, c)
}
