package bus

import "time"

// Event kinds. The text before the first dot is the namespace subscribers
// filter on.
const (
	TranscriptPending   = "transcript.pending"
	TranscriptAppended  = "transcript.appended"
	TranscriptReplaced  = "transcript.replaced"
	TranscriptFailed    = "transcript.failed"
	TranscriptDismissed = "transcript.dismissed"
	TranscriptSeeded    = "transcript.seeded"

	ConversationOpened        = "conversation.opened"
	ConversationClosed        = "conversation.closed"
	ConversationStatusChanged = "conversation.status_changed"

	FeedConnected    = "feed.connected"
	FeedDisconnected = "feed.disconnected"

	WatchStarted = "watch.started"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Namespace returns the kind up to and including the first dot.
func (e Event) Namespace() string {
	for i := 0; i < len(e.Kind); i++ {
		if e.Kind[i] == '.' {
			return e.Kind[:i+1]
		}
	}
	return e.Kind
}
