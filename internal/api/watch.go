package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/sbc/internal/bus"
	"github.com/matheus3301/sbc/internal/reconcile"
	"github.com/matheus3301/sbc/internal/rpc"
	"github.com/matheus3301/sbc/internal/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Watch streams bus events. The request may narrow them by "namespace"
// (an event kind prefix) and "conversation". The first event is always
// "watch.started", sent once the subscription is in place.
func (s *ChatService) Watch(req *structpb.Struct, stream rpc.ChatService_WatchServer) error {
	namespace := rpc.Str(req, "namespace")
	only := rpc.Str(req, "conversation")

	ch, unsub := s.bus.Subscribe(namespace, 256)
	defer unsub()

	if err := stream.Send(s.eventToStruct(bus.Event{
		Kind:      bus.WatchStarted,
		Timestamp: time.Now(),
		Payload:   map[string]string{"conversation": only},
	})); err != nil {
		return err
	}

	for {
		select {
		case evt := <-ch:
			out := s.eventToStruct(evt)
			if only != "" && rpc.Str(out, "conversation") != only {
				continue
			}
			if err := stream.Send(out); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func (s *ChatService) eventToStruct(evt bus.Event) *structpb.Struct {
	f := rpc.Fields{
		"event_id":            uuid.New().String(),
		"profile":             s.opts.Profile,
		"kind":                evt.Kind,
		"occurred_at_unix_ms": evt.Timestamp.UnixMilli(),
		"payload_version":     1,
	}
	switch p := evt.Payload.(type) {
	case reconcile.Change:
		f["conversation"] = p.ConversationID
		if p.Outcome != "" {
			f["outcome"] = string(p.Outcome)
		}
		if p.Message.ServerID != "" || p.Message.CorrelationID != "" {
			f["message"] = rpc.MessageStruct(p.Message)
		}
		if p.Messages != nil {
			f["count"] = len(p.Messages)
		}
	case status.StatusChange:
		f["conversation"] = p.ConversationID
		f["from"] = string(p.From)
		f["to"] = string(p.To)
	case map[string]string:
		f["conversation"] = p["conversation"]
	}
	return f.Struct()
}
