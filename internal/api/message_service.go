package api

import (
	"context"

	"github.com/matheus3301/sbc/internal/rpc"
	"github.com/matheus3301/sbc/internal/store"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func (s *ChatService) Send(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := s.active(rpc.Str(req, "conversation"))
	if err != nil {
		return nil, err
	}
	corr, err := c.Send(rpc.Str(req, "text"))
	if err != nil {
		return nil, toStatus("send", err)
	}
	return rpc.Fields{"correlation_id": corr, "conversation": c.ID()}.Struct(), nil
}

func (s *ChatService) SendFile(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := s.active(rpc.Str(req, "conversation"))
	if err != nil {
		return nil, err
	}
	path := rpc.Str(req, "path")
	if path == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "path is required")
	}
	corr, err := c.SendFile(path)
	if err != nil {
		return nil, toStatus("send file", err)
	}
	return rpc.Fields{"correlation_id": corr, "conversation": c.ID()}.Struct(), nil
}

func (s *ChatService) Retry(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := s.active("")
	if err != nil {
		return nil, err
	}
	corr, err := c.Retry(rpc.Str(req, "correlation_id"))
	if err != nil {
		return nil, toStatus("retry", err)
	}
	return rpc.Fields{"correlation_id": corr, "conversation": c.ID()}.Struct(), nil
}

func (s *ChatService) Dismiss(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := s.active("")
	if err != nil {
		return nil, err
	}
	if err := c.Dismiss(rpc.Str(req, "correlation_id")); err != nil {
		return nil, toStatus("dismiss", err)
	}
	return &structpb.Struct{}, nil
}

func (s *ChatService) Search(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.db == nil {
		return nil, grpcstatus.Error(codes.Unavailable, "cache not initialized")
	}
	query := rpc.Str(req, "query")
	if query == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "query is required")
	}
	limit := int(rpc.Int(req, "limit"))
	if limit <= 0 {
		limit = 50
	}

	results, err := s.db.SearchMessages(query, rpc.Str(req, "conversation"), limit)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "search messages: %v", err)
	}

	out := make([]*structpb.Struct, 0, len(results))
	for _, r := range results {
		out = append(out, rpc.Fields{
			"message": rpc.MessageStruct(r.Message),
			"snippet": r.Snippet,
		}.Struct())
	}
	return rpc.Fields{
		"results":  out,
		"has_more": len(results) == limit,
	}.Struct(), nil
}

func (s *ChatService) ListOutbox(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.db == nil {
		return nil, grpcstatus.Error(codes.Unavailable, "cache not initialized")
	}
	entries, err := s.db.ListOutbox(rpc.Str(req, "conversation"), rpc.Str(req, "status"), int(rpc.Int(req, "limit")))
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "list outbox: %v", err)
	}
	return rpc.Fields{"entries": outboxToStruct(entries)}.Struct(), nil
}

func outboxToStruct(entries []store.OutboxEntry) []*structpb.Struct {
	out := make([]*structpb.Struct, 0, len(entries))
	for _, e := range entries {
		out = append(out, rpc.Fields{
			"correlation_id":     e.CorrelationID,
			"conversation":       e.ConversationID,
			"content":            e.Content.Encode(),
			"preview":            e.Content.Preview(),
			"status":             e.Status,
			"error":              e.ErrorMessage,
			"server_id":          e.ServerID,
			"created_at_unix_ms": e.CreatedAt,
			"updated_at_unix_ms": e.UpdatedAt,
		}.Struct())
	}
	return out
}
