package api

import (
	"errors"
	"io/fs"

	"github.com/matheus3301/sbc/internal/backend"
	"github.com/matheus3301/sbc/internal/conversation"
	"github.com/matheus3301/sbc/internal/outbox"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// toStatus maps domain errors to gRPC codes.
func toStatus(op string, err error) error {
	code := codes.Internal
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, conversation.ErrNoConversation):
		code = codes.FailedPrecondition
	case errors.Is(err, outbox.ErrEmptyMessage):
		code = codes.InvalidArgument
	case errors.Is(err, outbox.ErrClosed), errors.Is(err, outbox.ErrNotRetryable):
		code = codes.FailedPrecondition
	case errors.Is(err, outbox.ErrDuplicateCorrelation):
		code = codes.AlreadyExists
	case errors.Is(err, outbox.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		code = codes.NotFound
	case errors.Is(err, backend.ErrUnauthorized):
		code = codes.Unauthenticated
	case errors.As(err, &apiErr):
		code = codes.Unavailable
	}
	if op == "" {
		return grpcstatus.Error(code, err.Error())
	}
	return grpcstatus.Errorf(code, "%s: %v", op, err)
}
