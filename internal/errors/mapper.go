package errors

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

// Map converts service/repo errors into gRPC-friendly status errors.
// Keeps service layer clean by centralizing error mapping.
func Map(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var e *Error
	if errors.As(err, &e) {
		return status.Error(codeFor(e.Kind), e.Error())
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return status.Error(codes.NotFound, "record not found")

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request was canceled")

	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func codeFor(k Kind) codes.Code {
	switch k {
	case KindConflict:
		return codes.FailedPrecondition
	case KindNotFound:
		return codes.NotFound
	case KindUnauthorized:
		return codes.PermissionDenied
	case KindTransient:
		return codes.Unavailable
	case KindInvalid:
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}

// InvalidArgument creates a gRPC InvalidArgument error.
// Use this in the transport layer for malformed requests.
func InvalidArgument(msg string) error {
	return status.Error(codes.InvalidArgument, msg)
}
