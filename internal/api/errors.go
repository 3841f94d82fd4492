package api

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"slotbook/internal/domain"
)

const codeInternal = "INTERNAL"

var (
	errUnauthenticated  = errors.New("unauthenticated")
	errPermissionDenied = errors.New("permission denied")
	errRateLimited      = errors.New("rate limit exceeded")
)

// httpStatus maps a rejection reason onto a response status. Anything that
// is not a rejection is a 500.
func httpStatus(err error) (int, string) {
	reason, ok := domain.ReasonOf(err)
	if !ok {
		return http.StatusInternalServerError, codeInternal
	}
	switch reason {
	case domain.ReasonInvalidTimeFormat, domain.ReasonInvalidTimeRange, domain.ReasonInvalidArgument:
		return http.StatusBadRequest, string(reason)
	case domain.ReasonForbidden:
		return http.StatusForbidden, string(reason)
	case domain.ReasonNotFound:
		return http.StatusNotFound, string(reason)
	case domain.ReasonSlotAlreadyBooked, domain.ReasonAlreadyCancelled, domain.ReasonConcurrentModification,
		domain.ReasonAlreadyReviewed:
		return http.StatusConflict, string(reason)
	default:
		return http.StatusUnprocessableEntity, string(reason)
	}
}

func grpcError(err error) error {
	reason, ok := domain.ReasonOf(err)
	if !ok {
		return status.Error(codes.Internal, "internal error")
	}
	var code codes.Code
	switch reason {
	case domain.ReasonInvalidTimeFormat, domain.ReasonInvalidTimeRange, domain.ReasonInvalidArgument:
		code = codes.InvalidArgument
	case domain.ReasonForbidden:
		code = codes.PermissionDenied
	case domain.ReasonNotFound:
		code = codes.NotFound
	case domain.ReasonSlotAlreadyBooked, domain.ReasonAlreadyReviewed:
		code = codes.AlreadyExists
	case domain.ReasonAlreadyCancelled, domain.ReasonConcurrentModification:
		code = codes.Aborted
	default:
		code = codes.FailedPrecondition
	}
	return status.Error(code, err.Error())
}
