package handler

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/split-market/internal/core/domain"
)

type errorMapping struct {
	err    error
	status int
	code   codes.Code
}

var errorMappings = []errorMapping{
	{domain.ErrUnauthorized, http.StatusForbidden, codes.PermissionDenied},
	{domain.ErrNotFound, http.StatusNotFound, codes.NotFound},
	{domain.ErrInsufficientDeposit, http.StatusPaymentRequired, codes.FailedPrecondition},
	{domain.ErrInvalidInput, http.StatusBadRequest, codes.InvalidArgument},
	{domain.ErrDuplicateCallback, http.StatusConflict, codes.AlreadyExists},
	{domain.ErrExternalCallFailed, http.StatusBadGateway, codes.Unavailable},
	{domain.ErrNotListed, http.StatusConflict, codes.FailedPrecondition},
	{domain.ErrTransferPending, http.StatusConflict, codes.Aborted},
}

// httpError maps a domain error to a status and a client-safe message.
// Unknown errors are reported as internal without detail.
func httpError(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, err.Error()
		}
	}
	return http.StatusInternalServerError, "internal error"
}

func grpcError(err error) error {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return status.Error(m.code, err.Error())
		}
	}
	return status.Error(codes.Internal, "internal error")
}
