package handler

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// errorKinds maps domain errors to transport statuses, first match wins.
var errorKinds = []struct {
	err     error
	status  int
	code    codes.Code
	message string
}{
	{domain.ErrNotFound, http.StatusNotFound, codes.NotFound, "not found"},
	{domain.ErrDuplicate, http.StatusConflict, codes.AlreadyExists, "duplicate"},
	{domain.ErrAlreadyExists, http.StatusConflict, codes.AlreadyExists, "already exists"},
	{domain.ErrProtectedReference, http.StatusConflict, codes.FailedPrecondition, "protected reference"},
	{domain.ErrInsufficientOrderQuantity, http.StatusConflict, codes.FailedPrecondition, "insufficient order quantity"},
	{domain.ErrOutOfStock, http.StatusGone, codes.FailedPrecondition, "sold out"},
	{domain.ErrInsufficientStock, http.StatusConflict, codes.FailedPrecondition, "insufficient stock"},
	{domain.ErrInvalidArgument, http.StatusBadRequest, codes.InvalidArgument, "invalid argument"},
	{domain.ErrContention, http.StatusServiceUnavailable, codes.Aborted, "contention, retry later"},
}

func httpStatus(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.status, k.message
		}
	}
	return http.StatusInternalServerError, "internal error"
}

func grpcCode(err error) codes.Code {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}
	return codes.Internal
}
