package api

import (
	"errors"
	"net/http"

	"hostelpay/internal/database"
	"hostelpay/internal/gateway"
	"hostelpay/internal/payment"
	"hostelpay/internal/service"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	errUnauthenticated  = errors.New("unauthenticated")
	errPermissionDenied = errors.New("permission denied")
	errRateLimited      = errors.New("rate limit exceeded")
)

// httpStatus maps a service error onto the response code of the payment API.
func httpStatus(err error) int {
	var verr *payment.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, service.ErrUnknownStatus),
		errors.Is(err, service.ErrAmountMismatch),
		errors.Is(err, gateway.ErrUnsupportedNetwork):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrNotFound),
		errors.Is(err, database.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, database.ErrAttemptInProgress),
		errors.Is(err, database.ErrRoomUnavailable),
		errors.Is(err, database.ErrAlreadyResolved),
		errors.Is(err, database.ErrConcurrentModification),
		errors.Is(err, payment.ErrInvalidTransition),
		errors.Is(err, payment.ErrAlreadyPaid):
		return http.StatusConflict
	case errors.Is(err, service.ErrRateLimited), errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, errUnauthenticated), errors.Is(err, gateway.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, errPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, gateway.ErrRejected), errors.Is(err, gateway.ErrUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides internal failures from API clients.
func publicMessage(err error, code int) string {
	if code == http.StatusInternalServerError {
		return "internal error"
	}
	var verr *payment.ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}
	return err.Error()
}

func grpcError(err error) error {
	code := httpStatus(err)
	var c codes.Code
	switch code {
	case http.StatusBadRequest:
		c = codes.InvalidArgument
	case http.StatusNotFound:
		c = codes.NotFound
	case http.StatusConflict:
		c = codes.FailedPrecondition
	case http.StatusTooManyRequests:
		c = codes.ResourceExhausted
	case http.StatusUnauthorized:
		c = codes.Unauthenticated
	case http.StatusForbidden:
		c = codes.PermissionDenied
	case http.StatusBadGateway:
		c = codes.Unavailable
	default:
		c = codes.Internal
	}
	return status.Error(c, publicMessage(err, code))
}
