package catalog

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/wishlistapp/catalog-server/internal/domain"
)

// Sentinel errors for catalog API operations.
var (
	ErrNotFound      = errors.New("catalog: item not found")
	ErrRateLimited   = errors.New("catalog: rate limited by server")
	ErrBadRequest    = errors.New("catalog: bad request")
	ErrServer        = errors.New("catalog: server error")
	ErrBatchTooLarge = errors.New("catalog: batch exceeds maximum size")
	ErrNoCredentials = errors.New("catalog: credentials not configured")
	ErrEmptyBatch    = errors.New("catalog: no item ids")
)

// maxErrorBody caps how much of an error response is kept on APIError.
const maxErrorBody = 2048

// APIError is returned for any non-2xx response from the catalog API.
// Callers decide whether and when to retry.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("catalog api: status %d: %s", e.Status, e.Body)
}

// Unwrap maps well-known statuses to the package sentinels so callers can
// use errors.Is(err, ErrRateLimited) and friends.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Status == http.StatusBadRequest:
		return ErrBadRequest
	case e.Status >= 500:
		return ErrServer
	default:
		return nil
	}
}

func newAPIError(status int, body []byte) *APIError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &APIError{Status: status, Body: string(body)}
}

// Error wraps an underlying error with operation context.
type Error struct {
	Op   string // Operation: "getItems", "fetch"
	ASIN domain.Identifier
	Err  error
}

func (e *Error) Error() string {
	if e.ASIN != "" {
		return fmt.Sprintf("catalog %s [%s]: %v", e.Op, e.ASIN, e.Err)
	}
	return fmt.Sprintf("catalog %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrapError(op string, asin domain.Identifier, err error) error {
	return &Error{Op: op, ASIN: asin, Err: err}
}
