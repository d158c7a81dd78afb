package iap

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotAvailable is reported by every operation when the last
	// availability check did not succeed. The backend is never contacted.
	ErrNotAvailable = errors.New("iap not available")

	ErrNilProduct           = errors.New("product is required")
	ErrMissingPurchaseToken = errors.New("purchase data has no purchase token")

	errNilSession = errors.New("backend returned no session")
	errNilIntent  = errors.New("backend returned no purchase intent")
	errNilResult  = errors.New("purchase payload could not be parsed")
)

// StatusError is the failure reported by BuyProduct when a purchase resolved
// with anything other than StatusSuccess.
type StatusError struct {
	Code   StatusCode
	Result *PurchaseResult
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("purchase resolved with status %s", e.Code)
}

// StatusCodeOf returns the status code carried by err, if any.
func StatusCodeOf(err error) (StatusCode, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code, true
	}
	return 0, false
}
