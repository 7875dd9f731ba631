package reconcile

import "errors"

// Promotion rejections. Each maps to a domain.RejectReason on the Result.
var (
	ErrAlreadyPromoted = errors.New("reconcile: identifier already has a canonical product")
	ErrGroupEmpty      = errors.New("reconcile: no unpromoted submissions for identifier")
	ErrBelowThreshold  = errors.New("reconcile: not enough distinct users to promote")
	ErrNotPromoted     = errors.New("reconcile: identifier has no canonical product")
	ErrConflict        = errors.New("reconcile: group changed during promotion")
)

// IsRejection reports whether err is a policy rejection rather than a
// failure of the store or an external dependency.
func IsRejection(err error) bool {
	return errors.Is(err, ErrAlreadyPromoted) ||
		errors.Is(err, ErrGroupEmpty) ||
		errors.Is(err, ErrBelowThreshold) ||
		errors.Is(err, ErrNotPromoted)
}
