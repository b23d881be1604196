package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers
// return these (optionally wrapped) so services can translate them into domain
// errors:
//   - ErrUnavailable: a backend could not be reached or failed mid-operation
//   - ErrClosed: the component has been shut down
//
// For validation errors (bad input, missing fields), use pkg/domain-errors
// directly.
var (
	ErrUnavailable = errors.New("unavailable")
	ErrClosed      = errors.New("closed")
)
