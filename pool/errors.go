package pool

import "errors"

// ErrAcquisitionTimeout is returned by Checkout when no Connection
// became available within the deadline, whether because waiters
// saturated the endpoint or because creating a new Connection failed.
// The original cause, if any, is chained with %w alongside this
// sentinel and recoverable via errors.Is/errors.As (errors.Unwrap
// returns nil for such a multi-wrapped error).
var ErrAcquisitionTimeout = errors.New("pool: acquisition timeout")

// ErrInvalidArgument is returned by Checkin/Destroy when the supplied
// Connection does not belong to the pool it was given to, or by
// Destroy when the Connection is not currently in the active queue.
// It indicates a caller bug, not a transient pool condition.
var ErrInvalidArgument = errors.New("pool: invalid argument")
