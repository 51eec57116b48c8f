package ndp

import "errors"

// Sentinel errors returned by Stack operations. Callers match them with
// errors.Is; the admin API maps each to a connect code.
var (
	// ErrNotFound indicates a lookup miss.
	ErrNotFound = errors.New("entry not found")

	// ErrTableFull indicates a fixed-size table has no usable slot.
	ErrTableFull = errors.New("table full")

	// ErrUnreachable indicates a router address that is not on-link for
	// the interface, or a destination with no next hop.
	ErrUnreachable = errors.New("destination unreachable")

	// ErrInvalidAddress indicates an address of the wrong type for the
	// operation (e.g., a multicast neighbor).
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidState indicates a neighbor state that cannot be set
	// directly.
	ErrInvalidState = errors.New("invalid neighbor state")

	// ErrDuplicate indicates an idempotent re-add. Callers treat it as
	// success.
	ErrDuplicate = errors.New("duplicate entry")

	// ErrDisabled indicates the operation needs Neighbor Discovery to be
	// enabled.
	ErrDisabled = errors.New("neighbor discovery disabled")

	// ErrInvalidInterface indicates an unknown interface index.
	ErrInvalidInterface = errors.New("unknown interface")
)
