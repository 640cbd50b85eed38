package lagrangian

import "errors"

var (
	// ErrDuplicateName reports a manager or quantity name collision,
	// including collisions with the reserved quantity names.
	ErrDuplicateName = errors.New("duplicate name")

	// ErrPrecondition reports an out-of-order protocol call, such as
	// ending a redistribution that was never begun.
	ErrPrecondition = errors.New("precondition violated")

	// ErrStaleIndex reports use of data or handles obtained before the
	// last distribution rebuild.
	ErrStaleIndex = errors.New("stale index map")

	// ErrUnknownKernel reports an unrecognized weighting-function name.
	ErrUnknownKernel = errors.New("unknown weighting function")

	// ErrUnknownStructure reports a mutating operation on a structure ID
	// that is not registered. Queries return sentinels instead.
	ErrUnknownStructure = errors.New("unknown structure")

	// ErrVersionMismatch reports persisted state written by an
	// incompatible version.
	ErrVersionMismatch = errors.New("restart version mismatch")
)
