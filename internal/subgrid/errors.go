package subgrid

import "errors"

var (
	// ErrInvalidDimensions is returned for non-positive cell counts or cell size.
	ErrInvalidDimensions = errors.New("subgrid dimensions must be positive")
	// ErrMasterMissing is returned when a master reference does not resolve.
	ErrMasterMissing = errors.New("subgrid master not found")
	// ErrObjectMissing is returned when an object reference does not resolve.
	ErrObjectMissing = errors.New("object not found on scene")
	// ErrFrameDestroyed is returned by mutations on a destroyed subgrid.
	ErrFrameDestroyed = errors.New("subgrid destroyed")
	// ErrNoMaster is returned by operations that need an active subgrid.
	ErrNoMaster = errors.New("subgrid has no master")
)
