package broadcaster

import "github.com/pkg/errors"

// Failures recovered inside the broadcast loop. None of them leave the package.
var (
	ErrEmptyCatalog = errors.New("catalog is empty")
	ErrTrackMissing = errors.New("track missing")
	ErrTrackRead    = errors.New("track read failed")
)

// Failures recovered by tearing down the affected listener session.
var (
	ErrListenerWrite       = errors.New("listener write failed")
	ErrListenerJoinTimeout = errors.New("timed out waiting for a live track")
)

var (
	ErrInvalidOrder = errors.New("invalid playlist order")
	ErrTeeClosed    = errors.New("tee closed")
)
