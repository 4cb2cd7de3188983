// Package renderer hides the media-renderer transport behind a small
// volume-control surface. The control loop never sees which backend is in
// use.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when discovery cannot locate the named device.
// It maps to exit code 3.
var ErrNotFound = errors.New("renderer: device not found")

// ErrUnreachable marks a transient transport failure; the controller
// retries these and degrades after repeated hits.
var ErrUnreachable = errors.New("renderer: unreachable")

// CommandTimeout bounds every transport call. Volume commands ride the
// control loop's tick cadence, so a hung socket must fail fast.
const CommandTimeout = 2 * time.Second

// Control is the capability surface the volume controller drives.
// SetVolume is idempotent on the device side; repeated identical values
// may be coalesced by the backend.
type Control interface {
	GetVolume(ctx context.Context) (int, error)
	SetVolume(ctx context.Context, volume int) error
	Close() error
}

// Backend names which transport was selected at construction time.
type Backend string

const (
	BackendCast Backend = "cast"
	BackendCatt Backend = "catt"
)

// Discover locates the named device, preferring the persistent CASTV2
// connection and falling back to the catt CLI when the library transport
// cannot connect. Each call selects afresh, so a reconnect that calls
// Discover again may land on the other backend.
func Discover(ctx context.Context, name string) (Control, Backend, error) {
	cast, castErr := discoverCast(ctx, name)
	if castErr == nil {
		return cast, BackendCast, nil
	}

	catt, cattErr := discoverCatt(ctx, name)
	if cattErr == nil {
		return catt, BackendCatt, nil
	}

	return nil, "", fmt.Errorf("%w: %q (cast: %v; catt: %v)", ErrNotFound, name, castErr, cattErr)
}

// callWithTimeout runs fn under CommandTimeout layered onto ctx. The
// transport libraries do not take contexts themselves, so a timed-out call
// is abandoned to finish in the background while the controller moves on.
func callWithTimeout(ctx context.Context, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, CommandTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrUnreachable, ctx.Err())
	}
}
