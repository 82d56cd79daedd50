package overlay

import (
	"context"

	"github.com/marchfour/regionlens/page"
)

// Host is the environment adapter to the live page. The browser package
// implements it over a Chrome tab; tests implement it over fixtures.
//
// Hosts never interpret the overlay: they read location and markup, and
// replay the reversible ops the engine already applied to its mirror.
type Host interface {
	// Location returns the current location URL.
	Location(ctx context.Context) (string, error)

	// Snapshot serialises the current page as HTML.
	Snapshot(ctx context.Context) (string, error)

	// Apply replays ops on the live page, in order.
	Apply(ctx context.Context, ops []page.Op) error

	// HookNavigation installs wrap-and-forward interception of the
	// history mutation entry points and the back/forward signal. The
	// original behavior must be preserved; notify fires afterwards.
	HookNavigation(ctx context.Context, notify func()) error

	// OnFragmentClick installs a click binding on rendered diff
	// fragments; fn receives the fragment's literal text.
	OnFragmentClick(ctx context.Context, fn func(fragment string)) error
}
