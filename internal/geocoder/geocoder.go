// Package geocoder talks to external forward-geocoding services.
//
// A Lookup asks for at most one candidate for a free-text query. The
// resolver treats every failure the same way (the token becomes a negative
// cache entry), so implementations only need to distinguish "no candidate"
// from transport and status errors for logging.
package geocoder

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

// ErrStatus is matched by errors reporting a non-success response.
var ErrStatus = errors.New("geocoder: unexpected response status")

// StatusError reports a non-2xx HTTP status or a provider error status.
type StatusError struct {
	Provider string
	Status   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("geocoder: %s returned %s", e.Provider, e.Status)
}

// Is makes StatusError match ErrStatus.
func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// Match is the single best candidate for a query.
type Match struct {
	Point     orb.Point
	PlaceName string
	Text      string
}

// Lookup resolves free text to at most one candidate. It returns false with
// a nil error when the service found nothing.
type Lookup interface {
	Lookup(ctx context.Context, query string) (Match, bool, error)
	Provider() string
}
