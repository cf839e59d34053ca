package engine

import "errors"

// ErrUnknownRoute is returned when a selection names an asset with no drawn
// route.
var ErrUnknownRoute = errors.New("unknown route")
