package shared

import "errors"

// ErrNotFound is wrapped by every domain "unknown id" error so transports can
// map them without knowing each package.
var ErrNotFound = errors.New("not found")
