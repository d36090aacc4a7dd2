package gateway

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned by operations no wire protocol implements.
var ErrUnsupported = errors.New("operation not supported by this gateway")

// WireError reports a non-success upstream HTTP status. The raw response body
// is kept verbatim for diagnosis. The gateway never retries internally.
type WireError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *WireError) Error() string {
	return fmt.Sprintf("upstream returned %s: %s", e.Status, e.Body)
}
