package eventstream

import "errors"

// ErrNilMutationEvent indicates a nil mutation event was provided to a publisher.
var ErrNilMutationEvent = errors.New("nil mutation event")
