package service

import "errors"

// ErrInvalidArgument is returned by Schedule for malformed input. Unknown
// ids and conflicting states are normal negative results, not errors.
var ErrInvalidArgument = errors.New("invalid argument")
