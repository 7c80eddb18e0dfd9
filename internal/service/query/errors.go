package query

import (
	"errors"
)

var (
	ErrEventNotFound    = errors.New("event not found")
	ErrStoreUnavailable = errors.New("reservation store unavailable")
)
