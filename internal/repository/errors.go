package repository

import "errors"

// ErrStateConflict is returned when a settlement is no longer in the state a transition expected.
var ErrStateConflict = errors.New("settlement state changed concurrently")
