package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicateKey = errors.New("duplicate key")
)

// ActivationLimitError is returned by the activation store when inserting a
// new domain would exceed the license's activation ceiling.
type ActivationLimitError struct {
	Max int
}

func (e *ActivationLimitError) Error() string {
	return fmt.Sprintf("maximum activations reached (%d)", e.Max)
}

// ErrActivationLimitReached matches any *ActivationLimitError via errors.Is
var ErrActivationLimitReached = &ActivationLimitError{}

func (e *ActivationLimitError) Is(target error) bool {
	_, ok := target.(*ActivationLimitError)
	return ok
}
