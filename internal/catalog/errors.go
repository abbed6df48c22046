// internal/catalog/errors.go
package catalog

import "errors"

var (
	ErrDuplicateID   = errors.New("duplicate id")
	ErrNoCapacity    = errors.New("no free slot in storage")
	ErrUnknownBook   = errors.New("copy references unknown book")
	ErrCopyNotFound  = errors.New("copy not found")
	ErrInvalidStatus = errors.New("invalid copy status")
	ErrInvalidInput  = errors.New("invalid input")
)
