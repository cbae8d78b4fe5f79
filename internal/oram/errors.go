package oram

import "errors"

var (
	ErrInvalidDepth      = errors.New("invalid tree depth")
	ErrOutOfRange        = errors.New("location out of range")
	ErrCapacityExceeded  = errors.New("more items than tree locations")
	ErrNoCapacity        = errors.New("no empty location available")
	ErrStashOverflow     = errors.New("stash overflow")
	ErrLocationInUse     = errors.New("location already mapped to another key")
	ErrDuplicateKey      = errors.New("duplicate key")
	ErrInvalidOp         = errors.New("invalid operation")
	ErrMalformedBucket   = errors.New("malformed bucket")
	ErrMalformedPayload  = errors.New("malformed payload")
	ErrTxDone            = errors.New("transaction already finished")
	ErrRollbackFailed    = errors.New("rollback failed")
	ErrInvalidBlockWidth = errors.New("invalid block width")
	ErrValueTooLarge     = errors.New("value too large")
)
