package errors

import "errors"

// ErrOptimisticLock the row was modified by another operation since it was read.
var ErrOptimisticLock = errors.New("record was modified concurrently, reload and retry")

// ErrLockTimeout a row lock could not be acquired within the configured lock_timeout.
var ErrLockTimeout = errors.New("timed out waiting for a row lock")
