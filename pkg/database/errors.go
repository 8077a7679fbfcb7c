package database

import (
	"github.com/lib/pq"
)

// pq error code raised by FOR UPDATE NOWAIT when a row is already locked
const lockNotAvailable = pq.ErrorCode("55P03")

// IsLockNotAvailable reports whether the error came from a row lock that
// could not be acquired without waiting
func IsLockNotAvailable(err error) bool {
	if err == nil {
		return false
	}
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == lockNotAvailable
	}
	return false
}
