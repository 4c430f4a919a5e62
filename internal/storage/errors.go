package storage

import (
	"database/sql/driver"
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a lookup matches nothing
	ErrNotFound = errors.New("record not found")
	// ErrConditionFailed is returned when a conditional write finds the key already taken.
	// It is an expected outcome and never retried.
	ErrConditionFailed = errors.New("conditional check failed")
)

// transient driver messages worth another attempt
var retryableMessages = []string{
	"database is locked",
	"database table is locked",
	"sqlite_busy",
	"deadlock",
	"could not serialize access",
	"lock wait timeout exceeded",
	"too many connections",
	"connection reset by peer",
	"broken pipe",
}

var duplicateMessages = []string{
	"unique constraint",
	"duplicate key",
	"duplicate entry",
}

// translate maps driver errors onto the package taxonomy
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrConditionFailed
	}
	msg := strings.ToLower(err.Error())
	for _, m := range duplicateMessages {
		if strings.Contains(msg, m) {
			return ErrConditionFailed
		}
	}
	return err
}

// retryable reports whether err is a throttling or contention error.
// Expected outcomes are never retryable.
func retryable(err error) bool {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConditionFailed) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range retryableMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
