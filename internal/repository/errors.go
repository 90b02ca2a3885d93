// Package repository defines the MySQL persistence layer and the error
// values shared across its repositories.  Higher layers match these
// sentinels with errors.Is to distinguish retryable races from
// user-facing failures.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrScheduleNotFound is returned when no schedule row exists for the
// requested (date, time slot) or id.
var ErrScheduleNotFound = errors.New("schedule not found")

// ErrDuplicateSchedule is returned by ScheduleRepo.Create when another
// caller created the same (date, time slot) first.  Callers re-fetch the
// existing row.
var ErrDuplicateSchedule = errors.New("schedule already exists")

// ErrSeatUnavailable is returned when a schedule has no free seats left.
var ErrSeatUnavailable = errors.New("no seats available on schedule")

// ErrSeatAlreadyTaken is returned when the requested seat number is
// already occupied.  It signals a lost race, not a user error.
var ErrSeatAlreadyTaken = errors.New("seat already taken")

// ErrBookingNotFound is returned when no booking matches the lookup.
var ErrBookingNotFound = errors.New("booking not found")

// ErrDuplicateBookingCode is returned when a generated booking code
// collides with an existing one.  Callers regenerate and retry.
var ErrDuplicateBookingCode = errors.New("duplicate booking code")

// ErrNoRowsChanged is returned by conditional updates whose WHERE clause
// matched nothing, typically because the row left the expected state.
var ErrNoRowsChanged = errors.New("no rows changed")

// ErrEmailExists is returned when registering an email that is taken.
var ErrEmailExists = errors.New("email already exists")

const mysqlDuplicateEntry = 1062

// duplicateKey reports whether err is a MySQL duplicate-entry error and,
// if so, the name of the violated key as it appears in the message.
func duplicateKey(err error) (string, bool) {
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != mysqlDuplicateEntry {
		return "", false
	}
	msg := me.Message
	if i := strings.LastIndex(msg, "for key '"); i >= 0 {
		key := strings.TrimSuffix(msg[i+len("for key '"):], "'")
		// MySQL 8 prefixes the key with the table name.
		if j := strings.LastIndex(key, "."); j >= 0 {
			key = key[j+1:]
		}
		return key, true
	}
	return "", true
}
