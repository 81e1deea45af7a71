package ledger

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes ledger errors.
type ErrorCode string

const (
	// CodeRead: the store is unreadable or a table is absent.
	CodeRead ErrorCode = "READ_ERROR"

	// CodeWrite: persisting failed; the operation's writes were not applied.
	CodeWrite ErrorCode = "WRITE_ERROR"

	// CodeDuplicateKey: an insert would violate key uniqueness.
	CodeDuplicateKey ErrorCode = "DUPLICATE_KEY"

	// CodeUnknownItem: a referenced key or row does not exist.
	CodeUnknownItem ErrorCode = "UNKNOWN_ITEM"

	// CodeValidation: a required field is missing or out of range.
	CodeValidation ErrorCode = "VALIDATION_ERROR"
)

// Error is returned by every Store operation.
type Error struct {
	Code    ErrorCode
	Table   string
	Key     string
	Message string
	Err     error
}

// Sentinels for errors.Is; they match any *Error with the same code.
var (
	ErrRead         = &Error{Code: CodeRead}
	ErrWrite        = &Error{Code: CodeWrite}
	ErrDuplicateKey = &Error{Code: CodeDuplicateKey}
	ErrUnknownItem  = &Error{Code: CodeUnknownItem}
	ErrValidation   = &Error{Code: CodeValidation}
)

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Table != "" {
		msg += fmt.Sprintf(" (table=%s)", e.Table)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on the error code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// CodeOf extracts the ledger code from err, "" when err is not a ledger error.
func CodeOf(err error) ErrorCode {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

func IsUnknownItem(err error) bool  { return errors.Is(err, ErrUnknownItem) }
func IsDuplicateKey(err error) bool { return errors.Is(err, ErrDuplicateKey) }
func IsValidation(err error) bool   { return errors.Is(err, ErrValidation) }

func readError(table string, err error) *Error {
	return &Error{Code: CodeRead, Table: table, Message: "read failed", Err: err}
}

func writeError(table string, err error) *Error {
	return &Error{Code: CodeWrite, Table: table, Message: "write failed", Err: err}
}

func duplicateKey(table, key string) *Error {
	return &Error{Code: CodeDuplicateKey, Table: table, Key: key, Message: fmt.Sprintf("%q already exists", key)}
}

func unknownItem(table, key string) *Error {
	return &Error{Code: CodeUnknownItem, Table: table, Key: key, Message: fmt.Sprintf("%q not found", key)}
}

func validation(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}
