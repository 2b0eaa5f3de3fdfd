package calls

import (
	"errors"
	"fmt"
	"strings"
)

// Code is the failure taxonomy shared by the calls and signaling layers.
type Code string

const (
	CodeInvalidInput Code = "invalid_input"
	CodeAccessDenied Code = "access_denied"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeUpdateFailed Code = "update_failed"
)

// Error is a tagged failure. Expected conditions (duplicate call, bad status,
// terminal session) are reported with a Code; store failures are wrapped in Err
// under CodeUpdateFailed.
type Error struct {
	Code Code
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("calls: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Msg != "" {
		b.WriteString(e.Msg)
	} else {
		b.WriteString(string(e.Code))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Message is the client-facing text: Msg, or the code when there is none.
func (e *Error) Message() string {
	if e.Msg != "" {
		return e.Msg
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the bare sentinels below by code, so errors.Is(err, ErrConflict)
// holds for any conflict regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Msg != "" || t.Err != nil {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrInvalidInput = &Error{Code: CodeInvalidInput}
	ErrAccessDenied = &Error{Code: CodeAccessDenied}
	ErrNotFound     = &Error{Code: CodeNotFound}
	ErrConflict     = &Error{Code: CodeConflict}
	ErrUpdateFailed = &Error{Code: CodeUpdateFailed}
)

func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// StoreErr wraps a persistence failure as update_failed, leaving tagged errors intact.
func StoreErr(op string, err error) error {
	var tagged *Error
	if errors.As(err, &tagged) {
		return err
	}
	return &Error{Code: CodeUpdateFailed, Op: op, Msg: "store failure", Err: err}
}

// CodeOf maps any error to a taxonomy code. Untagged errors are store failures.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Code
	}
	return CodeUpdateFailed
}

// MessageOf is the client-facing text for err.
func MessageOf(err error) string {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Message()
	}
	return "internal error"
}
