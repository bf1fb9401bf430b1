package core

import (
	"github.com/pkg/errors"
)

// BasicError is a domain rule violation reported to clients as `{msg, detail?, redirect_url?}`.
type BasicError struct {
	Msg         string `json:"msg"`
	Detail      string `json:"detail,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

func NewBasicError(msg string, detail ...string) error {
	err := &BasicError{Msg: msg}
	if len(detail) > 0 {
		err.Detail = detail[0]
	}
	return err
}

func (err BasicError) Error() string {
	if err.Detail != "" {
		return err.Msg + ": " + err.Detail
	}
	return err.Msg
}

// NotFoundError is returned when the requested entity does not exist.
type NotFoundError struct {
	Entity string
}

func NewNotFoundError(entity string) error {
	return &NotFoundError{Entity: entity}
}

func (err NotFoundError) Error() string {
	return err.Entity + " not found"
}

func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return "invalid input"
	}
	return err.Err.Error()
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
