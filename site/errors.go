package site

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is reported for requests no route answers.
	ErrNotFound = errors.New("the page you requested does not exist")
	// ErrInvalidPath is returned when a route definition fails validation.
	ErrInvalidPath = errors.New("invalid path")
)

// StatusError attaches an HTTP status to an error.
type StatusError struct {
	Status int
	Err    error
}

// WithStatus wraps err with the given HTTP status.
func WithStatus(status int, err error) error {
	if err == nil {
		return nil
	}
	return &StatusError{Status: status, Err: err}
}

func (e *StatusError) Error() string {
	return e.Err.Error()
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// StatusOf returns the HTTP status for err, defaulting to 500.
func StatusOf(err error) int {
	var se *StatusError
	switch {
	case errors.As(err, &se) && se.Status > 0:
		return se.Status
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// NotFound reports that path has no route.
func NotFound(path string) error {
	return WithStatus(http.StatusNotFound, fmt.Errorf("%w: %s", ErrNotFound, path))
}
