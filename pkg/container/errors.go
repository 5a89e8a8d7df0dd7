package container

import (
	"errors"
	"fmt"
)

// Container error types
var (
	ErrNotConfigured     = errors.New("container has no application descriptor")
	ErrAlreadyConfigured = errors.New("container already configured with a different descriptor")
	ErrNotReady          = errors.New("container application is not ready")
	ErrBootstrapFailed   = errors.New("container bootstrap failed")
	ErrInvocationTimeout = errors.New("invocation timed out waiting for the response")
	ErrMalformedInput    = errors.New("malformed invocation event")
	ErrResponseFinished  = errors.New("response already finished")
	ErrAsyncUnavailable  = errors.New("request was not dispatched by the container")
	ErrAsyncStarted      = errors.New("async processing already started")
)

// ApplicationError wraps a failure raised by the backing application while
// it was processing a request
type ApplicationError struct {
	Method string      // HTTP method of the request being served
	Path   string      // URL path of the request being served
	Err    error       // Underlying error
	Panic  interface{} // Recovered panic value, nil for returned errors
}

func (e *ApplicationError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("application panicked serving %s %s: %v", e.Method, e.Path, e.Panic)
	}
	return fmt.Sprintf("application failed serving %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *ApplicationError) Unwrap() error {
	return e.Err
}

// NewApplicationError creates a new ApplicationError from a returned error
func NewApplicationError(method, path string, err error) *ApplicationError {
	return &ApplicationError{
		Method: method,
		Path:   path,
		Err:    err,
	}
}

// newPanicError turns a recovered panic value into an ApplicationError
func newPanicError(method, path string, recovered interface{}) *ApplicationError {
	err, ok := recovered.(error)
	if !ok {
		err = fmt.Errorf("%v", recovered)
	}
	return &ApplicationError{
		Method: method,
		Path:   path,
		Err:    err,
		Panic:  recovered,
	}
}

// IsApplicationError returns true if err was raised by the backing application
func IsApplicationError(err error) bool {
	var appErr *ApplicationError
	return errors.As(err, &appErr)
}

// IsTimeout returns true if the invocation gave up waiting for the response
func IsTimeout(err error) bool {
	return errors.Is(err, ErrInvocationTimeout)
}

// IsMalformedInput returns true if the event could not be read into a request
func IsMalformedInput(err error) bool {
	return errors.Is(err, ErrMalformedInput)
}

// IsContainerError returns true for failures of the container itself, as
// opposed to failures of the application it hosts
func IsContainerError(err error) bool {
	return errors.Is(err, ErrNotConfigured) ||
		errors.Is(err, ErrAlreadyConfigured) ||
		errors.Is(err, ErrNotReady) ||
		errors.Is(err, ErrBootstrapFailed)
}
