package container

import (
	"context"
	"net/http"
)

// RequestReader turns an invocation event into the request the application
// reads from. It must build the request on the given ctx so invocation
// attributes stay reachable, and should wrap decoding failures in
// ErrMalformedInput.
type RequestReader[E any] interface {
	ReadRequest(ctx context.Context, event E) (*http.Request, error)
}

// ResponseWriter turns a finished container response into the invocation
// output. It is only called after the response has been completed.
type ResponseWriter[R any] interface {
	WriteResponse(ctx context.Context, resp *Response) (R, error)
}

// SecurityContextWriter extracts the caller identity from the event
type SecurityContextWriter[E any] interface {
	WriteSecurityContext(ctx context.Context, event E) (*Identity, error)
}

// ExceptionHandler turns any failure into an invocation output. It must
// always return a usable output.
type ExceptionHandler[R any] interface {
	HandleError(ctx context.Context, err error) R
}

// RequestReaderFunc adapts a function to RequestReader
type RequestReaderFunc[E any] func(ctx context.Context, event E) (*http.Request, error)

func (f RequestReaderFunc[E]) ReadRequest(ctx context.Context, event E) (*http.Request, error) {
	return f(ctx, event)
}

// ResponseWriterFunc adapts a function to ResponseWriter
type ResponseWriterFunc[R any] func(ctx context.Context, resp *Response) (R, error)

func (f ResponseWriterFunc[R]) WriteResponse(ctx context.Context, resp *Response) (R, error) {
	return f(ctx, resp)
}

// SecurityContextWriterFunc adapts a function to SecurityContextWriter
type SecurityContextWriterFunc[E any] func(ctx context.Context, event E) (*Identity, error)

func (f SecurityContextWriterFunc[E]) WriteSecurityContext(ctx context.Context, event E) (*Identity, error) {
	return f(ctx, event)
}

// ExceptionHandlerFunc adapts a function to ExceptionHandler
type ExceptionHandlerFunc[R any] func(ctx context.Context, err error) R

func (f ExceptionHandlerFunc[R]) HandleError(ctx context.Context, err error) R {
	return f(ctx, err)
}
