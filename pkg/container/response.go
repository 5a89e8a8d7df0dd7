package container

import (
	"bytes"
	"net/http"
	"sync"
)

// Response is the container's http.ResponseWriter. The backing application
// writes status, headers and body into it, synchronously or from another
// goroutine, and Finish announces that the output is final.
//
// A Response is paired with exactly one Latch and must never be reused
// across invocations.
type Response struct {
	mu          sync.Mutex
	header      http.Header
	status      int
	wroteHeader bool
	finished    bool
	err         error
	body        bytes.Buffer
	latch       *Latch
}

// NewResponse creates an empty response with its own completion latch
func NewResponse() *Response {
	return &Response{
		header: make(http.Header),
		latch:  NewLatch(),
	}
}

// Header returns the header map the application mutates before writing
func (r *Response) Header() http.Header {
	return r.header
}

// WriteHeader records the status code. Only the first call has an effect.
func (r *Response) WriteHeader(statusCode int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.wroteHeader || r.finished {
		return
	}
	r.status = statusCode
	r.wroteHeader = true
}

// Write appends to the body, defaulting the status to 200
func (r *Response) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return 0, ErrResponseFinished
	}
	if !r.wroteHeader {
		r.status = http.StatusOK
		r.wroteHeader = true
	}
	return r.body.Write(p)
}

// WriteString appends s to the body
func (r *Response) WriteString(s string) (int, error) {
	return r.Write([]byte(s))
}

// Flush implements http.Flusher. The body is buffered until Finish.
func (r *Response) Flush() {}

// Finish marks the response final and signals the latch. It is safe to call
// more than once and from any goroutine.
func (r *Response) Finish() {
	r.mu.Lock()
	if !r.wroteHeader {
		r.status = http.StatusOK
		r.wroteHeader = true
	}
	r.finished = true
	r.mu.Unlock()

	r.latch.Signal()
}

// abort records the failure that ended the response and finishes it. A
// response that was already finished keeps its output and no error.
func (r *Response) abort(err error) {
	r.mu.Lock()
	if !r.finished && r.err == nil {
		r.err = err
	}
	r.mu.Unlock()

	r.Finish()
}

// Err returns the failure that ended the response, if any
func (r *Response) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Finished reports whether Finish has been called
func (r *Response) Finished() bool {
	return r.latch.Signaled()
}

// Latch returns the completion signal paired with this response
func (r *Response) Latch() *Latch {
	return r.latch
}

// StatusCode returns the recorded status, 200 if nothing was written
func (r *Response) StatusCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.wroteHeader {
		return http.StatusOK
	}
	return r.status
}

// Body returns a copy of the body bytes
func (r *Response) Body() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]byte, r.body.Len())
	copy(out, r.body.Bytes())
	return out
}

// BodyString returns the body as a string
func (r *Response) BodyString() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body.String()
}

// HeaderSnapshot returns a deep copy of the headers
func (r *Response) HeaderSnapshot() http.Header {
	return r.header.Clone()
}
