package container

import (
	"context"
	"net/http"
	"sync"
	"time"
)

type contextKey int

const invocationKey contextKey = iota

// Identity is the caller identity extracted from the invocation event
type Identity struct {
	Principal         string                 `json:"principal,omitempty"`
	AuthType          string                 `json:"auth_type,omitempty"`
	SourceIP          string                 `json:"source_ip,omitempty"`
	UserArn           string                 `json:"user_arn,omitempty"`
	CognitoIdentityID string                 `json:"cognito_identity_id,omitempty"`
	CognitoPoolID     string                 `json:"cognito_pool_id,omitempty"`
	Claims            map[string]interface{} `json:"claims,omitempty"`
}

// Claim returns a claim value as a string, or "" when absent
func (i *Identity) Claim(name string) string {
	if i == nil || i.Claims == nil {
		return ""
	}
	if v, ok := i.Claims[name].(string); ok {
		return v
	}
	return ""
}

// Invocation holds the attributes of the invocation a request belongs to.
// The application reads it through the request helpers below.
type Invocation struct {
	RequestID string
	Deadline  time.Time
	Event     interface{}
	Identity  *Identity

	mu       sync.Mutex
	response *Response
	async    *AsyncContext
}

// WithInvocation returns a context carrying inv. Request readers build their
// *http.Request on this context so the attributes reach the application.
func WithInvocation(ctx context.Context, inv *Invocation) context.Context {
	return context.WithValue(ctx, invocationKey, inv)
}

// InvocationFromContext retrieves the invocation stored in ctx, if any
func InvocationFromContext(ctx context.Context) (*Invocation, bool) {
	inv, ok := ctx.Value(invocationKey).(*Invocation)
	return inv, ok && inv != nil
}

// InvocationFromRequest retrieves the invocation a request belongs to
func InvocationFromRequest(r *http.Request) (*Invocation, bool) {
	return InvocationFromContext(r.Context())
}

// IdentityFromRequest returns the caller identity, if one was extracted
func IdentityFromRequest(r *http.Request) (*Identity, bool) {
	inv, ok := InvocationFromRequest(r)
	if !ok || inv.Identity == nil {
		return nil, false
	}
	return inv.Identity, true
}

// EventFromRequest returns the original invocation event as type E
func EventFromRequest[E any](r *http.Request) (E, bool) {
	var zero E
	inv, ok := InvocationFromRequest(r)
	if !ok {
		return zero, false
	}
	event, ok := inv.Event.(E)
	if !ok {
		return zero, false
	}
	return event, true
}

// bind attaches the response the invocation is producing
func (inv *Invocation) bind(resp *Response) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.response = resp
	inv.async = nil
}

// asyncStarted reports whether the application took over completion
func (inv *Invocation) asyncStarted() bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.async != nil
}

// AsyncContext lets the application keep producing a response after
// ServeHTTP has returned. Complete must be called once the output is final.
type AsyncContext struct {
	response *Response
}

// StartAsync switches the request into asynchronous mode: the container no
// longer finishes the response when ServeHTTP returns. Writes must go to
// AsyncContext.Response, not to a framework writer that is recycled after
// the handler returns.
func StartAsync(r *http.Request) (*AsyncContext, error) {
	inv, ok := InvocationFromRequest(r)
	if !ok {
		return nil, ErrAsyncUnavailable
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.response == nil {
		return nil, ErrAsyncUnavailable
	}
	if inv.async != nil {
		return nil, ErrAsyncStarted
	}
	inv.async = &AsyncContext{response: inv.response}
	return inv.async, nil
}

// Response returns the container response to write into
func (a *AsyncContext) Response() *Response {
	return a.response
}

// Complete finishes the response and releases the waiting invocation
func (a *AsyncContext) Complete() {
	a.response.Finish()
}

// Done is closed once the response has been completed
func (a *AsyncContext) Done() <-chan struct{} {
	return a.response.Latch().Done()
}
