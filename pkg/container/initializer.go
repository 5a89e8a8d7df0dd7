package container

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// State is the lifecycle state of an Initializer
type State int32

const (
	StateUnconfigured State = iota
	StateConfigured
	StateBootstrapping
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateConfigured:
		return "configured"
	case StateBootstrapping:
		return "bootstrapping"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// bootstrapAttempt is shared by the goroutine running startup and every
// goroutine waiting for it
type bootstrapAttempt struct {
	done chan struct{}
	err  error
}

// Initializer owns the process-wide backing application. It is configured
// once, bootstrapped at most once successfully, and then dispatches requests.
type Initializer struct {
	state      atomic.Int32
	bootstraps atomic.Int64

	mu         sync.Mutex
	descriptor Descriptor
	handler    http.Handler
	attempt    *bootstrapAttempt

	logger logrus.FieldLogger
}

// NewInitializer creates an unconfigured initializer
func NewInitializer(logger logrus.FieldLogger) *Initializer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Initializer{logger: logger}
}

// State returns the current lifecycle state
func (i *Initializer) State() State {
	return State(i.state.Load())
}

// Bootstraps returns how many times application startup has run
func (i *Initializer) Bootstraps() int64 {
	return i.bootstraps.Load()
}

// Configure registers the application descriptor. Configuring the same
// descriptor again is a no-op; a different one fails with ErrAlreadyConfigured.
func (i *Initializer) Configure(d Descriptor) error {
	if d == nil {
		return fmt.Errorf("%w: nil descriptor", ErrNotConfigured)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.descriptor != nil {
		if sameDescriptor(i.descriptor, d) {
			return nil
		}
		return ErrAlreadyConfigured
	}

	i.descriptor = d
	i.state.Store(int32(StateConfigured))

	i.logger.WithFields(logrus.Fields{
		"descriptor": fmt.Sprintf("%T", d),
	}).Debug("Container configured")

	return nil
}

// Bootstrap runs the application startup exactly once. Concurrent callers
// block until the goroutine that won the transition finishes, or until their
// own ctx is done. A failed startup leaves the initializer configured so a
// later call can retry.
func (i *Initializer) Bootstrap(ctx context.Context, env *HostingEnvironment) error {
	if i.State() == StateReady {
		return nil
	}

	i.mu.Lock()
	switch i.State() {
	case StateUnconfigured:
		i.mu.Unlock()
		return ErrNotConfigured
	case StateReady:
		i.mu.Unlock()
		return nil
	case StateBootstrapping:
		attempt := i.attempt
		i.mu.Unlock()
		return waitAttempt(ctx, attempt)
	}

	if !i.state.CompareAndSwap(int32(StateConfigured), int32(StateBootstrapping)) {
		i.mu.Unlock()
		return fmt.Errorf("%w: unexpected state %s", ErrBootstrapFailed, i.State())
	}
	attempt := &bootstrapAttempt{done: make(chan struct{})}
	i.attempt = attempt
	descriptor := i.descriptor
	i.mu.Unlock()

	start := time.Now()
	handler, err := i.build(ctx, descriptor, env)
	i.bootstraps.Add(1)

	i.mu.Lock()
	if err != nil {
		attempt.err = err
		i.state.Store(int32(StateConfigured))
	} else {
		i.handler = handler
		i.state.Store(int32(StateReady))
	}
	i.attempt = nil
	close(attempt.done)
	i.mu.Unlock()

	fields := logrus.Fields{
		"duration_ms": float64(time.Since(start).Nanoseconds()) / 1000000,
	}
	if env != nil {
		for k, v := range env.Fields() {
			fields[k] = v
		}
	}

	if err != nil {
		fields["error"] = err.Error()
		i.logger.WithFields(fields).Error("Container bootstrap failed")
		return err
	}

	i.logger.WithFields(fields).Info("Container bootstrapped")
	return nil
}

// build runs the descriptor and converts panics into bootstrap errors
func (i *Initializer) build(ctx context.Context, d Descriptor, env *HostingEnvironment) (handler http.Handler, err error) {
	defer func() {
		if r := recover(); r != nil {
			handler = nil
			err = fmt.Errorf("%w: panic: %v", ErrBootstrapFailed, r)
		}
	}()

	handler, err = d.Build(ctx, env)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBootstrapFailed, err)
	}
	if handler == nil {
		return nil, fmt.Errorf("%w: descriptor built a nil handler", ErrBootstrapFailed)
	}
	return handler, nil
}

func waitAttempt(ctx context.Context, attempt *bootstrapAttempt) error {
	select {
	case <-attempt.done:
		return attempt.err
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrNotReady, ctx.Err())
	}
}

// Handler returns the bootstrapped application
func (i *Initializer) Handler() (http.Handler, error) {
	if i.State() != StateReady {
		return nil, ErrNotReady
	}
	return i.handler, nil
}

// Dispatch hands the request to the application and finishes the response
// when the application returns, unless the application switched to async
// mode with StartAsync. A panicking application still finishes the response.
func (i *Initializer) Dispatch(req *http.Request, resp *Response) error {
	if i.State() != StateReady {
		return ErrNotReady
	}
	handler := i.handler

	inv, ok := InvocationFromRequest(req)
	if !ok {
		inv = &Invocation{}
		req = req.WithContext(WithInvocation(req.Context(), inv))
	}
	inv.bind(resp)

	if err := serve(handler, req, resp); err != nil {
		resp.abort(err)
		return err
	}

	if !inv.asyncStarted() {
		resp.Finish()
	}
	return nil
}

func serve(handler http.Handler, req *http.Request, resp *Response) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(req.Method, req.URL.Path, r)
		}
	}()

	handler.ServeHTTP(resp, req)
	return nil
}

// sameDescriptor compares descriptors without panicking on uncomparable types
func sameDescriptor(a, b Descriptor) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// IsReady reports whether the application has been bootstrapped
func (i *Initializer) IsReady() bool {
	return i.State() == StateReady
}
