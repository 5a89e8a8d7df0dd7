package container

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// HandlerConfig wires the collaborators of a Handler
type HandlerConfig[E, R any] struct {
	Reader     RequestReader[E]
	Writer     ResponseWriter[R]
	Security   SecurityContextWriter[E] // Optional
	Exceptions ExceptionHandler[R]

	Initializer *Initializer        // Defaults to a new unconfigured initializer
	Environment *HostingEnvironment // Defaults to NewHostingEnvironment
	Logger      logrus.FieldLogger  // Defaults to the standard logrus logger

	// ResponseTimeout bounds the wait for the response on top of the
	// invocation deadline. Zero means only the deadline applies.
	ResponseTimeout time.Duration
	// DeadlineMargin is kept free before the invocation deadline so the
	// error output can still be returned
	DeadlineMargin time.Duration
}

// Handler is the invocation bridge: it turns one event into one response by
// running it through the process-wide application.
type Handler[E, R any] struct {
	reader      RequestReader[E]
	writer      ResponseWriter[R]
	security    SecurityContextWriter[E]
	exceptions  ExceptionHandler[R]
	initializer *Initializer
	env         *HostingEnvironment
	logger      logrus.FieldLogger
	timeout     time.Duration
	margin      time.Duration
}

// NewHandler creates a bridge from the given configuration
func NewHandler[E, R any](cfg HandlerConfig[E, R]) (*Handler[E, R], error) {
	if cfg.Reader == nil {
		return nil, errors.New("handler requires a request reader")
	}
	if cfg.Writer == nil {
		return nil, errors.New("handler requires a response writer")
	}
	if cfg.Exceptions == nil {
		return nil, errors.New("handler requires an exception handler")
	}
	if cfg.ResponseTimeout < 0 || cfg.DeadlineMargin < 0 {
		return nil, errors.New("handler timeouts must not be negative")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	initializer := cfg.Initializer
	if initializer == nil {
		initializer = NewInitializer(logger)
	}
	env := cfg.Environment
	if env == nil {
		env = NewHostingEnvironment(logger)
	}

	return &Handler[E, R]{
		reader:      cfg.Reader,
		writer:      cfg.Writer,
		security:    cfg.Security,
		exceptions:  cfg.Exceptions,
		initializer: initializer,
		env:         env,
		logger:      logger,
		timeout:     cfg.ResponseTimeout,
		margin:      cfg.DeadlineMargin,
	}, nil
}

// Configure registers the application descriptor with the initializer
func (h *Handler[E, R]) Configure(d Descriptor) error {
	return h.initializer.Configure(d)
}

// Initializer returns the initializer backing this handler
func (h *Handler[E, R]) Initializer() *Initializer {
	return h.initializer
}

// Environment returns the hosting environment handed to the application
func (h *Handler[E, R]) Environment() *HostingEnvironment {
	return h.env
}

// Proxy is the Lambda entry point. Failures are logged and returned as the
// exception handler's output so the caller always gets a structured response.
func (h *Handler[E, R]) Proxy(ctx context.Context, event E) (R, error) {
	out, _ := h.Invoke(ctx, event)
	return out, nil
}

// Invoke runs one invocation. On failure it returns the exception handler's
// output together with the error that caused it.
func (h *Handler[E, R]) Invoke(ctx context.Context, event E) (R, error) {
	start := time.Now()

	inv := &Invocation{
		RequestID: requestID(ctx),
		Event:     event,
	}
	if deadline, ok := ctx.Deadline(); ok {
		inv.Deadline = deadline
	}
	logger := h.logger.WithFields(logrus.Fields{
		"request_id": inv.RequestID,
	})

	if h.initializer.State() != StateReady {
		if err := h.initializer.Bootstrap(ctx, h.env); err != nil {
			return h.fail(ctx, logger, err)
		}
	}

	if h.security != nil {
		identity, err := h.security.WriteSecurityContext(ctx, event)
		if err != nil {
			return h.fail(ctx, logger, fmt.Errorf("%w: security context: %v", ErrMalformedInput, err))
		}
		inv.Identity = identity
	}

	ctx = WithInvocation(ctx, inv)
	req, err := h.reader.ReadRequest(ctx, event)
	if err != nil {
		if !errors.Is(err, ErrMalformedInput) {
			err = fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		return h.fail(ctx, logger, err)
	}
	if got, ok := InvocationFromRequest(req); !ok || got != inv {
		req = req.WithContext(WithInvocation(req.Context(), inv))
	}

	resp := NewResponse()

	waitCtx, cancel := h.waitContext(ctx)
	defer cancel()

	go func() {
		if err := h.initializer.Dispatch(req, resp); err != nil {
			resp.abort(err)
		}
	}()

	if err := resp.Latch().WaitContext(waitCtx); err != nil {
		return h.fail(ctx, logger, fmt.Errorf("%w after %s: %v",
			ErrInvocationTimeout, time.Since(start).Round(time.Millisecond), err))
	}
	if err := resp.Err(); err != nil {
		return h.fail(ctx, logger, err)
	}

	out, err := h.writer.WriteResponse(ctx, resp)
	if err != nil {
		return h.fail(ctx, logger, fmt.Errorf("failed to write response: %w", err))
	}

	logger.WithFields(logrus.Fields{
		"method":      req.Method,
		"path":        req.URL.Path,
		"status_code": resp.StatusCode(),
		"latency_ms":  float64(time.Since(start).Nanoseconds()) / 1000000,
	}).Debug("Invocation completed")

	return out, nil
}

// waitContext bounds the response wait by the deadline, the margin and the
// configured response timeout
func (h *Handler[E, R]) waitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok && h.margin > 0 {
		ctx, cancel := context.WithDeadline(ctx, deadline.Add(-h.margin))
		if h.timeout > 0 {
			inner, innerCancel := context.WithTimeout(ctx, h.timeout)
			return inner, func() {
				innerCancel()
				cancel()
			}
		}
		return ctx, cancel
	}
	if h.timeout > 0 {
		return context.WithTimeout(ctx, h.timeout)
	}
	return context.WithCancel(ctx)
}

// fail logs err and translates it into the invocation output
func (h *Handler[E, R]) fail(ctx context.Context, logger logrus.FieldLogger, err error) (out R, failure error) {
	failure = err
	fields := logrus.Fields{
		"error":      err.Error(),
		"error_type": ErrorType(err),
	}
	if IsApplicationError(err) || IsMalformedInput(err) {
		logger.WithFields(fields).Warn("Invocation failed")
	} else {
		logger.WithFields(fields).Error("Invocation failed")
	}

	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logrus.Fields{
				"panic": fmt.Sprintf("%v", r),
			}).Error("Exception handler panicked")
		}
	}()
	out = h.exceptions.HandleError(ctx, err)
	return out, failure
}

// requestID returns the AWS request id of the invocation, or a fresh id when
// running outside Lambda
func requestID(ctx context.Context) string {
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		return lc.AwsRequestID
	}
	return uuid.New().String()
}

// ErrorType names the category of err for logs and error payloads
func ErrorType(err error) string {
	switch {
	case errors.Is(err, ErrNotConfigured):
		return "NotConfigured"
	case errors.Is(err, ErrAlreadyConfigured):
		return "AlreadyConfigured"
	case errors.Is(err, ErrNotReady):
		return "NotReady"
	case errors.Is(err, ErrBootstrapFailed):
		return "BootstrapFailed"
	case errors.Is(err, ErrInvocationTimeout):
		return "InvocationTimeout"
	case errors.Is(err, ErrMalformedInput):
		return "MalformedInput"
	case IsApplicationError(err):
		return "ApplicationError"
	default:
		return fmt.Sprintf("%T", err)
	}
}
