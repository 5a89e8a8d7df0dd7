package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/gin-gonic/gin"
)

type testEvent struct {
	Method string
	Path   string
	Body   string
	User   string
}

type testOutput struct {
	Status    int
	Body      string
	ErrorType string
}

func newTestHandler(t *testing.T, timeout time.Duration) *Handler[testEvent, testOutput] {
	t.Helper()

	logger := quietLogger()
	h, err := NewHandler(HandlerConfig[testEvent, testOutput]{
		Reader: RequestReaderFunc[testEvent](func(ctx context.Context, e testEvent) (*http.Request, error) {
			if e.Method == "" {
				return nil, errors.New("missing method")
			}
			return http.NewRequestWithContext(ctx, e.Method, e.Path, strings.NewReader(e.Body))
		}),
		Writer: ResponseWriterFunc[testOutput](func(ctx context.Context, resp *Response) (testOutput, error) {
			return testOutput{Status: resp.StatusCode(), Body: resp.BodyString()}, nil
		}),
		Security: SecurityContextWriterFunc[testEvent](func(ctx context.Context, e testEvent) (*Identity, error) {
			return &Identity{Principal: e.User}, nil
		}),
		Exceptions: ExceptionHandlerFunc[testOutput](func(ctx context.Context, err error) testOutput {
			return testOutput{Status: http.StatusInternalServerError, ErrorType: ErrorType(err)}
		}),
		Environment:     NewHostingEnvironment(logger),
		Logger:          logger,
		ResponseTimeout: timeout,
	})
	if err != nil {
		t.Fatalf("NewHandler failed: %v", err)
	}
	return h
}

func TestNewHandlerValidation(t *testing.T) {
	_, err := NewHandler(HandlerConfig[testEvent, testOutput]{})
	if err == nil {
		t.Error("Expected error for empty configuration")
	}
}

func TestHandlerInvokeReady(t *testing.T) {
	h := newTestHandler(t, time.Second)
	d := NewComponentDescriptor(NewComponent("greeting", func(ctx context.Context, engine *gin.Engine, env *HostingEnvironment) error {
		engine.GET("/hello", func(c *gin.Context) {
			c.String(http.StatusOK, "hi")
		})
		return nil
	}))
	if err := h.Configure(d); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	out, err := h.Invoke(context.Background(), testEvent{Method: http.MethodGet, Path: "/hello"})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if out.Status != http.StatusOK || out.Body != "hi" {
		t.Errorf("Expected 200 hi, got %d %q", out.Status, out.Body)
	}
	if h.Initializer().State() != StateReady {
		t.Errorf("Expected ready, got %s", h.Initializer().State())
	}

	for i := 0; i < 3; i++ {
		if _, err := h.Invoke(context.Background(), testEvent{Method: http.MethodGet, Path: "/hello"}); err != nil {
			t.Fatalf("Invoke %d failed: %v", i, err)
		}
	}
	if h.Initializer().Bootstraps() != 1 {
		t.Errorf("Expected 1 bootstrap, got %d", h.Initializer().Bootstraps())
	}
}

func TestHandlerInvokeUnconfigured(t *testing.T) {
	h := newTestHandler(t, time.Second)

	out, err := h.Invoke(context.Background(), testEvent{Method: http.MethodGet, Path: "/"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Expected ErrNotConfigured, got %v", err)
	}
	if out.ErrorType != "NotConfigured" {
		t.Errorf("Expected NotConfigured output, got %q", out.ErrorType)
	}
	if h.Initializer().Bootstraps() != 0 {
		t.Errorf("Expected no bootstrap, got %d", h.Initializer().Bootstraps())
	}

	proxied, err := h.Proxy(context.Background(), testEvent{Method: http.MethodGet, Path: "/"})
	if err != nil {
		t.Errorf("Expected Proxy to return a nil error, got %v", err)
	}
	if proxied.ErrorType != "NotConfigured" {
		t.Errorf("Expected NotConfigured output from Proxy, got %q", proxied.ErrorType)
	}
}

func TestHandlerInvokeTimeout(t *testing.T) {
	h := newTestHandler(t, 5*time.Second)
	release := make(chan struct{})
	defer close(release)

	if err := h.Configure(NewHandlerDescriptor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			<-release
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("fast"))
	}))); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	out, err := h.Invoke(ctx, testEvent{Method: http.MethodGet, Path: "/slow"})
	elapsed := time.Since(start)

	if !errors.Is(err, ErrInvocationTimeout) {
		t.Fatalf("Expected ErrInvocationTimeout, got %v", err)
	}
	if out.ErrorType != "InvocationTimeout" {
		t.Errorf("Expected InvocationTimeout output, got %q", out.ErrorType)
	}
	if elapsed < 90*time.Millisecond || elapsed > time.Second {
		t.Errorf("Expected timeout close to 100ms, took %v", elapsed)
	}

	// The abandoned request is still parked on release; the next invocation
	// must not wait for it or bootstrap again
	out, err = h.Invoke(context.Background(), testEvent{Method: http.MethodPost, Path: "/fast"})
	if err != nil {
		t.Fatalf("Expected the invocation after a timeout to succeed, got %v", err)
	}
	if out.Status != http.StatusCreated || out.Body != "fast" {
		t.Errorf("Expected 201 fast, got %d %q", out.Status, out.Body)
	}
	if h.Initializer().State() != StateReady {
		t.Errorf("Expected ready state after a timeout, got %s", h.Initializer().State())
	}
	if h.Initializer().Bootstraps() != 1 {
		t.Errorf("Expected a single bootstrap, got %d", h.Initializer().Bootstraps())
	}
}

func TestHandlerResponseTimeout(t *testing.T) {
	h := newTestHandler(t, 50*time.Millisecond)
	release := make(chan struct{})
	defer close(release)

	if err := h.Configure(NewHandlerDescriptor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	start := time.Now()
	_, err := h.Invoke(context.Background(), testEvent{Method: http.MethodGet, Path: "/slow"})
	if !IsTimeout(err) {
		t.Fatalf("Expected timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Timeout took too long: %v", elapsed)
	}
}

func TestHandlerInvokePanic(t *testing.T) {
	h := newTestHandler(t, 5*time.Second)
	if err := h.Configure(NewHandlerDescriptor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil map write")
	}))); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	start := time.Now()
	out, err := h.Invoke(context.Background(), testEvent{Method: http.MethodGet, Path: "/boom"})
	if !IsApplicationError(err) {
		t.Fatalf("Expected application error, got %v", err)
	}
	if out.ErrorType != "ApplicationError" {
		t.Errorf("Expected ApplicationError output, got %q", out.ErrorType)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Expected panic to release the invocation promptly, took %v", elapsed)
	}

	// The application stays usable after a panicking request
	if h.Initializer().State() != StateReady {
		t.Errorf("Expected ready, got %s", h.Initializer().State())
	}
}

func TestHandlerInvokeMalformed(t *testing.T) {
	h := newTestHandler(t, time.Second)
	if err := h.Configure(NewHandlerDescriptor(http.NotFoundHandler())); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	out, err := h.Invoke(context.Background(), testEvent{Path: "/"})
	if !IsMalformedInput(err) {
		t.Fatalf("Expected malformed input, got %v", err)
	}
	if out.ErrorType != "MalformedInput" {
		t.Errorf("Expected MalformedInput output, got %q", out.ErrorType)
	}
}

func TestHandlerInvokeAsync(t *testing.T) {
	h := newTestHandler(t, 2*time.Second)
	if err := h.Configure(NewHandlerDescriptor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		async, err := StartAsync(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		go func() {
			time.Sleep(20 * time.Millisecond)
			resp := async.Response()
			resp.WriteHeader(http.StatusAccepted)
			_, _ = resp.WriteString("queued")
			async.Complete()
		}()
	}))); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	out, err := h.Invoke(context.Background(), testEvent{Method: http.MethodPost, Path: "/jobs"})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if out.Status != http.StatusAccepted || out.Body != "queued" {
		t.Errorf("Expected 202 queued, got %d %q", out.Status, out.Body)
	}
}

func TestHandlerInvocationAttributes(t *testing.T) {
	h := newTestHandler(t, time.Second)
	if err := h.Configure(NewHandlerDescriptor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inv, ok := InvocationFromRequest(r)
		if !ok {
			http.Error(w, "no invocation", http.StatusInternalServerError)
			return
		}
		identity, _ := IdentityFromRequest(r)
		event, _ := EventFromRequest[testEvent](r)
		fmt.Fprintf(w, "%s|%s|%s", inv.RequestID, identity.Principal, event.Path)
	}))); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	ctx := lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{
		AwsRequestID: "req-123",
	})
	out, err := h.Invoke(ctx, testEvent{Method: http.MethodGet, Path: "/me", User: "alice"})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if out.Body != "req-123|alice|/me" {
		t.Errorf("Unexpected body %q", out.Body)
	}
}

func TestHandlerConcurrentFirstInvocations(t *testing.T) {
	h := newTestHandler(t, 2*time.Second)
	d := &countingDescriptor{delay: 30 * time.Millisecond}
	if err := h.Configure(d); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Invoke(context.Background(), testEvent{Method: http.MethodGet, Path: "/"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Unexpected error: %v", err)
		}
	}
	if d.builds.Load() != 1 {
		t.Errorf("Expected 1 build, got %d", d.builds.Load())
	}
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{ErrNotConfigured, "NotConfigured"},
		{fmt.Errorf("wrapped: %w", ErrBootstrapFailed), "BootstrapFailed"},
		{ErrInvocationTimeout, "InvocationTimeout"},
		{NewApplicationError("GET", "/", errors.New("x")), "ApplicationError"},
		{errors.New("plain"), "*errors.errorString"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := ErrorType(tt.err); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}
