package lambda

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"serverless-container/internal/config"
	"serverless-container/pkg/container"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig(format string) *config.Config {
	return &config.Config{
		Environment: "test",
		Port:        "8081",
		Container:   config.ContainerConfig{EventFormat: format},
	}
}

func pingDescriptor() container.Descriptor {
	return container.NewHandlerDescriptor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("pong " + r.URL.Path))
	}))
}

func TestHandlerManagerREST(t *testing.T) {
	m := NewHandlerManager()
	if err := m.Initialize(testConfig(config.EventFormatREST), quietLogger(), pingDescriptor()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	entry, err := m.EntryPoint()
	if err != nil {
		t.Fatalf("EntryPoint failed: %v", err)
	}
	handler, ok := entry.(func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error))
	if !ok {
		t.Fatalf("Unexpected entry point type %T", entry)
	}

	resp, err := handler(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet, Path: "/ping"})
	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK || resp.Body != "pong /ping" {
		t.Errorf("Expected 200 pong, got %d %q", resp.StatusCode, resp.Body)
	}
	if !m.IsHealthy() {
		t.Error("Expected manager to be healthy after an invocation")
	}
}

func TestHandlerManagerHTTPAPI(t *testing.T) {
	m := NewHandlerManager()
	if err := m.Initialize(testConfig(config.EventFormatHTTP), quietLogger(), pingDescriptor()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	entry, err := m.EntryPoint()
	if err != nil {
		t.Fatalf("EntryPoint failed: %v", err)
	}
	if _, ok := entry.(func(context.Context, events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error)); !ok {
		t.Fatalf("Unexpected entry point type %T", entry)
	}

	payload := []byte(`{"rawPath":"/v2","requestContext":{"http":{"method":"GET","path":"/v2"}}}`)
	out, err := m.InvokeJSON(context.Background(), payload)
	if err != nil {
		t.Fatalf("InvokeJSON failed: %v", err)
	}
	if !strings.Contains(string(out), "pong /v2") {
		t.Errorf("Expected pong body, got %s", out)
	}
}

func TestHandlerManagerInitializeOnce(t *testing.T) {
	m := NewHandlerManager()
	if err := m.Initialize(testConfig(config.EventFormatREST), quietLogger(), pingDescriptor()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	first := m.Initializer()

	if err := m.Initialize(testConfig(config.EventFormatHTTP), quietLogger(), pingDescriptor()); err != nil {
		t.Fatalf("Second Initialize failed: %v", err)
	}
	if m.Initializer() != first {
		t.Error("Expected the initializer to survive repeated initialization")
	}
}

func TestHandlerManagerWarm(t *testing.T) {
	t.Run("NotInitialized", func(t *testing.T) {
		if err := NewHandlerManager().Warm(context.Background()); !errors.Is(err, ErrNotInitialized) {
			t.Errorf("Expected ErrNotInitialized, got %v", err)
		}
		if _, err := NewHandlerManager().EntryPoint(); !errors.Is(err, ErrNotInitialized) {
			t.Errorf("Expected ErrNotInitialized, got %v", err)
		}
	})

	t.Run("BootstrapsOnce", func(t *testing.T) {
		m := NewHandlerManager()
		if err := m.Initialize(testConfig(config.EventFormatREST), quietLogger(), pingDescriptor()); err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}

		if err := m.Warm(context.Background()); err != nil {
			t.Fatalf("Warm failed: %v", err)
		}
		if _, err := m.InvokeJSON(context.Background(), []byte(`{"httpMethod":"GET","path":"/"}`)); err != nil {
			t.Fatalf("InvokeJSON failed: %v", err)
		}
		if m.Initializer().Bootstraps() != 1 {
			t.Errorf("Expected 1 bootstrap, got %d", m.Initializer().Bootstraps())
		}
	})

	t.Run("Unconfigured", func(t *testing.T) {
		m := NewHandlerManager()
		if err := m.Initialize(testConfig(config.EventFormatREST), quietLogger(), nil); err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}

		if err := m.Warm(context.Background()); !errors.Is(err, container.ErrNotConfigured) {
			t.Errorf("Expected ErrNotConfigured, got %v", err)
		}
	})
}

func TestHandlerManagerInvokeJSON(t *testing.T) {
	m := NewHandlerManager()
	if err := m.Initialize(testConfig(config.EventFormatREST), quietLogger(), pingDescriptor()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	t.Run("InvalidJSON", func(t *testing.T) {
		_, err := m.InvokeJSON(context.Background(), []byte(`{not json`))
		if !container.IsMalformedInput(err) {
			t.Errorf("Expected malformed input, got %v", err)
		}
	})

	t.Run("FailedInvocationKeepsOutput", func(t *testing.T) {
		out, err := m.InvokeJSON(context.Background(), []byte(`{"path":"/"}`))
		if !container.IsMalformedInput(err) {
			t.Errorf("Expected malformed input, got %v", err)
		}
		if !strings.Contains(string(out), "400") || !strings.Contains(string(out), "MalformedInput") {
			t.Errorf("Expected a 400 error response, got %s", out)
		}
	})

	t.Run("UnsupportedFormat", func(t *testing.T) {
		err := NewHandlerManager().Initialize(testConfig("websocket"), quietLogger(), pingDescriptor())
		if err == nil {
			t.Error("Expected unsupported format error")
		}
	})
}

func TestHandlerManagerDefaultDeadlineMargin(t *testing.T) {
	for _, key := range []string{"CONTAINER_DEADLINE_MARGIN", "CONTAINER_RESPONSE_TIMEOUT", "CONTAINER_EVENT_FORMAT"} {
		t.Setenv(key, "")
	}
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Container.DeadlineMargin != 50*time.Millisecond {
		t.Fatalf("Expected default deadline margin of 50ms, got %v", cfg.Container.DeadlineMargin)
	}

	release := make(chan struct{})
	defer close(release)

	m := NewHandlerManager()
	if err := m.Initialize(cfg, quietLogger(), container.NewHandlerDescriptor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	entry, err := m.EntryPoint()
	if err != nil {
		t.Fatalf("EntryPoint failed: %v", err)
	}
	handler := entry.(func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error))

	// The margin is taken off the invocation deadline, so a 100ms deadline
	// gives the application about 50ms before the bridge answers 504
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	resp, err := handler(ctx, events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet, Path: "/slow"})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Handler failed: %v", err)
	}
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Errorf("Expected 504, got %d", resp.StatusCode)
	}
	if elapsed < 40*time.Millisecond || elapsed >= 100*time.Millisecond {
		t.Errorf("Expected the bridge to answer about 50ms before the deadline, took %v", elapsed)
	}
}
