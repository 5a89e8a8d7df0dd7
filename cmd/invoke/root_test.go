package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"serverless-container/internal/config"

	"github.com/sirupsen/logrus"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Port:        "8081",
		Log:         config.LogConfig{Level: "error", Format: "text"},
		Container:   config.ContainerConfig{EventFormat: config.EventFormatREST},
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		},
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestReadEvent(t *testing.T) {
	t.Run("Stdin", func(t *testing.T) {
		payload, err := readEvent(nil, strings.NewReader(`{"path":"/"}`))
		if err != nil || string(payload) != `{"path":"/"}` {
			t.Errorf("Unexpected stdin payload %q: %v", payload, err)
		}
	})

	t.Run("File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "event.json")
		if err := os.WriteFile(path, []byte(`{"path":"/file"}`), 0o600); err != nil {
			t.Fatal(err)
		}
		payload, err := readEvent([]string{path}, nil)
		if err != nil || string(payload) != `{"path":"/file"}` {
			t.Errorf("Unexpected file payload %q: %v", payload, err)
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		if _, err := readEvent([]string{filepath.Join(t.TempDir(), "missing.json")}, nil); err == nil {
			t.Error("Expected an error for a missing file")
		}
	})
}

func TestWithAuthorization(t *testing.T) {
	payload := []byte(`{"headers":{"authorization":"Bearer old"},"multiValueHeaders":{"Authorization":["Bearer old"]}}`)

	out, err := withAuthorization(payload, "Bearer new")
	if err != nil {
		t.Fatalf("withAuthorization failed: %v", err)
	}

	var event struct {
		Headers           map[string]string   `json:"headers"`
		MultiValueHeaders map[string][]string `json:"multiValueHeaders"`
	}
	if err := json.Unmarshal(out, &event); err != nil {
		t.Fatalf("Invalid output: %v", err)
	}
	if len(event.Headers) != 1 || event.Headers["Authorization"] != "Bearer new" {
		t.Errorf("Expected a single replaced header, got %v", event.Headers)
	}
	if got := event.MultiValueHeaders["Authorization"]; len(event.MultiValueHeaders) != 1 || len(got) != 1 || got[0] != "Bearer new" {
		t.Errorf("Expected a single replaced multi-value header, got %v", event.MultiValueHeaders)
	}

	out, err = withAuthorization([]byte(`{"path":"/"}`), "Bearer only")
	if err != nil {
		t.Fatalf("withAuthorization failed: %v", err)
	}
	if strings.Contains(string(out), "multiValueHeaders") {
		t.Errorf("Expected no multi-value map to be invented, got %s", out)
	}

	if _, err := withAuthorization([]byte(`[`), "Bearer x"); err == nil {
		t.Error("Expected an error for invalid JSON")
	}
}

func TestRunInvoke(t *testing.T) {
	t.Run("Health", func(t *testing.T) {
		var out bytes.Buffer
		err := runInvoke(context.Background(), testConfig(), quietLogger(),
			invokeOptions{timeout: 5 * time.Second},
			[]byte(`{"httpMethod":"GET","path":"/health"}`), &out)
		if err != nil {
			t.Fatalf("runInvoke failed: %v", err)
		}
		if !strings.Contains(out.String(), "healthy") {
			t.Errorf("Expected health response, got %s", out.String())
		}
	})

	t.Run("HTTPFormatWithToken", func(t *testing.T) {
		var out bytes.Buffer
		err := runInvoke(context.Background(), testConfig(), quietLogger(),
			invokeOptions{
				format:  "HTTP",
				timeout: 5 * time.Second,
				subject: "user-1",
				roles:   []string{"admin"},
				secret:  "cli-secret",
			},
			[]byte(`{"rawPath":"/api/v1/admin","requestContext":{"http":{"method":"GET","path":"/api/v1/admin"}}}`), &out)
		if err != nil {
			t.Fatalf("runInvoke failed: %v", err)
		}
		if !strings.Contains(out.String(), "user-1") {
			t.Errorf("Expected the minted principal in the response, got %s", out.String())
		}
	})

	t.Run("TokenWithoutSecret", func(t *testing.T) {
		err := runInvoke(context.Background(), testConfig(), quietLogger(),
			invokeOptions{timeout: time.Second, subject: "user-1"},
			[]byte(`{"httpMethod":"GET","path":"/"}`), io.Discard)
		if err == nil {
			t.Error("Expected an error without a signing secret")
		}
	})
}
