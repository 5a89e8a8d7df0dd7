package container

import (
	"errors"
	"net/http"
	"sync"
	"testing"
)

func TestResponseWrite(t *testing.T) {
	t.Run("DefaultStatus", func(t *testing.T) {
		resp := NewResponse()
		if _, err := resp.Write([]byte("hello")); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		resp.Finish()

		if resp.StatusCode() != http.StatusOK {
			t.Errorf("Expected status 200, got %d", resp.StatusCode())
		}
		if resp.BodyString() != "hello" {
			t.Errorf("Expected body 'hello', got %q", resp.BodyString())
		}
	})

	t.Run("FirstWriteHeaderWins", func(t *testing.T) {
		resp := NewResponse()
		resp.WriteHeader(http.StatusCreated)
		resp.WriteHeader(http.StatusTeapot)
		resp.Finish()

		if resp.StatusCode() != http.StatusCreated {
			t.Errorf("Expected status 201, got %d", resp.StatusCode())
		}
	})

	t.Run("WriteAfterFinish", func(t *testing.T) {
		resp := NewResponse()
		resp.Finish()

		_, err := resp.Write([]byte("late"))
		if !errors.Is(err, ErrResponseFinished) {
			t.Errorf("Expected ErrResponseFinished, got %v", err)
		}
		if len(resp.Body()) != 0 {
			t.Errorf("Expected empty body, got %q", resp.Body())
		}
	})

	t.Run("ConcurrentWrites", func(t *testing.T) {
		resp := NewResponse()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = resp.WriteString("x")
			}()
		}
		wg.Wait()
		resp.Finish()

		if len(resp.Body()) != 50 {
			t.Errorf("Expected 50 bytes, got %d", len(resp.Body()))
		}
	})
}

func TestResponseFinishSignalsLatch(t *testing.T) {
	resp := NewResponse()
	if resp.Finished() {
		t.Fatal("New response should not be finished")
	}

	resp.Finish()
	resp.Finish()

	if !resp.Latch().Signaled() {
		t.Error("Expected latch to be signaled after Finish")
	}
	if resp.Err() != nil {
		t.Errorf("Expected no error, got %v", resp.Err())
	}
}

func TestResponseAbort(t *testing.T) {
	t.Run("RecordsError", func(t *testing.T) {
		resp := NewResponse()
		cause := errors.New("boom")
		resp.abort(cause)

		if !resp.Finished() {
			t.Error("Expected abort to finish the response")
		}
		if !errors.Is(resp.Err(), cause) {
			t.Errorf("Expected %v, got %v", cause, resp.Err())
		}
	})

	t.Run("IgnoredAfterFinish", func(t *testing.T) {
		resp := NewResponse()
		resp.Finish()
		resp.abort(errors.New("late"))

		if resp.Err() != nil {
			t.Errorf("Expected no error on finished response, got %v", resp.Err())
		}
	})
}

func TestResponseHeaderSnapshot(t *testing.T) {
	resp := NewResponse()
	resp.Header().Set("Content-Type", "application/json")
	resp.Header().Add("Set-Cookie", "a=1")
	resp.Header().Add("Set-Cookie", "b=2")
	resp.Finish()

	snapshot := resp.HeaderSnapshot()
	snapshot.Del("Content-Type")

	if resp.Header().Get("Content-Type") != "application/json" {
		t.Error("Snapshot mutation leaked into the response headers")
	}
	if len(resp.HeaderSnapshot()["Set-Cookie"]) != 2 {
		t.Errorf("Expected 2 Set-Cookie values, got %v", resp.HeaderSnapshot()["Set-Cookie"])
	}
}
