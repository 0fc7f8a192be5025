package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/docsmith-ai/docsmith/pkg/models"
)

func testMessages() []models.ChatMessage {
	return []models.ChatMessage{
		{Role: "system", Content: "You are a writer."},
		{Role: "user", Content: "Write something."},
	}
}

func TestComplete(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Error("expected API key in Authorization header")
		}

		var req models.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Model != "test-model" {
			t.Errorf("expected model test-model, got %s", req.Model)
		}
		if len(req.Messages) != 2 {
			t.Errorf("expected 2 messages, got %d", len(req.Messages))
		}

		json.NewEncoder(w).Encode(models.ChatCompletionResponse{
			ID: "cmpl-1",
			Choices: []models.Choice{
				{Message: models.ChatMessage{Role: "assistant", Content: "# Document"}, FinishReason: "stop"},
			},
		})
	}))
	defer ts.Close()

	c := New(ts.URL, "sk-test", "test-model", time.Second)
	content, err := c.Complete(context.Background(), testMessages())
	if err != nil {
		t.Fatal(err)
	}
	if content != "# Document" {
		t.Errorf("unexpected content: %s", content)
	}
}

func TestCompleteStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream blew up", http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := New(ts.URL, "sk-test", "test-model", time.Second)
	_, err := c.Complete(context.Background(), testMessages())

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", se.StatusCode)
	}
}

func TestCompleteEmptyResponse(t *testing.T) {
	cases := map[string]string{
		"no choices":    `{"id":"cmpl-1","choices":[]}`,
		"blank content": `{"id":"cmpl-1","choices":[{"message":{"role":"assistant","content":"  "}}]}`,
		"not json":      `<html>gateway error</html>`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer ts.Close()

			c := New(ts.URL, "sk-test", "test-model", time.Second)
			_, err := c.Complete(context.Background(), testMessages())
			if !errors.Is(err, ErrEmptyCompletion) {
				t.Errorf("expected ErrEmptyCompletion, got %v", err)
			}
		})
	}
}

func TestCompleteTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer ts.Close()

	c := New(ts.URL, "sk-test", "test-model", 10*time.Millisecond)
	_, err := c.Complete(context.Background(), testMessages())
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout", ErrTimeout, true},
		{"empty completion", ErrEmptyCompletion, true},
		{"transport error", errors.New("connection refused"), true},
		{"500", &StatusError{StatusCode: 500}, true},
		{"503", &StatusError{StatusCode: 503}, true},
		{"429", &StatusError{StatusCode: 429}, true},
		{"408", &StatusError{StatusCode: 408}, true},
		{"400", &StatusError{StatusCode: 400}, false},
		{"401", &StatusError{StatusCode: 401}, false},
		{"404", &StatusError{StatusCode: 404}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Retryable(tc.err); got != tc.want {
				t.Errorf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
