package recognizer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGroqRecognizerTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(struct {
			Text string `json:"text"`
		}{Text: "hello world"})
	}))
	defer server.Close()

	r := NewGroqRecognizer("test-key", "")
	r.url = server.URL

	result, err := r.Transcribe(context.Background(), make([]byte, 3200))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "hello world" {
		t.Errorf("expected 'hello world', got %q", result.Text)
	}
	if r.Name() != "groq" {
		t.Errorf("expected name groq, got %s", r.Name())
	}
}

func TestGroqRecognizerErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "boom"})
	}))
	defer server.Close()

	r := NewGroqRecognizer("test-key", "")
	r.url = server.URL

	if _, err := r.Transcribe(context.Background(), make([]byte, 100)); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}
