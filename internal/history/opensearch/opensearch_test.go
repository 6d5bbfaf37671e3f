package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/loykin/relaunchr/internal/history"
)

func TestOpenSearchSink_Send(t *testing.T) {
	var receivedBody []byte
	var receivedURL, receivedMethod, contentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedMethod = r.Method
		receivedURL = r.URL.Path
		contentType = r.Header.Get("Content-Type")
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"_id":"x","result":"created"}`))
	}))
	defer server.Close()

	sink := New(server.URL+"/", "relaunchr-history")
	now := time.Now().UTC()
	event := history.Event{
		Type:       history.EventUpdate,
		OccurredAt: now,
		Record: history.Record{
			RunID:         "os-run",
			Forced:        true,
			StartedAt:     now.Add(-1500 * time.Millisecond),
			FinishedAt:    now,
			Outcome:       "updated",
			RemoteVersion: "2.0.0",
		},
	}
	if err := sink.Send(context.Background(), event); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if receivedMethod != http.MethodPost {
		t.Errorf("expected POST, got %s", receivedMethod)
	}
	if receivedURL != "/relaunchr-history/_doc" {
		t.Errorf("unexpected path %s", receivedURL)
	}
	if contentType != "application/json" {
		t.Errorf("unexpected content type %s", contentType)
	}

	var doc map[string]any
	if err := json.Unmarshal(receivedBody, &doc); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if doc["run_id"] != "os-run" || doc["type"] != "update" || doc["remote_version"] != "2.0.0" {
		t.Errorf("unexpected document: %v", doc)
	}
	if doc["duration_ms"] != float64(1500) {
		t.Errorf("expected duration_ms 1500, got %v", doc["duration_ms"])
	}
}

func TestOpenSearchSink_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"index_closed"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	err := New(server.URL, "idx").Send(context.Background(), history.Event{Type: history.EventStop})
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), "index_closed") {
		t.Errorf("error should carry status and body: %v", err)
	}
}

func TestOpenSearchSink_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	if err := New(url, "idx").Send(context.Background(), history.Event{}); err == nil {
		t.Fatal("expected connection error")
	}
}
