package summarizer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"visionpro-worker-go/internal/config"
	"visionpro-worker-go/internal/models"
)

func testEvent() *models.Event {
	return &models.Event{
		ID:         "ev-1",
		CameraID:   "cam1",
		Category:   models.CategoryPerson,
		Confidence: 0.9,
		DetectedObjects: []models.DetectedObject{
			{Class: "person", Confidence: 0.9},
		},
	}
}

func newTestService(url string) *Service {
	return NewService(&config.Config{
		SummarizerURL:     url,
		SummarizerModel:   "llama3.2",
		SummarizerTimeout: 2 * time.Second,
	})
}

func TestSummarizeReturnsModelSentence(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Error(err)
		}
		json.NewEncoder(w).Encode(chatResponse{
			Message: chatMessage{Role: "assistant", Content: "  A person approached the front door.\n"},
		})
	}))
	defer srv.Close()

	svc := newTestService(srv.URL)
	summary, err := svc.Summarize(context.Background(), testEvent())
	if err != nil {
		t.Fatal(err)
	}
	if summary != "A person approached the front door." {
		t.Fatalf("summary = %q", summary)
	}

	if gotReq.Model != "llama3.2" || gotReq.Stream {
		t.Fatalf("request = %+v", gotReq)
	}
	if !strings.Contains(gotReq.Messages[0].Content, "cam1") {
		t.Fatalf("prompt missing camera: %q", gotReq.Messages[0].Content)
	}
}

func TestSummarizeErrorsOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc := newTestService(srv.URL)
	if _, err := svc.Summarize(context.Background(), testEvent()); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}

func TestSummarizeErrorsOnEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{})
	}))
	defer srv.Close()

	svc := newTestService(srv.URL)
	if _, err := svc.Summarize(context.Background(), testEvent()); err == nil {
		t.Fatal("expected error on empty content")
	}
}

func TestSummarizeErrorsWhenUnconfigured(t *testing.T) {
	svc := newTestService("")
	if _, err := svc.Summarize(context.Background(), testEvent()); err == nil {
		t.Fatal("expected error when no endpoint is configured")
	}
}
