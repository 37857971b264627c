package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"visionpro-worker-go/internal/config"
	"visionpro-worker-go/internal/models"
)

// Service asks an Ollama-compatible chat endpoint for a one-line event
// description. Callers fall back to a canned summary when it fails, so
// every error path here just returns the error.
type Service struct {
	url    string
	model  string
	client *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

func NewService(cfg *config.Config) *Service {
	return &Service{
		url:    strings.TrimRight(cfg.SummarizerURL, "/"),
		model:  cfg.SummarizerModel,
		client: &http.Client{Timeout: cfg.SummarizerTimeout},
	}
}

// Summarize produces a single-sentence description of the event.
func (s *Service) Summarize(ctx context.Context, ev *models.Event) (string, error) {
	if s.url == "" {
		return "", fmt.Errorf("summarizer not configured")
	}

	body, err := json.Marshal(chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "user", Content: buildPrompt(ev)},
		},
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("summarizer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("summarizer returned status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode summarizer response: %w", err)
	}

	summary := strings.TrimSpace(out.Message.Content)
	if summary == "" {
		return "", fmt.Errorf("summarizer returned empty content")
	}
	return summary, nil
}

func buildPrompt(ev *models.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a security monitoring assistant. In one short sentence, describe this camera event: a %s was detected on camera %s with %.0f%% confidence.",
		strings.ReplaceAll(string(ev.Category), "_", " "), ev.CameraID, ev.Confidence*100)
	if len(ev.DetectedObjects) > 0 {
		classes := make([]string, 0, len(ev.DetectedObjects))
		for _, obj := range ev.DetectedObjects {
			classes = append(classes, obj.Class)
		}
		fmt.Fprintf(&b, " Objects in view: %s.", strings.Join(classes, ", "))
	}
	b.WriteString(" Reply with the sentence only.")
	return b.String()
}
