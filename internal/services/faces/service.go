package faces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"visionpro-worker-go/internal/config"
	"visionpro-worker-go/internal/models"
	"visionpro-worker-go/internal/stream"
)

const cropJPEGQuality = 95

// Requester performs a request-reply round trip. Satisfied by the messaging
// service.
type Requester interface {
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
}

type embedRequest struct {
	Op   string `json:"op"`
	JPEG []byte `json:"jpeg,omitempty"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

type matchRequest struct {
	Embedding []float32 `json:"embedding"`
	Threshold float64   `json:"threshold"`
}

type matchResponse struct {
	IdentityID string  `json:"identity_id"`
	Score      float64 `json:"score"`
	Found      bool    `json:"found"`
	Error      string  `json:"error,omitempty"`
}

type enrollRequest struct {
	IdentityID string    `json:"identity_id"`
	Embedding  []float32 `json:"embedding"`
}

type enrollResponse struct {
	EmbeddingID string `json:"embedding_id"`
	Error       string `json:"error,omitempty"`
}

// Service is the face capability: embedding extraction plus the vector
// index for matching and enrollment, reached over request-reply.
type Service struct {
	cfg *config.Config
	req Requester
	enc stream.Encoder
}

func NewService(cfg *config.Config, req Requester, enc stream.Encoder) *Service {
	return &Service{cfg: cfg, req: req, enc: enc}
}

// Load pings the embedding responder.
func (s *Service) Load(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FaceTimeout)
	defer cancel()

	payload, _ := json.Marshal(embedRequest{Op: "ping"})
	if _, err := s.req.Request(ctx, s.cfg.FaceEmbedSubject, payload); err != nil {
		return fmt.Errorf("face responder unavailable: %w", err)
	}
	log.Info().Str("subject", s.cfg.FaceEmbedSubject).Msg("Face capability ready")
	return nil
}

// Extract crops the region out of the frame and requests an embedding for
// it.
func (s *Service) Extract(ctx context.Context, frame *models.RawFrame, region models.Rect) ([]float32, error) {
	crop, err := CropFrame(frame, region)
	if err != nil {
		return nil, err
	}
	jpeg, err := s.enc.EncodeJPEG(crop, cropJPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("encode face crop: %w", err)
	}

	payload, err := json.Marshal(embedRequest{Op: "embed", JPEG: jpeg})
	if err != nil {
		return nil, fmt.Errorf("encode embed request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.FaceTimeout)
	defer cancel()

	data, err := s.req.Request(ctx, s.cfg.FaceEmbedSubject, payload)
	if err != nil {
		return nil, err
	}

	var resp embedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	return resp.Embedding, nil
}

// Match searches the index for the nearest identity above threshold.
func (s *Service) Match(ctx context.Context, embedding []float32, threshold float64) (string, float64, bool, error) {
	payload, err := json.Marshal(matchRequest{Embedding: embedding, Threshold: threshold})
	if err != nil {
		return "", 0, false, fmt.Errorf("encode match request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.FaceTimeout)
	defer cancel()

	data, err := s.req.Request(ctx, s.cfg.FaceMatchSubject, payload)
	if err != nil {
		return "", 0, false, err
	}

	var resp matchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", 0, false, fmt.Errorf("decode match response: %w", err)
	}
	if resp.Error != "" {
		return "", 0, false, errors.New(resp.Error)
	}
	return resp.IdentityID, resp.Score, resp.Found, nil
}

// Enroll adds an embedding for a new identity to the index.
func (s *Service) Enroll(ctx context.Context, identityID string, embedding []float32) (string, error) {
	payload, err := json.Marshal(enrollRequest{IdentityID: identityID, Embedding: embedding})
	if err != nil {
		return "", fmt.Errorf("encode enroll request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.FaceTimeout)
	defer cancel()

	data, err := s.req.Request(ctx, s.cfg.FaceEnrollSubject, payload)
	if err != nil {
		return "", err
	}

	var resp enrollResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("decode enroll response: %w", err)
	}
	if resp.Error != "" {
		return "", errors.New(resp.Error)
	}
	return resp.EmbeddingID, nil
}

// CropFrame copies a rectangular region out of a BGR frame.
func CropFrame(frame *models.RawFrame, r models.Rect) (*models.RawFrame, error) {
	if r.Empty() {
		return nil, errors.New("empty crop region")
	}
	if r.X < 0 || r.Y < 0 || r.X+r.W > frame.Width || r.Y+r.H > frame.Height {
		return nil, fmt.Errorf("crop %v outside %dx%d frame", r, frame.Width, frame.Height)
	}
	if len(frame.Data) < frame.Width*frame.Height*3 {
		return nil, errors.New("frame data shorter than dimensions imply")
	}

	stride := frame.Width * 3
	out := make([]byte, r.W*r.H*3)
	for y := 0; y < r.H; y++ {
		src := (r.Y+y)*stride + r.X*3
		copy(out[y*r.W*3:(y+1)*r.W*3], frame.Data[src:src+r.W*3])
	}
	return &models.RawFrame{
		CameraID:  frame.CameraID,
		Data:      out,
		Width:     r.W,
		Height:    r.H,
		Timestamp: frame.Timestamp,
	}, nil
}
