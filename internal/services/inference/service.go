package inference

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

// transferJPEGQuality is used for frames shipped to the detector. Higher
// than the live-stream quality since detection accuracy depends on it.
const transferJPEGQuality = 90

// Requester performs a request-reply round trip. Satisfied by the messaging
// service.
type Requester interface {
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
}

type detectRequest struct {
	Op       string `json:"op"`
	CameraID string `json:"camera_id,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	JPEG     []byte `json:"jpeg,omitempty"`
}

type detectResponse struct {
	Detections []models.RawDetection `json:"detections"`
	Error      string                `json:"error,omitempty"`
}

// Service is the object-detection capability, reached over request-reply.
// The model itself runs in a separate inference process.
type Service struct {
	cfg *config.Config
	req Requester
	enc stream.Encoder
}

func NewService(cfg *config.Config, req Requester, enc stream.Encoder) *Service {
	return &Service{cfg: cfg, req: req, enc: enc}
}

// Load pings the inference responder so startup fails fast when the model
// process is absent.
func (s *Service) Load(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.InferenceTimeout)
	defer cancel()

	payload, _ := json.Marshal(detectRequest{Op: "ping"})
	if _, err := s.req.Request(ctx, s.cfg.InferenceSubject, payload); err != nil {
		return fmt.Errorf("inference responder unavailable: %w", err)
	}
	log.Info().Str("subject", s.cfg.InferenceSubject).Msg("Inference capability ready")
	return nil
}

// Predict ships one frame to the detector and returns its raw detections.
func (s *Service) Predict(ctx context.Context, frame *models.RawFrame) ([]models.RawDetection, error) {
	jpeg, err := s.enc.EncodeJPEG(frame, transferJPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("encode frame for inference: %w", err)
	}

	payload, err := json.Marshal(detectRequest{
		Op:       "detect",
		CameraID: frame.CameraID,
		Width:    frame.Width,
		Height:   frame.Height,
		JPEG:     jpeg,
	})
	if err != nil {
		return nil, fmt.Errorf("encode inference request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.InferenceTimeout)
	defer cancel()

	data, err := s.req.Request(ctx, s.cfg.InferenceSubject, payload)
	if err != nil {
		return nil, err
	}

	var resp detectResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode inference response: %w", err)
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	return resp.Detections, nil
}
