package inference

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"visionpro-worker-go/internal/config"
	"visionpro-worker-go/internal/models"
)

type passEncoder struct{}

func (passEncoder) EncodeJPEG(frame *models.RawFrame, quality int) ([]byte, error) {
	return frame.Data, nil
}

type scriptedRequester struct {
	lastSubject string
	lastPayload []byte
	reply       []byte
	err         error
}

func (r *scriptedRequester) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	r.lastSubject = subject
	r.lastPayload = data
	return r.reply, r.err
}

func testConfig() *config.Config {
	return &config.Config{
		InferenceSubject: "inference.detect",
		InferenceTimeout: time.Second,
	}
}

func TestPredictRoundTrip(t *testing.T) {
	req := &scriptedRequester{}
	reply, _ := json.Marshal(detectResponse{Detections: []models.RawDetection{
		{ClassName: "person", Confidence: 0.91, Box: models.Rect{X: 10, Y: 20, W: 30, H: 80}},
	}})
	req.reply = reply

	svc := NewService(testConfig(), req, passEncoder{})
	frame := &models.RawFrame{CameraID: "cam1", Data: []byte("bgr"), Width: 640, Height: 480}

	detections, err := svc.Predict(context.Background(), frame)
	if err != nil {
		t.Fatal(err)
	}
	if len(detections) != 1 || detections[0].ClassName != "person" {
		t.Fatalf("detections = %+v", detections)
	}
	if req.lastSubject != "inference.detect" {
		t.Fatalf("subject = %q", req.lastSubject)
	}

	var sent detectRequest
	if err := json.Unmarshal(req.lastPayload, &sent); err != nil {
		t.Fatal(err)
	}
	if sent.Op != "detect" || sent.CameraID != "cam1" || sent.Width != 640 {
		t.Fatalf("sent request = %+v", sent)
	}
}

func TestPredictSurfacesResponderError(t *testing.T) {
	req := &scriptedRequester{}
	reply, _ := json.Marshal(detectResponse{Error: "model not loaded"})
	req.reply = reply

	svc := NewService(testConfig(), req, passEncoder{})
	if _, err := svc.Predict(context.Background(), &models.RawFrame{Width: 2, Height: 2}); err == nil {
		t.Fatal("responder error must surface")
	}
}

func TestLoadFailsWhenResponderAbsent(t *testing.T) {
	req := &scriptedRequester{err: errors.New("no responders")}
	svc := NewService(testConfig(), req, passEncoder{})
	if err := svc.Load(context.Background()); err == nil {
		t.Fatal("load must fail without a responder")
	}
}
