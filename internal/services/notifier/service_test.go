package notifier

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"visionpro-worker-go/internal/config"
)

type chanPublisher struct {
	subjects chan string
	payloads chan []byte
	err      error
}

func newChanPublisher() *chanPublisher {
	return &chanPublisher{
		subjects: make(chan string, 8),
		payloads: make(chan []byte, 8),
	}
}

func (p *chanPublisher) Publish(subject string, data []byte) error {
	p.subjects <- subject
	p.payloads <- data
	return p.err
}

func TestDispatchPublishesWithoutBlocking(t *testing.T) {
	pub := newChanPublisher()
	svc := NewService(&config.Config{NotifySubject: "notifications.dispatch"}, pub)

	svc.Dispatch("person detected on Front Door", "/snapshots/ev.jpg")

	select {
	case subject := <-pub.subjects:
		if subject != "notifications.dispatch" {
			t.Fatalf("subject = %q", subject)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification never published")
	}

	var n notification
	if err := json.Unmarshal(<-pub.payloads, &n); err != nil {
		t.Fatal(err)
	}
	if n.Message != "person detected on Front Door" || n.ImagePath != "/snapshots/ev.jpg" {
		t.Fatalf("notification = %+v", n)
	}
	if n.Timestamp.IsZero() {
		t.Fatal("notification missing timestamp")
	}
}

func TestDispatchSwallowsPublishErrors(t *testing.T) {
	pub := newChanPublisher()
	pub.err = errors.New("nats down")
	svc := NewService(&config.Config{NotifySubject: "notifications.dispatch"}, pub)

	svc.Dispatch("vehicle detected on Driveway", "")

	select {
	case <-pub.subjects:
	case <-time.After(2 * time.Second):
		t.Fatal("publish was never attempted")
	}
	<-pub.payloads
}
