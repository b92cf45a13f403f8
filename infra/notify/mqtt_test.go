package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	corenotify "github.com/nroult/fieldops/core/notify"
)

func withMockClient(t *testing.T) *mockClient {
	t.Helper()
	mc := &mockClient{}
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() {
		newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) }
	})
	return mc
}

func TestNotifyOfferTopicAndPayload(t *testing.T) {
	mc := withMockClient(t)
	n, err := NewMQTTNotifier(Config{Broker: "tcp://localhost:1883", QoS: 1})
	if err != nil {
		t.Fatalf("notifier: %v", err)
	}
	notice := corenotify.OfferNotice{
		InterventionID: "iv-1",
		TechnicianID:   "tech-7",
		Category:       "hvac",
		Score:          87.5,
		DistanceKm:     3.2,
		ExpiresAt:      time.Now().Add(5 * time.Minute),
	}
	if err := n.NotifyOffer(context.Background(), notice); err != nil {
		t.Fatalf("NotifyOffer: %v", err)
	}
	if len(mc.published) != 1 {
		t.Fatalf("expected one publish, got %d", len(mc.published))
	}
	pub := mc.published[0]
	if pub.topic != "fieldops/technician/tech-7/offer" {
		t.Fatalf("unexpected topic %s", pub.topic)
	}
	if pub.qos != 1 {
		t.Fatalf("qos not applied: %d", pub.qos)
	}
	var decoded corenotify.OfferNotice
	if err := json.Unmarshal(pub.payload, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.InterventionID != "iv-1" || decoded.Score != 87.5 {
		t.Fatalf("payload mismatch: %+v", decoded)
	}
}

func TestNotifyCancelledTopic(t *testing.T) {
	mc := withMockClient(t)
	n, err := NewMQTTNotifier(Config{Broker: "tcp://localhost:1883", TopicPrefix: "dispatch"})
	if err != nil {
		t.Fatalf("notifier: %v", err)
	}
	if err := n.NotifyCancelled(context.Background(), "iv-2", "tech-3", "claimed_by_other"); err != nil {
		t.Fatalf("NotifyCancelled: %v", err)
	}
	if len(mc.published) != 1 || mc.published[0].topic != "dispatch/technician/tech-3/cancel" {
		t.Fatalf("unexpected publishes: %+v", mc.published)
	}
}

func TestPublishRetry(t *testing.T) {
	mc := withMockClient(t)
	mc.publishErrs = []error{fmt.Errorf("net fail"), nil}
	n, err := NewMQTTNotifier(Config{Broker: "tcp://localhost:1883", MaxRetries: 1, BackoffMS: 1})
	if err != nil {
		t.Fatalf("notifier: %v", err)
	}
	if err := n.NotifyCancelled(context.Background(), "iv", "tech", "x"); err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if len(mc.published) != 2 {
		t.Fatalf("expected 2 publish attempts, got %d", len(mc.published))
	}
}

func TestPublishExhaustsRetries(t *testing.T) {
	mc := withMockClient(t)
	mc.publishErrs = []error{fmt.Errorf("down"), fmt.Errorf("down"), fmt.Errorf("down")}
	n, err := NewMQTTNotifier(Config{Broker: "tcp://localhost:1883", MaxRetries: 2, BackoffMS: 1})
	if err != nil {
		t.Fatalf("notifier: %v", err)
	}
	if err := n.NotifyCancelled(context.Background(), "iv", "tech", "x"); err == nil {
		t.Fatal("expected publish error")
	}
}

func TestNewClientOptionsAuth(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "id", Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("opts: %v", err)
	}
	if opts.Username != "u" || opts.Password != "p" {
		t.Fatal("auth not set")
	}
}

// mockClient implements pahoClient for tests.
type mockClient struct {
	opts      *paho.ClientOptions
	published []struct {
		topic   string
		qos     byte
		payload []byte
	}
	publishErrs []error
}

func (m *mockClient) IsConnected() bool { return true }
func (m *mockClient) Connect() paho.Token {
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(nil)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) {}
func (m *mockClient) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	m.published = append(m.published, struct {
		topic   string
		qos     byte
		payload []byte
	}{topic, qos, payload.([]byte)})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }
