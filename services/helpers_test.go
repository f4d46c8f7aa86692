package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Pinak57/localchef-server/models"
	"github.com/Pinak57/localchef-server/repository"
	"github.com/Pinak57/localchef-server/services"
	"github.com/stripe/stripe-go/v80/webhook"
)

const testWebhookSecret = "whsec_test_secret"

var (
	customer = models.Identity{SubjectID: "u-1", Email: "u@x.com", Role: models.RoleCustomer}
	chef     = models.Identity{SubjectID: "c1", Email: "chef@x.com", Role: models.RoleChef}
)

// --- Mock SNS Publisher ---

type mockSNSPublisher struct {
	mu         sync.Mutex
	published  []string
	eventTypes []string
}

func (m *mockSNSPublisher) Publish(_ context.Context, topicArn, eventType string, message []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, string(message))
	m.eventTypes = append(m.eventTypes, eventType)
	return nil
}

func (m *mockSNSPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published)
}

// --- Fake payment gateway ---

type fakeGateway struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    []services.CheckoutRequest
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req services.CheckoutRequest) (*models.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if g.failures > 0 {
		g.failures--
		return nil, g.err
	}
	id := fmt.Sprintf("cs_test_%d", len(g.calls))
	return &models.CheckoutSession{SessionID: id, RedirectURL: "https://checkout.stripe.com/c/pay/" + id}, nil
}

func (g *fakeGateway) VerifyNotification([]byte, string) (*services.GatewayEvent, error) {
	return nil, errors.New("not used")
}

// --- Flaky order repository ---

type flakyOrderRepo struct {
	repository.OrderRepository

	mu             sync.Mutex
	settleFailures int
	settleCalls    int
}

func (r *flakyOrderRepo) Settle(ctx context.Context, orderID string, paidAt time.Time) (*models.Order, bool, error) {
	r.mu.Lock()
	r.settleCalls++
	fail := r.settleFailures > 0
	if fail {
		r.settleFailures--
	}
	r.mu.Unlock()
	if fail {
		return nil, false, errors.New("connection reset by peer")
	}
	return r.OrderRepository.Settle(ctx, orderID, paidAt)
}

// --- Queue, archive and dedupe fakes ---

type fakeQueue struct {
	mu   sync.Mutex
	sent [][]byte
	err  error
}

func (q *fakeQueue) Send(_ context.Context, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.sent = append(q.sent, body)
	return nil
}

type fakeArchiver struct {
	mu   sync.Mutex
	keys []string
}

func (a *fakeArchiver) Archive(_ context.Context, key string, _ []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, key)
	return nil
}

type memDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemDeduper() *memDeduper { return &memDeduper{seen: make(map[string]bool)} }

func (d *memDeduper) Seen(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[id], nil
}

func (d *memDeduper) Remember(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[id] = true
	return nil
}

// --- Signed webhook payloads ---

func checkoutCompletedPayload(eventID, sessionID, orderID string) []byte {
	return []byte(fmt.Sprintf(`{
  "id": %q,
  "object": "event",
  "type": "checkout.session.completed",
  "api_version": "2024-06-20",
  "data": {"object": {"id": %q, "object": "checkout.session", "client_reference_id": %q, "metadata": {"order_id": %q}}}
}`, eventID, sessionID, orderID, orderID))
}

func sign(payload []byte, secret string) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: payload,
		Secret:  secret,
	})
	return signed.Header
}
