package payments

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// FakeGateway keeps sessions in memory. It backs local runs without Stripe
// credentials and the service tests.
type FakeGateway struct {
	mu       sync.Mutex
	baseURL  string
	sessions map[string]Session
	// AutoPay marks sessions paid as soon as they are created.
	AutoPay bool
	// Err, when set, is returned by CreateSession.
	Err error
}

func NewFakeGateway(baseURL string) *FakeGateway {
	return &FakeGateway{baseURL: strings.TrimRight(baseURL, "/"), sessions: map[string]Session{}}
}

func (g *FakeGateway) CreateSession(_ context.Context, req CreateSessionRequest) (Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return Session{}, g.Err
	}
	id := "cs_fake_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	meta := make(map[string]string, len(req.Metadata))
	for k, v := range req.Metadata {
		meta[k] = v
	}
	status := StatusUnpaid
	if g.AutoPay {
		status = StatusPaid
	}
	sess := Session{
		ID:            id,
		URL:           g.baseURL + "/api/v1/payments/complete?session_id=" + id,
		PaymentStatus: status,
		Metadata:      meta,
		CustomerEmail: req.CustomerEmail,
		AmountTotal:   req.AmountCents,
		Currency:      req.Currency,
	}
	g.sessions[id] = sess
	return sess, nil
}

func (g *FakeGateway) RetrieveSession(_ context.Context, id string) (Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	sess, ok := g.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

// MarkPaid simulates the customer completing checkout.
func (g *FakeGateway) MarkPaid(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	sess, ok := g.sessions[id]
	if !ok {
		return false
	}
	sess.PaymentStatus = StatusPaid
	g.sessions[id] = sess
	return true
}

// Put registers a session created elsewhere, for example by a second gateway
// instance in a test.
func (g *FakeGateway) Put(sess Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[sess.ID] = sess
}

var _ Gateway = (*FakeGateway)(nil)
