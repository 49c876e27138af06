package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"testing"

	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/model"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []Message
	fail map[string]error
}

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[msg.To[0]]; err != nil {
		return err
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

type countingFailures struct{ n map[string]int }

func (c *countingFailures) ObserveNotificationFailure(kind string) {
	if c.n == nil {
		c.n = map[string]int{}
	}
	c.n[kind]++
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleAppointment() model.Appointment {
	return model.Appointment{
		ID:               "appt-1",
		Date:             "2025-03-01",
		TimeSlot:         "10:00-10:30",
		ConsultationType: "General",
		Notes:            "<b>hi</b>",
		ContactEmail:     "alice@example.com",
		ContactName:      "Alice",
		CallLink:         "https://meet.example.com/appt-1",
	}
}

func TestFanoutNotifyBookedSendsToClientAndOperator(t *testing.T) {
	sender := &recordingSender{}
	f := NewFanout(sender, "ops@example.com", discardLogger(), nil)

	f.NotifyBooked(context.Background(), sampleAppointment())

	if len(sender.msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(sender.msgs))
	}
	if sender.msgs[0].To[0] != "alice@example.com" || sender.msgs[1].To[0] != "ops@example.com" {
		t.Fatalf("unexpected recipients %v %v", sender.msgs[0].To, sender.msgs[1].To)
	}
	if !strings.Contains(sender.msgs[0].HTML, "https://meet.example.com/appt-1") {
		t.Fatal("client mail should carry the call link")
	}
	if strings.Contains(sender.msgs[1].HTML, "<b>hi</b>") {
		t.Fatal("notes must be html-escaped")
	}
}

func TestFanoutFailureIsSwallowedAndCounted(t *testing.T) {
	sender := &recordingSender{fail: map[string]error{"alice@example.com": errors.New("smtp down")}}
	failures := &countingFailures{}
	f := NewFanout(sender, "ops@example.com", discardLogger(), failures)

	f.NotifyCancelled(context.Background(), sampleAppointment())

	if len(sender.msgs) != 1 || sender.msgs[0].To[0] != "ops@example.com" {
		t.Fatalf("operator mail should still be sent, got %+v", sender.msgs)
	}
	if failures.n[KindCancelled] != 1 {
		t.Fatalf("expected 1 counted failure, got %v", failures.n)
	}
}

func TestFanoutSkipsMissingOperator(t *testing.T) {
	sender := &recordingSender{}
	NewFanout(sender, "", discardLogger(), nil).NotifyBooked(context.Background(), sampleAppointment())
	if len(sender.msgs) != 1 {
		t.Fatalf("expected only the client mail, got %d", len(sender.msgs))
	}
}

func TestSMTPSenderBuildsMultipart(t *testing.T) {
	s := NewSMTPSender("localhost", "1025", "")
	var gotTo []string
	var gotMsg string
	s.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		if addr != "localhost:1025" || from != "no-reply@consultbook.local" {
			t.Errorf("unexpected addr/from %s %s", addr, from)
		}
		gotTo = to
		gotMsg = string(msg)
		return nil
	}

	err := s.Send(context.Background(), Message{To: []string{"alice@example.com"}, Subject: "Hi", Text: "plain", HTML: "<p>rich</p>"})
	if err != nil {
		t.Fatal(err)
	}
	if len(gotTo) != 1 || gotTo[0] != "alice@example.com" {
		t.Fatalf("unexpected recipients %v", gotTo)
	}
	for _, want := range []string{"Subject: Hi\r\n", "multipart/alternative", "text/plain", "<p>rich</p>"} {
		if !strings.Contains(gotMsg, want) {
			t.Fatalf("message missing %q:\n%s", want, gotMsg)
		}
	}
}

func TestNewSendGridSenderNilWithoutKey(t *testing.T) {
	if NewSendGridSender(SendGridConfig{}) != nil {
		t.Fatal("expected nil sender without api key")
	}
}

func TestSendGridSenderPostsMail(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer SG.test" {
			t.Errorf("unexpected auth header %q", got)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewSendGridSender(SendGridConfig{APIKey: "SG.test", FromEmail: "bookings@example.com", Endpoint: srv.URL + "/v3/mail/send"})
	err := s.Send(context.Background(), Message{To: []string{"alice@example.com"}, Subject: "Confirmed", Text: "t", HTML: "<p>h</p>"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if body["subject"] != "Confirmed" {
		t.Fatalf("unexpected payload %v", body)
	}
	from, _ := body["from"].(map[string]any)
	if from["name"] != "Brilliant Consulting" {
		t.Fatalf("unexpected from %v", from)
	}
}

func TestSendGridSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewSendGridSender(SendGridConfig{APIKey: "SG.bad", Endpoint: srv.URL})
	if err := s.Send(context.Background(), Message{To: []string{"a@example.com"}, Subject: "x", Text: "y"}); err == nil {
		t.Fatal("expected error on 401")
	}
}
