// Package payments creates and reads back provider-hosted checkout sessions.
package payments

import (
	"context"
	"errors"
)

type PaymentStatus string

const (
	StatusPaid              PaymentStatus = "paid"
	StatusUnpaid            PaymentStatus = "unpaid"
	StatusNoPaymentRequired PaymentStatus = "no_payment_required"
)

var ErrSessionNotFound = errors.New("payment session not found")

type Session struct {
	ID            string
	URL           string
	PaymentStatus PaymentStatus
	Metadata      map[string]string
	CustomerEmail string
	AmountTotal   int64
	Currency      string
}

func (s Session) Paid() bool {
	return s.PaymentStatus == StatusPaid
}

type CreateSessionRequest struct {
	CustomerEmail string
	AmountCents   int64
	Currency      string
	Description   string
	Metadata      map[string]string
}

type Gateway interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (Session, error)
	RetrieveSession(ctx context.Context, id string) (Session, error)
}
