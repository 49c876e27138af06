package booking

import "errors"

var (
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidBooking     = errors.New("invalid booking")
	ErrNoPendingBooking   = errors.New("no pending booking")
	ErrPaymentIncomplete  = errors.New("payment incomplete")
	ErrSlotConflict       = errors.New("slot conflict")
	ErrInvalidMetadata    = errors.New("invalid payment session metadata")
	ErrInvalidSession     = errors.New("invalid payment session")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)
