package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/brilliant-consulting/consultbook/libs/db"
)

type ProviderEvent struct {
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         []byte
}

var ErrDuplicateProviderEvent = errors.New("duplicate provider event")

type ProviderEventRepository struct {
	conn db.Conn
}

func NewProviderEventRepository(conn db.Conn) *ProviderEventRepository {
	return &ProviderEventRepository{conn: conn}
}

func (r *ProviderEventRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.conn.Begin(ctx)
}

// Insert records a webhook delivery. Replays of an already recorded event
// return ErrDuplicateProviderEvent.
func (r *ProviderEventRepository) Insert(ctx context.Context, tx pgx.Tx, evt ProviderEvent) error {
	if !json.Valid(evt.Payload) {
		return errors.New("provider event payload is not valid json")
	}
	tag, err := tx.Exec(ctx, `
		INSERT INTO provider_events (provider, provider_event_id, event_type, payload)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (provider, provider_event_id) DO NOTHING
	`, evt.Provider, evt.ProviderEventID, evt.EventType, string(evt.Payload))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateProviderEvent
	}
	return nil
}
