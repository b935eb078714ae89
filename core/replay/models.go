package replay

import (
	"context"
	"errors"
	"time"

	"github.com/darasahq/darasa/core/script"
)

var (
	// errors
	ErrDuplicateDelivery = errors.New("delivery already recorded for this user and entry")
)

type (
	// RenderContext holds the per-request placeholder values known to the host
	// (first name, lessons remaining, ...), keyed by token name.
	RenderContext map[string]string

	// Event is one rendered, user-facing script event. Safe to render directly;
	// no further templating applies.
	Event struct {
		EntryID   string      `json:"entry_id"`
		PersonaID string      `json:"persona_id,omitempty"`
		Kind      script.Kind `json:"kind"`
		Message   string      `json:"message"`
		FiredAt   time.Time   `json:"fired_at"` // UTC
	}

	// Record is one delivery-ledger row proving an entry already fired for a
	// user. Created once, never updated.
	Record struct {
		ID      string    `json:"id" db:"id"`
		UserID  string    `json:"user_id" db:"user_id"`
		EntryID string    `json:"entry_id" db:"entry_id"`
		FiredAt time.Time `json:"fired_at" db:"fired_at"` // UTC
	}

	// DeliveryIntent is emitted for day-keyed entries that imply an email/SMS
	// send. The host's side channels consume intents independently of the
	// ledger write; a failed send never rolls the ledger back.
	DeliveryIntent struct {
		UserID        string            `json:"user_id"`
		EntryID       string            `json:"entry_id"`
		Channel       script.Channel    `json:"channel"`
		Recipient     string            `json:"recipient"`
		RecipientName string            `json:"recipient_name"`
		Template      string            `json:"template"`
		Vars          map[string]string `json:"vars"`
	}

	// Repository is the delivery ledger: idempotent at-most-once delivery
	// tracking per (user, entry) pair.
	Repository interface {
		// HasFired reports whether the entry already fired for the user.
		HasFired(ctx context.Context, userID, entryID string) (bool, error)
		// RecordFired appends a ledger row. A second call for the same
		// (user, entry) pair fails with ErrDuplicateDelivery.
		RecordFired(ctx context.Context, rec Record) error
		// History returns everything the user has already seen, ascending by
		// firedAt, with no duplicate entry ids.
		History(ctx context.Context, userID string) ([]Record, error)
	}
)

// Merged returns a copy of base overlaid with extra token values.
func (rc RenderContext) Merged(extra map[string]string) RenderContext {
	merged := make(RenderContext, len(rc)+len(extra))
	for k, v := range rc {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
