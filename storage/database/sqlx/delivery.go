package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/darasahq/darasa/core/replay"
)

type deliveryRepository struct {
	db *sqlx.DB
}

var _ replay.Repository = (*deliveryRepository)(nil) // interface compliance check

func NewDeliveryRepository(db *sqlx.DB) *deliveryRepository {
	return &deliveryRepository{db: db}
}

func (repo deliveryRepository) HasFired(ctx context.Context, userID, entryID string) (bool, error) {
	var fired bool
	err := repo.db.GetContext(
		ctx, &fired,
		`SELECT EXISTS (SELECT 1 FROM delivery_log WHERE user_id = $1 AND entry_id = $2)`,
		userID, entryID,
	)
	if err != nil {
		return false, errors.Wrap(err, "checking delivery")
	}
	return fired, nil
}

// RecordFired relies on the (user_id, entry_id) unique constraint for
// at-most-once semantics: the same code path serves first delivery and replay.
func (repo deliveryRepository) RecordFired(ctx context.Context, rec replay.Record) error {
	res, err := repo.db.NamedExecContext(
		ctx,
		`INSERT INTO delivery_log (id, user_id, entry_id, fired_at)
		 VALUES (:id, :user_id, :entry_id, :fired_at)
		 ON CONFLICT ON CONSTRAINT delivery_log_user_entry_uniq DO NOTHING`,
		rec,
	)
	if err != nil {
		return errors.Wrap(err, "recording delivery")
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "recording delivery")
	}
	if inserted == 0 {
		return replay.ErrDuplicateDelivery
	}
	return nil
}

func (repo deliveryRepository) History(ctx context.Context, userID string) ([]replay.Record, error) {
	var recs []replay.Record
	err := repo.db.SelectContext(
		ctx, &recs,
		`SELECT id, user_id, entry_id, fired_at FROM delivery_log
		 WHERE user_id = $1 ORDER BY fired_at ASC, entry_id ASC`,
		userID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying delivery history")
	}
	return recs, nil
}
