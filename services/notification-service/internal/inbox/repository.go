package inbox

import (
	"context"

	"github.com/clinicazen/platform/libs/db"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record marks eventID as received. It returns false when the event was
// already recorded, i.e. the message is a redelivery.
func (r *Repository) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1::uuid, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if db.IsConflict(err) {
		return false, nil
	}
	return false, err
}
