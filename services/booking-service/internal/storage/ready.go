package storage

import (
	"context"

	"github.com/clinicazen/platform/libs/db"
)

func (s *Store) Ping(ctx context.Context) error {
	return db.ReadyCheck(s.pool)(ctx)
}
