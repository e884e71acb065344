package database

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jdmarch/gauntlet/internal/models"
)

// MapStorageError normalizes Postgres errors for the service layer.
// Missing rows become ErrNotFound; everything else collapses into
// ErrStorageUnavailable so the services above can fail closed on it
// without inspecting driver internals.
func MapStorageError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
}
