package repository

import (
	"errors"
	"fmt"

	"github.com/agiraud1/radar-fr/internal/domain/model"
)

// Sentinel kinds for store errors.
var (
	ErrUnsupportedDriver = errors.New("unsupported database driver")
	ErrMigrate           = errors.New("schema migration failed")
)

// Transient tags a backend failure of op as retryable I/O.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, model.ErrTransientIO, err)
}

// NotFound builds a not-found error for an entity.
func NotFound(entity string, id int64) error {
	return fmt.Errorf("%w: %s %d", model.ErrNotFound, entity, id)
}
