package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned by repositories when a row does not exist.
var ErrNotFound = errors.New("record not found")

// MapNoRows converts pgx.ErrNoRows into ErrNotFound and passes other errors
// through unchanged.
func MapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
