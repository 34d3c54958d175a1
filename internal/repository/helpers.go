package repository

import (
	"database/sql"
	"fmt"
)

// requireRowAffected converts a zero-row update into sql.ErrNoRows so
// services can map it to a not-found error.
func requireRowAffected(result sql.Result, entity string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", entity, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
