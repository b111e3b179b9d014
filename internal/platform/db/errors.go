package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Postgres SQLSTATE codes the fulfillment tables can raise.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// MapError translates driver errors into the shared error taxonomy. Errors that are
// already classified, or that carry no Postgres code, are returned unchanged.
func MapError(err error) error {
	if err == nil || shared.KindOf(err) != shared.KindInternal {
		return err
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return fmt.Errorf("%w: %s", shared.ErrDuplicateKey, constraintDetail(pgErr))
	case codeForeignKeyViolation:
		return fmt.Errorf("%w: %s", shared.ErrConflict, constraintDetail(pgErr))
	case codeCheckViolation:
		if strings.HasPrefix(pgErr.ConstraintName, "warehouse_stock_") {
			return fmt.Errorf("%w: %s", shared.ErrInsufficientStock, constraintDetail(pgErr))
		}
		return fmt.Errorf("%w: %s", shared.ErrValidation, constraintDetail(pgErr))
	case codeSerializationFailure, codeDeadlockDetected:
		// Repository transactions run at ReadCommitted (see TxOptions), so these only surface
		// when two requests lock the same rows in opposite order. Retrying is safe.
		return fmt.Errorf("%w: concurrent update, resubmit the request", shared.ErrConflict)
	}
	return err
}

func constraintDetail(pgErr *pgconn.PgError) string {
	if pgErr.ConstraintName != "" {
		return pgErr.ConstraintName
	}
	return pgErr.Message
}
