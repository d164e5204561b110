// Package postgres holds the gorm-backed repositories.
package postgres

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
)

// classify wraps transient connection failures in domain.ErrUnavailable so
// read paths can retry them.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) || errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
