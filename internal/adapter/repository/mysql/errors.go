package mysql

import (
	"errors"
	"fmt"
	"strings"

	"approval-engine/internal/domain/approval"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// MySQL server error numbers
const (
	erDupEntry        = 1062
	erLockWaitTimeout = 1205
	erLockDeadlock    = 1213
)

// Postgres SQLSTATE codes
var pgConflictCodes = map[string]bool{
	"23505": true, // unique_violation
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
}

// Classify maps a driver error onto the approval error taxonomy.
// Domain errors and gorm.ErrRecordNotFound pass through unchanged.
func Classify(err error) error {
	if err == nil || approval.IsDomainError(err) || errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if isConflict(err) {
		return fmt.Errorf("%w: %v", approval.ErrConcurrencyConflict, err)
	}
	return fmt.Errorf("%w: %w", approval.ErrPersistence, err)
}

func isConflict(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var me *mysqldrv.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case erDupEntry, erLockWaitTimeout, erLockDeadlock:
			return true
		}
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pgConflictCodes[pe.Code]
	}
	msg := err.Error()
	// sqlite
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "UNIQUE constraint failed")
}
