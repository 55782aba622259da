package db

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// SetLocalLockTimeout bounds row-lock waits for the current transaction.
// Postgres only; other dialects rely on the caller's context deadline.
func SetLocalLockTimeout(tx *gorm.DB, timeout time.Duration) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec(
		fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeout.Milliseconds()),
	).Error
}
