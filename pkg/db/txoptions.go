package db

import (
	"database/sql"

	"gorm.io/gorm"
)

// SerializableTxOptions returns the strictest isolation the dialect supports.
// sqlite serializes writers on its own and its driver rejects explicit
// isolation levels, so it gets the default options.
func SerializableTxOptions(db *gorm.DB) *sql.TxOptions {
	if db.Dialector.Name() == "sqlite" {
		return &sql.TxOptions{}
	}
	return &sql.TxOptions{Isolation: sql.LevelSerializable}
}
