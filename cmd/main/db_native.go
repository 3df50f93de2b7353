//go:build !cgo_sqlite

package main

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

const sqlDriver = "sqlite"

func initDB(dataSource string) (*sql.DB, error) {
	return openDB(sqlDriver, dataSource)
}
