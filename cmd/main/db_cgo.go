//go:build cgo_sqlite

package main

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

const sqlDriver = "sqlite3"

func initDB(dataSource string) (*sql.DB, error) {
	return openDB(sqlDriver, dataSource)
}
