package sqltable

import (
	"fmt"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// DialectorByName returns the gorm dialector for a configured driver name.
// Nothing is connected until the dialector is opened.
func DialectorByName(name, dsn string) (gorm.Dialector, error) {
	switch strings.ToLower(name) {
	case "mysql":
		dsn, err := mysqlDSN(dsn)
		if err != nil {
			return nil, err
		}
		return mysql.Open(dsn), nil
	case "postgres", "postgresql", "pgx":
		return postgres.Open(dsn), nil
	case "sqlite", "sqlite3":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported sql driver %q (expected one of: mysql, postgres, sqlite)", name)
	}
}

// mysqlDSN enables clientFoundRows, so UPDATE reports matched rows even if no value changed
func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}
