// Package sqltable implements the table.ILockTable and table.IHeartbeatTable
// interfaces on top of gorm. It is the production backend: any number of
// processes that point at the same database share locks and see each other's
// heartbeats.
//
// Supported databases (DialectorByName):
//
//   - MySQL via gorm.io/driver/mysql (go-sql-driver, clientFoundRows is always enabled)
//   - PostgreSQL via gorm.io/driver/postgres (pgx)
//   - SQLite via gorm.io/driver/sqlite (used in tests and for single host setups)
//
// Schema:
//
//	<prefix>lock              id (generated), lock_key (unique index), lock_owner, client_id (index), create_time
//	<prefix>client_heartbeat  id (client id), client_name, last_heartbeat_time, create_time, client_config
//
// Timestamps are stored as unix milliseconds. client_config holds the client
// metadata as a JSON object (NULL if empty). Migrate (or Options.AutoMigrate)
// runs gorm's AutoMigrate for both models.
//
// Error Mapping:
//
//	Connections are opened with TranslateError, so unique violations of every
//	driver surface as gorm.ErrDuplicatedKey and are reported as
//	table.RetCDuplicateKey. Every other error is reported as table.RetCInternalError.
//
// Usage Example:
//
//	tables, err := sqltable.Open(ctx, sqltable.Options{
//	    Driver:      "mysql",
//	    DSN:         "user:pass@tcp(localhost:3306)/streampark",
//	    AutoMigrate: true,
//	})
//	if err != nil {
//	    // Handle error
//	}
//	defer tables.Close()
package sqltable
