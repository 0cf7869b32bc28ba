package sqltable

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dReg/lib/table"
	"github.com/lni/dragonboat/v4/logger"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var log = logger.GetLogger("table")

// Options configures how Open connects to the database.
type Options struct {
	Driver       string // mysql, postgres or sqlite
	DSN          string // driver specific data source name
	TablePrefix  string // prefix of both table names ("" = DefaultTablePrefix)
	AutoMigrate  bool   // create the tables if they do not exist
	MaxOpenConns int    // 0 = driver default (sqlite is always limited to one connection)
}

// Open connects to the database described by opts and returns both tables.
// The returned Tables.Close closes the connection pool.
func Open(ctx context.Context, opts Options) (table.Tables, error) {
	db, err := openDB(ctx, opts)
	if err != nil {
		return table.Tables{}, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return table.Tables{}, err
	}

	if opts.AutoMigrate {
		if err := Migrate(ctx, db); err != nil {
			_ = sqlDB.Close()
			return table.Tables{}, err
		}
	}

	log.Infof("Connected to %s database", db.Dialector.Name())

	tables := NewTables(db)
	tables.Close = sqlDB.Close
	return tables, nil
}

// openDB opens and pings the connection pool
func openDB(ctx context.Context, opts Options) (*gorm.DB, error) {
	dialector, err := DialectorByName(opts.Driver, opts.DSN)
	if err != nil {
		return nil, err
	}

	prefix := opts.TablePrefix
	if prefix == "" {
		prefix = DefaultTablePrefix
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		// report unique violations of every driver as gorm.ErrDuplicatedKey
		TranslateError:         true,
		SkipDefaultTransaction: true,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   prefix,
			SingularTable: true,
		},
		Logger: newGormLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialector.Name(), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	switch {
	case dialector.Name() == "sqlite":
		// sqlite allows a single writer, serializing in the pool avoids SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
	case opts.MaxOpenConns > 0:
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", dialector.Name(), err)
	}
	return db, nil
}

// NewTables creates both tables on an existing gorm connection.
// The connection is owned by the caller, so the returned Tables.Close is nil.
func NewTables(db *gorm.DB) table.Tables {
	return table.Tables{
		Locks:      NewLockTable(db),
		Heartbeats: NewHeartbeatTable(db),
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// logWriter forwards the gorm log output to the table logger
type logWriter struct{}

func (logWriter) Printf(format string, args ...any) {
	log.Warningf(format, args...)
}

// newGormLogger reports slow queries and failed statements, record not found is expected
func newGormLogger() gormlogger.Interface {
	return gormlogger.New(logWriter{}, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

// toMillis and fromMillis convert between time.Time and the stored column values
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// convertErr maps gorm errors to table errors
func convertErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return table.NewError(table.RetCDuplicateKey, err.Error())
	default:
		return table.NewError(table.RetCInternalError, err.Error())
	}
}
