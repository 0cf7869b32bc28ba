package sqltable

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// DefaultTablePrefix is used when no prefix is configured
const DefaultTablePrefix = "t_dreg_"

// lock is a row of <prefix>lock. Timestamps are unix milliseconds so every database compares them the same way.
type lock struct {
	ID         int64  `gorm:"column:id;primaryKey;autoIncrement"`
	LockKey    string `gorm:"column:lock_key;size:256;not null;uniqueIndex"`
	LockOwner  string `gorm:"column:lock_owner;size:256;not null"`
	ClientID   int64  `gorm:"column:client_id;not null;index"`
	CreateTime int64  `gorm:"column:create_time;not null"`
}

// clientHeartbeat is a row of <prefix>client_heartbeat, keyed by the client id
type clientHeartbeat struct {
	ID                int64             `gorm:"column:id;primaryKey;autoIncrement:false"`
	ClientName        string            `gorm:"column:client_name;size:256;not null"`
	LastHeartbeatTime int64             `gorm:"column:last_heartbeat_time;not null"`
	CreateTime        int64             `gorm:"column:create_time;not null"`
	Metadata          map[string]string `gorm:"column:client_config;type:text;serializer:json"`
}

// Migrate creates or updates the lock and heartbeat tables.
// The table prefix is taken from the naming strategy of db.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&lock{}, &clientHeartbeat{}); err != nil {
		return fmt.Errorf("failed to migrate tables: %w", err)
	}
	log.Debugf("Tables are up to date (%s)", db.Dialector.Name())
	return nil
}
