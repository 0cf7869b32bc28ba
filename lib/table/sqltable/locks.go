package sqltable

import (
	"context"
	"errors"

	"github.com/ValentinKolb/dReg/lib/table"
	"gorm.io/gorm"
)

type lockTableImpl struct {
	db *gorm.DB
}

// NewLockTable creates the lock table on an existing gorm connection.
func NewLockTable(db *gorm.DB) table.ILockTable {
	return &lockTableImpl{db: db}
}

func (t *lockTableImpl) Insert(ctx context.Context, rec *table.LockRecord) error {
	if rec == nil || rec.LockKey == "" {
		return table.NewError(table.RetCInvalidRecord, "lock key is required")
	}

	row := lock{
		LockKey:    rec.LockKey,
		LockOwner:  rec.LockOwner,
		ClientID:   rec.ClientID,
		CreateTime: toMillis(rec.CreateTime),
	}
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		return convertErr(err)
	}
	rec.ID = row.ID
	return nil
}

func (t *lockTableImpl) DeleteByID(ctx context.Context, id int64) error {
	return convertErr(t.db.WithContext(ctx).Delete(&lock{}, id).Error)
}

func (t *lockTableImpl) SelectByKey(ctx context.Context, key string) (table.LockRecord, bool, error) {
	var row lock
	err := t.db.WithContext(ctx).Where("lock_key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return table.LockRecord{}, false, nil
	}
	if err != nil {
		return table.LockRecord{}, false, convertErr(err)
	}
	return row.record(), true, nil
}

func (t *lockTableImpl) SelectAll(ctx context.Context) ([]table.LockRecord, error) {
	var rows []lock
	if err := t.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, convertErr(err)
	}
	recs := make([]table.LockRecord, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, row.record())
	}
	return recs, nil
}

func (t *lockTableImpl) DeleteByClientIDs(ctx context.Context, clientIDs []int64) error {
	if len(clientIDs) == 0 {
		return nil
	}
	return convertErr(t.db.WithContext(ctx).Where("client_id IN ?", clientIDs).Delete(&lock{}).Error)
}

func (l lock) record() table.LockRecord {
	return table.LockRecord{
		ID:         l.ID,
		LockKey:    l.LockKey,
		LockOwner:  l.LockOwner,
		ClientID:   l.ClientID,
		CreateTime: fromMillis(l.CreateTime),
	}
}
