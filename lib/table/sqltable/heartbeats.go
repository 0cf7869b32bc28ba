package sqltable

import (
	"context"
	"maps"

	"github.com/ValentinKolb/dReg/lib/table"
	"gorm.io/gorm"
)

type heartbeatTableImpl struct {
	db *gorm.DB
}

// NewHeartbeatTable creates the heartbeat table on an existing gorm connection.
func NewHeartbeatTable(db *gorm.DB) table.IHeartbeatTable {
	return &heartbeatTableImpl{db: db}
}

func (t *heartbeatTableImpl) SelectAll(ctx context.Context) ([]table.HeartbeatRecord, error) {
	var rows []clientHeartbeat
	if err := t.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, convertErr(err)
	}
	recs := make([]table.HeartbeatRecord, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, table.HeartbeatRecord{
			ID:                row.ID,
			ClientName:        row.ClientName,
			LastHeartbeatTime: fromMillis(row.LastHeartbeatTime),
			CreateTime:        fromMillis(row.CreateTime),
			Metadata:          row.Metadata,
		})
	}
	return recs, nil
}

func (t *heartbeatTableImpl) DeleteByIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return convertErr(t.db.WithContext(ctx).Delete(&clientHeartbeat{}, ids).Error)
}

func (t *heartbeatTableImpl) UpdateByID(ctx context.Context, rec table.HeartbeatRecord) (bool, error) {
	row := heartbeatRow(rec)
	// Select writes zero values too, the whole row is overwritten
	res := t.db.WithContext(ctx).
		Model(&clientHeartbeat{ID: rec.ID}).
		Select("client_name", "last_heartbeat_time", "create_time", "client_config").
		Updates(&row)
	if res.Error != nil {
		return false, convertErr(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (t *heartbeatTableImpl) Insert(ctx context.Context, rec table.HeartbeatRecord) error {
	if rec.ID == 0 {
		return table.NewError(table.RetCInvalidRecord, "client id is required")
	}
	row := heartbeatRow(rec)
	return convertErr(t.db.WithContext(ctx).Create(&row).Error)
}

// heartbeatRow converts rec into a row, empty metadata is stored as NULL
func heartbeatRow(rec table.HeartbeatRecord) clientHeartbeat {
	row := clientHeartbeat{
		ID:                rec.ID,
		ClientName:        rec.ClientName,
		LastHeartbeatTime: toMillis(rec.LastHeartbeatTime),
		CreateTime:        toMillis(rec.CreateTime),
	}
	if len(rec.Metadata) > 0 {
		row.Metadata = maps.Clone(rec.Metadata)
	}
	return row
}
