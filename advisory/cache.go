package advisory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type advisoryRow struct {
	CropID    string         `gorm:"primaryKey"`
	Payload   datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time
}

func (advisoryRow) TableName() string { return "advisories" }

// Cache keeps the last advisory per crop id.
type Cache struct {
	db *gorm.DB
}

func OpenCache(path string) (*Cache, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.AutoMigrate(&advisoryRow{}); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return &Cache{db: db}, nil
}

// Get returns the cached advisory for cropID and when it was stored.
func (c *Cache) Get(ctx context.Context, cropID string) (Advisory, time.Time, bool, error) {
	var row advisoryRow
	err := c.db.WithContext(ctx).Where("crop_id = ?", cropID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Advisory{}, time.Time{}, false, nil
	}
	if err != nil {
		return Advisory{}, time.Time{}, false, err
	}
	var a Advisory
	if err := json.Unmarshal(row.Payload, &a); err != nil {
		return Advisory{}, time.Time{}, false, fmt.Errorf("decode cached advisory: %w", err)
	}
	return a, row.UpdatedAt, true, nil
}

func (c *Cache) Put(ctx context.Context, a Advisory, at time.Time) error {
	a.Stale = false
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	row := advisoryRow{CropID: a.CropID, Payload: datatypes.JSON(payload), UpdatedAt: at.UTC()}
	return c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "crop_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&row).Error
}

func (c *Cache) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
