package gormstore

import (
	"time"

	"gorm.io/datatypes"
)

// StockItem mirrors the stock_items table. Position keeps the ledger's
// insertion order stable across restarts.
type StockItem struct {
	ItemID     string    `gorm:"primaryKey"`
	Name       string    `gorm:"not null"`
	Quantity   int64     `gorm:"not null"`
	PriceCents int64     `gorm:"not null"`
	Position   int64     `gorm:"not null;index:idx_stock_items_position"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (StockItem) TableName() string { return "stock_items" }

// ReceiptRecord mirrors the receipts archive table.
type ReceiptRecord struct {
	ReceiptID  string         `gorm:"primaryKey"`
	Lines      datatypes.JSON `gorm:"not null"`
	TotalCents int64          `gorm:"not null"`
	CreatedAt  time.Time      `gorm:"not null;index:idx_receipts_created"`
}

func (ReceiptRecord) TableName() string { return "receipts" }
