// Package gormstore persists ledger snapshots and archived receipts in a
// relational database through GORM (sqlite or postgres).
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/stockroom/pkg/inventory"
)

const (
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19

	errorOperationStore  = "store"
	errorSubjectSnapshot = "snapshot"
	errorSubjectReceipt  = "receipt"
	errorCodeLoad        = "load"
	errorCodeSave        = "save"
	errorCodeInvalid     = "invalid"
	errorCodeDuplicate   = "duplicate"
	errorCodeInsert      = "insert"
)

// Store implements inventory.SnapshotStore and inventory.ReceiptArchiver
// over gorm.DB.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the backing tables.
func (store *Store) Migrate() error {
	return store.db.AutoMigrate(&StockItem{}, &ReceiptRecord{})
}

// Load reads every stock row in stored position order. An empty table is a
// valid empty snapshot.
func (store *Store) Load(ctx context.Context) (inventory.Snapshot, error) {
	var rows []StockItem
	err := store.db.WithContext(ctx).
		Order("position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectSnapshot, errorCodeLoad, err)
	}
	snapshot := make(inventory.Snapshot, 0, len(rows))
	for _, row := range rows {
		id, err := inventory.NewItemID(row.ItemID)
		if err != nil {
			return nil, wrapStoreError(errorSubjectSnapshot, errorCodeInvalid, err)
		}
		item, err := inventory.NewItem(row.Name, row.Quantity, row.PriceCents)
		if err != nil {
			return nil, wrapStoreError(errorSubjectSnapshot, errorCodeInvalid, err)
		}
		snapshot = append(snapshot, inventory.StockRecord{
			ID:         id,
			Name:       item.Name,
			Quantity:   item.Quantity,
			PriceCents: item.PriceCents,
		})
	}
	return snapshot, nil
}

// Save replaces the stored stock rows with the snapshot in one transaction.
func (store *Store) Save(ctx context.Context, snapshot inventory.Snapshot) error {
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		if err := transaction.Where("1 = 1").Delete(&StockItem{}).Error; err != nil {
			return err
		}
		if len(snapshot) == 0 {
			return nil
		}
		now := time.Now().UTC()
		rows := make([]StockItem, 0, len(snapshot))
		for position, record := range snapshot {
			rows = append(rows, StockItem{
				ItemID:     record.ID.String(),
				Name:       record.Name,
				Quantity:   record.Quantity,
				PriceCents: record.PriceCents,
				Position:   int64(position),
				UpdatedAt:  now,
			})
		}
		return transaction.Create(&rows).Error
	})
	if err != nil {
		return wrapStoreError(errorSubjectSnapshot, errorCodeSave, err)
	}
	return nil
}

type receiptLineJSON struct {
	ItemID         string `json:"item_id"`
	Name           string `json:"name"`
	Quantity       int64  `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SubtotalCents  int64  `json:"subtotal_cents"`
}

// ArchiveReceipt stores a committed receipt with its lines as JSON.
func (store *Store) ArchiveReceipt(ctx context.Context, receipt inventory.Receipt) error {
	lines := make([]receiptLineJSON, 0, len(receipt.Lines))
	for _, line := range receipt.Lines {
		lines = append(lines, receiptLineJSON{
			ItemID:         line.ItemID.String(),
			Name:           line.Name,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
			SubtotalCents:  line.SubtotalCents,
		})
	}
	encoded, err := json.Marshal(lines)
	if err != nil {
		return wrapStoreError(errorSubjectReceipt, errorCodeInvalid, err)
	}
	row := ReceiptRecord{
		ReceiptID:  receipt.ReceiptID,
		Lines:      datatypes.JSON(encoded),
		TotalCents: receipt.TotalCents,
		CreatedAt:  time.Unix(receipt.CreatedUnixUTC, 0).UTC(),
	}
	err = store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectReceipt, errorCodeDuplicate, inventory.ErrConflict)
	}
	if err != nil {
		return wrapStoreError(errorSubjectReceipt, errorCodeInsert, err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return inventory.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
