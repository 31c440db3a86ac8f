package inventory

import (
	"context"
	"fmt"
	"strings"
)

// ItemID identifies a stock item. Stored and compared in upper case.
type ItemID struct {
	value string
}

// NewItemID validates and case-normalizes an item id.
func NewItemID(raw string) (ItemID, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if normalized == "" {
		return ItemID{}, fmt.Errorf("%w: empty value", ErrInvalidItemID)
	}
	return ItemID{value: normalized}, nil
}

// String returns the normalized identifier.
func (id ItemID) String() string {
	return id.value
}

// Item is the stored record for one stock item.
type Item struct {
	Name       string
	Quantity   int64
	PriceCents int64
}

// NewItem validates a record's fields.
func NewItem(name string, quantity int64, priceCents int64) (Item, error) {
	trimmedName := strings.TrimSpace(name)
	if trimmedName == "" {
		return Item{}, fmt.Errorf("%w: empty value", ErrInvalidItemName)
	}
	if quantity < 0 {
		return Item{}, fmt.Errorf("%w: must be non-negative", ErrInvalidQuantity)
	}
	if priceCents < 0 {
		return Item{}, fmt.Errorf("%w: must be non-negative", ErrInvalidPriceCents)
	}
	return Item{Name: trimmedName, Quantity: quantity, PriceCents: priceCents}, nil
}

// ListedItem pairs an item with its identifier for ordered enumeration.
type ListedItem struct {
	ID   ItemID
	Item Item
}

// StockRecord is one persisted row of a ledger snapshot.
type StockRecord struct {
	ID         ItemID
	Name       string
	Quantity   int64
	PriceCents int64
}

// Snapshot is a durable, ordered copy of the whole ledger.
type Snapshot []StockRecord

// SnapshotStore is the persistence gateway contract used by Service.
// Load must yield an empty snapshot for a missing or malformed backing store.
type SnapshotStore interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snapshot Snapshot) error
}

// Line is one reserved (item, quantity) pair inside a session. Name and unit
// price are captured when the line is first added so a later ledger price
// change does not alter an in-flight cart.
type Line struct {
	ItemID     ItemID
	Name       string
	Quantity   int64
	PriceCents int64
}

// ReceiptLine is one settled line of a committed checkout.
type ReceiptLine struct {
	ItemID         ItemID
	Name           string
	Quantity       int64
	UnitPriceCents int64
	SubtotalCents  int64
}

// Receipt is the immutable result of a successful checkout.
type Receipt struct {
	ReceiptID      string
	Lines          []ReceiptLine
	TotalCents     int64
	CreatedUnixUTC int64
}

// ReceiptArchiver records committed receipts in a durable collaborator store.
type ReceiptArchiver interface {
	ArchiveReceipt(ctx context.Context, receipt Receipt) error
}

// ItemPatch describes a partial update. Nil fields keep the stored value;
// the Add flags switch the numeric fields from replace to increment.
type ItemPatch struct {
	Name        *string
	Quantity    *int64
	QuantityAdd bool
	PriceCents  *int64
	PriceAdd    bool
}
