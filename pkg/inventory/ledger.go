package inventory

import "sync"

// Ledger is the authoritative in-memory stock table. Insertion order is
// preserved so reference numbering stays stable across reads. All access
// goes through one coarse mutex; per-item locking is deliberately absent.
type Ledger struct {
	mu    sync.Mutex
	items map[ItemID]Item
	order []ItemID
}

// NewLedger builds a ledger from a snapshot, keeping the snapshot's order.
func NewLedger(snapshot Snapshot) *Ledger {
	ledger := &Ledger{
		items: make(map[ItemID]Item, len(snapshot)),
		order: make([]ItemID, 0, len(snapshot)),
	}
	for _, record := range snapshot {
		if _, exists := ledger.items[record.ID]; exists {
			continue
		}
		ledger.items[record.ID] = Item{
			Name:       record.Name,
			Quantity:   record.Quantity,
			PriceCents: record.PriceCents,
		}
		ledger.order = append(ledger.order, record.ID)
	}
	return ledger
}

// Get returns the record for id.
func (ledger *Ledger) Get(id ItemID) (Item, error) {
	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	item, exists := ledger.items[id]
	if !exists {
		return Item{}, ErrNotFound
	}
	return item, nil
}

// List returns every record in insertion order.
func (ledger *Ledger) List() []ListedItem {
	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	return ledger.listLocked()
}

func (ledger *Ledger) listLocked() []ListedItem {
	listed := make([]ListedItem, 0, len(ledger.order))
	for _, id := range ledger.order {
		listed = append(listed, ListedItem{ID: id, Item: ledger.items[id]})
	}
	return listed
}

// Upsert stores item under id. With createOnly set it fails with ErrConflict
// when the id is already present.
func (ledger *Ledger) Upsert(id ItemID, item Item, createOnly bool) error {
	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	_, exists := ledger.items[id]
	if exists && createOnly {
		return ErrConflict
	}
	if !exists {
		ledger.order = append(ledger.order, id)
	}
	ledger.items[id] = item
	return nil
}

// Update applies fn to the stored record atomically.
func (ledger *Ledger) Update(id ItemID, fn func(Item) (Item, error)) (Item, error) {
	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	item, exists := ledger.items[id]
	if !exists {
		return Item{}, ErrNotFound
	}
	updated, err := fn(item)
	if err != nil {
		return Item{}, err
	}
	ledger.items[id] = updated
	return updated, nil
}

// AdjustQuantity shifts the stored quantity by delta and returns the new
// quantity. A delta that would drive the quantity negative is rejected with
// no change.
func (ledger *Ledger) AdjustQuantity(id ItemID, delta int64) (int64, error) {
	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	item, exists := ledger.items[id]
	if !exists {
		return 0, ErrNotFound
	}
	updated := item.Quantity + delta
	if updated < 0 {
		return 0, &InsufficientStockError{ItemID: id, Available: item.Quantity}
	}
	item.Quantity = updated
	ledger.items[id] = item
	return updated, nil
}

// Remove deletes the record for id.
func (ledger *Ledger) Remove(id ItemID) error {
	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	return ledger.removeLocked(id)
}

func (ledger *Ledger) removeLocked(id ItemID) error {
	if _, exists := ledger.items[id]; !exists {
		return ErrNotFound
	}
	delete(ledger.items, id)
	for position, orderedID := range ledger.order {
		if orderedID == id {
			ledger.order = append(ledger.order[:position], ledger.order[position+1:]...)
			break
		}
	}
	return nil
}

// RemovePartial decrements the stored quantity by amount. A request for the
// whole stock or more collapses to a full remove, which keeps quantities from
// going negative. It reports whether the item was removed entirely along with
// the remaining quantity.
func (ledger *Ledger) RemovePartial(id ItemID, amount int64) (bool, int64, error) {
	if amount <= 0 {
		return false, 0, ErrInvalidQuantity
	}
	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	item, exists := ledger.items[id]
	if !exists {
		return false, 0, ErrNotFound
	}
	if amount >= item.Quantity {
		if err := ledger.removeLocked(id); err != nil {
			return false, 0, err
		}
		return true, 0, nil
	}
	item.Quantity -= amount
	ledger.items[id] = item
	return false, item.Quantity, nil
}

// Deduct validates every line against current stock and applies all
// deductions under one lock hold. Either every line commits or none does; no
// concurrent caller can observe a partially applied checkout.
func (ledger *Ledger) Deduct(lines []Line) error {
	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	for _, line := range lines {
		item, exists := ledger.items[line.ItemID]
		if !exists {
			return ErrNotFound
		}
		if item.Quantity < line.Quantity {
			return &InsufficientStockError{ItemID: line.ItemID, Available: item.Quantity}
		}
	}
	for _, line := range lines {
		item := ledger.items[line.ItemID]
		item.Quantity -= line.Quantity
		ledger.items[line.ItemID] = item
	}
	return nil
}

// Snapshot returns a consistent ordered copy for persistence.
func (ledger *Ledger) Snapshot() Snapshot {
	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	snapshot := make(Snapshot, 0, len(ledger.order))
	for _, id := range ledger.order {
		item := ledger.items[id]
		snapshot = append(snapshot, StockRecord{
			ID:         id,
			Name:       item.Name,
			Quantity:   item.Quantity,
			PriceCents: item.PriceCents,
		})
	}
	return snapshot
}

// Len returns the number of stored records.
func (ledger *Ledger) Len() int {
	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	return len(ledger.order)
}
