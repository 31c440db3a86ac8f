package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Service owns the ledger and wires it to the persistence gateway. All item
// mutations pass through here so every commit is followed by a snapshot save
// before the call returns; a failed save surfaces as ErrSnapshotFailed but
// the in-memory ledger stays authoritative for the running process.
type Service struct {
	ledger    *Ledger
	store     SnapshotStore
	sessions  *SessionManager
	nowFn     func() int64
	logger    OperationLogger
	archiver  ReceiptArchiver
	persistMu sync.Mutex
}

// NewService loads the last snapshot from store and wires a Service around it.
func NewService(ctx context.Context, store SnapshotStore, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	snapshot, err := store.Load(ctx)
	if err != nil {
		return nil, WrapError("service", "snapshot", "load", err)
	}
	service := &Service{
		ledger:   NewLedger(snapshot),
		store:    store,
		sessions: NewSessionManager(),
		nowFn:    now,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// AddItem creates a new record; an existing id is a conflict.
func (service *Service) AddItem(ctx context.Context, id ItemID, name string, quantity int64, priceCents int64) error {
	operationError := func() error {
		item, err := NewItem(name, quantity, priceCents)
		if err != nil {
			return err
		}
		if err := service.ledger.Upsert(id, item, true); err != nil {
			return err
		}
		return service.persist(ctx)
	}()
	service.logOperation(ctx, OperationLog{
		Operation: operationAddItem,
		ItemID:    id,
		Quantity:  quantity,
		Error:     operationError,
	})
	return operationError
}

// UpdateItem applies a partial update to an existing record. Numeric fields
// either replace or increment the stored value depending on the patch flags;
// a result that would go negative is rejected with no change.
func (service *Service) UpdateItem(ctx context.Context, id ItemID, patch ItemPatch) error {
	operationError := func() error {
		_, err := service.ledger.Update(id, func(item Item) (Item, error) {
			name := item.Name
			if patch.Name != nil {
				name = *patch.Name
			}
			quantity := item.Quantity
			if patch.Quantity != nil {
				if patch.QuantityAdd {
					quantity += *patch.Quantity
				} else {
					quantity = *patch.Quantity
				}
			}
			priceCents := item.PriceCents
			if patch.PriceCents != nil {
				if patch.PriceAdd {
					priceCents += *patch.PriceCents
				} else {
					priceCents = *patch.PriceCents
				}
			}
			return NewItem(name, quantity, priceCents)
		})
		if err != nil {
			return err
		}
		return service.persist(ctx)
	}()
	service.logOperation(ctx, OperationLog{
		Operation: operationUpdateItem,
		ItemID:    id,
		Error:     operationError,
	})
	return operationError
}

// RemoveItem deletes a record entirely.
func (service *Service) RemoveItem(ctx context.Context, id ItemID) error {
	operationError := func() error {
		if err := service.ledger.Remove(id); err != nil {
			return err
		}
		return service.persist(ctx)
	}()
	service.logOperation(ctx, OperationLog{
		Operation: operationRemoveItem,
		ItemID:    id,
		Error:     operationError,
	})
	return operationError
}

// RemovePartial takes amount units out of stock, collapsing to a full remove
// when the request covers the whole remaining quantity. It reports whether
// the record was removed entirely.
func (service *Service) RemovePartial(ctx context.Context, id ItemID, amount int64) (bool, error) {
	var removedAll bool
	operationError := func() error {
		removed, _, err := service.ledger.RemovePartial(id, amount)
		if err != nil {
			return err
		}
		removedAll = removed
		return service.persist(ctx)
	}()
	service.logOperation(ctx, OperationLog{
		Operation: operationRemovePartial,
		ItemID:    id,
		Quantity:  amount,
		Error:     operationError,
	})
	return removedAll, operationError
}

// AdjustQuantity shifts stock for id by delta and returns the new quantity.
func (service *Service) AdjustQuantity(ctx context.Context, id ItemID, delta int64) (int64, error) {
	var updated int64
	operationError := func() error {
		newQuantity, err := service.ledger.AdjustQuantity(id, delta)
		if err != nil {
			return err
		}
		updated = newQuantity
		return service.persist(ctx)
	}()
	service.logOperation(ctx, OperationLog{
		Operation: operationAdjust,
		ItemID:    id,
		Quantity:  delta,
		Error:     operationError,
	})
	return updated, operationError
}

// Item returns a single record.
func (service *Service) Item(id ItemID) (Item, error) {
	return service.ledger.Get(id)
}

// Items returns every record in insertion order.
func (service *Service) Items() []ListedItem {
	return service.ledger.List()
}

// Search returns records whose id or name contains the query, matched
// case-insensitively. An empty query returns everything.
func (service *Service) Search(query string) []ListedItem {
	needle := strings.ToLower(strings.TrimSpace(query))
	listed := service.ledger.List()
	if needle == "" {
		return listed
	}
	matched := make([]ListedItem, 0, len(listed))
	for _, candidate := range listed {
		if strings.Contains(strings.ToLower(candidate.ID.String()), needle) ||
			strings.Contains(strings.ToLower(candidate.Item.Name), needle) {
			matched = append(matched, candidate)
		}
	}
	return matched
}

// LowStock returns records with quantity strictly below threshold.
func (service *Service) LowStock(threshold int64) []ListedItem {
	listed := service.ledger.List()
	low := make([]ListedItem, 0, len(listed))
	for _, candidate := range listed {
		if candidate.Item.Quantity < threshold {
			low = append(low, candidate)
		}
	}
	return low
}

// Catalogue returns every record sorted by display name.
func (service *Service) Catalogue() []ListedItem {
	listed := service.ledger.List()
	sort.SliceStable(listed, func(left, right int) bool {
		return strings.ToLower(listed[left].Item.Name) < strings.ToLower(listed[right].Item.Name)
	})
	return listed
}

// BeginSession opens a fresh reservation session and returns its token.
func (service *Service) BeginSession() (string, *Session) {
	return service.sessions.Begin()
}

// ResumeSession returns the session behind token.
func (service *Service) ResumeSession(token string) (*Session, error) {
	return service.sessions.Resume(token)
}

// ReleaseSession forgets the session behind token.
func (service *Service) ReleaseSession(token string) {
	service.sessions.Release(token)
}

// Flush writes the current ledger snapshot, for the shutdown path.
func (service *Service) Flush(ctx context.Context) error {
	operationError := service.persist(ctx)
	service.logOperation(ctx, OperationLog{
		Operation: operationFlush,
		Error:     operationError,
	})
	return operationError
}

// persist takes the snapshot and saves it under one mutex hold, so
// concurrent mutations cannot interleave an older snapshot over a newer one;
// the last save to run always carries the newest ledger state.
func (service *Service) persist(ctx context.Context) error {
	service.persistMu.Lock()
	defer service.persistMu.Unlock()
	if err := service.store.Save(ctx, service.ledger.Snapshot()); err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshotFailed, err)
	}
	return nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
