package inventory

import (
	"context"
	"sync"
	"testing"
)

const fixedUnixUTC int64 = 1_700_000_000

// stubStore is an in-memory SnapshotStore recording every save.
type stubStore struct {
	mu       sync.Mutex
	snapshot Snapshot
	saves    int
	loadErr  error
	saveErr  error
}

func newStubStore(snapshot Snapshot) *stubStore {
	return &stubStore{snapshot: snapshot}
}

func (store *stubStore) Load(_ context.Context) (Snapshot, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.loadErr != nil {
		return nil, store.loadErr
	}
	return append(Snapshot(nil), store.snapshot...), nil
}

func (store *stubStore) Save(_ context.Context, snapshot Snapshot) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.saveErr != nil {
		return store.saveErr
	}
	store.snapshot = append(Snapshot(nil), snapshot...)
	store.saves++
	return nil
}

func (store *stubStore) savedSnapshot() Snapshot {
	store.mu.Lock()
	defer store.mu.Unlock()
	return append(Snapshot(nil), store.snapshot...)
}

func (store *stubStore) saveCount() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.saves
}

// recorderLogger captures operation log entries for assertions.
type recorderLogger struct {
	mu      sync.Mutex
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	logger.entries = append(logger.entries, entry)
}

func (logger *recorderLogger) recorded() []OperationLog {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	return append([]OperationLog(nil), logger.entries...)
}

// recorderArchiver captures archived receipts and can be told to fail.
type recorderArchiver struct {
	mu       sync.Mutex
	receipts []Receipt
	err      error
}

func (archiver *recorderArchiver) ArchiveReceipt(_ context.Context, receipt Receipt) error {
	archiver.mu.Lock()
	defer archiver.mu.Unlock()
	if archiver.err != nil {
		return archiver.err
	}
	archiver.receipts = append(archiver.receipts, receipt)
	return nil
}

func (archiver *recorderArchiver) archived() []Receipt {
	archiver.mu.Lock()
	defer archiver.mu.Unlock()
	return append([]Receipt(nil), archiver.receipts...)
}

func mustItemID(test *testing.T, raw string) ItemID {
	test.Helper()
	id, err := NewItemID(raw)
	if err != nil {
		test.Fatalf("item id %q: %v", raw, err)
	}
	return id
}

func mustNewService(test *testing.T, store SnapshotStore, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(context.Background(), store, func() int64 { return fixedUnixUTC }, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustAddItem(test *testing.T, service *Service, rawID string, name string, quantity int64, priceCents int64) ItemID {
	test.Helper()
	id := mustItemID(test, rawID)
	if err := service.AddItem(context.Background(), id, name, quantity, priceCents); err != nil {
		test.Fatalf("add item %s: %v", rawID, err)
	}
	return id
}

func mustAddLine(test *testing.T, service *Service, session *Session, id ItemID, quantity int64) {
	test.Helper()
	if err := service.AddLine(context.Background(), session, id, quantity); err != nil {
		test.Fatalf("add line %s x%d: %v", id.String(), quantity, err)
	}
}

func seedSnapshot(test *testing.T, records ...StockRecord) Snapshot {
	test.Helper()
	return append(Snapshot{}, records...)
}

func stockRecord(test *testing.T, rawID string, name string, quantity int64, priceCents int64) StockRecord {
	test.Helper()
	return StockRecord{
		ID:         mustItemID(test, rawID),
		Name:       name,
		Quantity:   quantity,
		PriceCents: priceCents,
	}
}
