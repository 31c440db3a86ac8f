// Package filestore persists ledger snapshots as a flat JSON file, one
// object keyed by item id. The format stays readable and diffable; key order
// in the file is the ledger's insertion order.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/MarkoPoloResearchLab/stockroom/pkg/inventory"
	"go.uber.org/zap"
)

// Store reads and writes one snapshot file.
type Store struct {
	path   string
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger wires a logger for recovery warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(store *Store) {
		store.logger = logger
	}
}

// New returns a Store writing to path.
func New(path string, options ...Option) *Store {
	store := &Store{path: path, logger: zap.NewNop()}
	for _, option := range options {
		if option != nil {
			option(store)
		}
	}
	return store
}

type recordJSON struct {
	Name           string `json:"name"`
	Quantity       *int64 `json:"quantity,omitempty"`
	LegacyQuantity *int64 `json:"qty,omitempty"`
	PriceCents     int64  `json:"price_cents"`
}

// Load reads the snapshot file. A missing or malformed file yields an empty
// snapshot so a fresh or damaged store never blocks startup; damage is
// logged, not surfaced.
func (store *Store) Load(_ context.Context) (inventory.Snapshot, error) {
	data, err := os.ReadFile(store.path)
	if errors.Is(err, fs.ErrNotExist) {
		return inventory.Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	snapshot, err := decodeSnapshot(data)
	if err != nil {
		store.logger.Warn("snapshot file malformed, starting empty",
			zap.String("path", store.path), zap.Error(err))
		return inventory.Snapshot{}, nil
	}
	return snapshot, nil
}

// Save writes the snapshot atomically: temp file in the same directory, then
// rename over the old file.
func (store *Store) Save(_ context.Context, snapshot inventory.Snapshot) error {
	encoded, err := encodeSnapshot(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	dir := filepath.Dir(store.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("prepare snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(store.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(encoded); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, store.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// decodeSnapshot walks the top-level object token by token so that the
// file's key order survives into the snapshot. Records still carrying the
// legacy "qty" field are normalized to "quantity" here, once, at load.
func decodeSnapshot(data []byte) (inventory.Snapshot, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	opening, err := decoder.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := opening.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected top-level object, got %v", opening)
	}
	var snapshot inventory.Snapshot
	for decoder.More() {
		keyToken, err := decoder.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyToken.(string)
		if !ok {
			return nil, fmt.Errorf("expected string key, got %v", keyToken)
		}
		var raw recordJSON
		if err := decoder.Decode(&raw); err != nil {
			return nil, err
		}
		id, err := inventory.NewItemID(key)
		if err != nil {
			return nil, err
		}
		quantity := int64(0)
		switch {
		case raw.Quantity != nil:
			quantity = *raw.Quantity
		case raw.LegacyQuantity != nil:
			quantity = *raw.LegacyQuantity
		}
		item, err := inventory.NewItem(raw.Name, quantity, raw.PriceCents)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", key, err)
		}
		snapshot = append(snapshot, inventory.StockRecord{
			ID:         id,
			Name:       item.Name,
			Quantity:   item.Quantity,
			PriceCents: item.PriceCents,
		})
	}
	if _, err := decoder.Token(); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func encodeSnapshot(snapshot inventory.Snapshot) ([]byte, error) {
	var buffer bytes.Buffer
	buffer.WriteString("{")
	for position, record := range snapshot {
		if position > 0 {
			buffer.WriteString(",")
		}
		buffer.WriteString("\n    ")
		keyBytes, err := json.Marshal(record.ID.String())
		if err != nil {
			return nil, err
		}
		buffer.Write(keyBytes)
		buffer.WriteString(": ")
		quantity := record.Quantity
		valueBytes, err := json.MarshalIndent(recordJSON{
			Name:       record.Name,
			Quantity:   &quantity,
			PriceCents: record.PriceCents,
		}, "    ", "    ")
		if err != nil {
			return nil, err
		}
		buffer.Write(valueBytes)
	}
	if len(snapshot) > 0 {
		buffer.WriteString("\n")
	}
	buffer.WriteString("}\n")
	return buffer.Bytes(), nil
}
