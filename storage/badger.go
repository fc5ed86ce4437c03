package storage

import (
	"fmt"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v3"
	"github.com/fxamacker/cbor/v2"

	"github.com/thrylos-labs/go-gossip/core/artifact"
)

// Store wraps one BadgerDB v3 instance shared by the per-kind pools.
type Store struct {
	db *badger.DB
	mu sync.RWMutex
}

// Open creates or opens the store under dataDir.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	opts := badger.DefaultOptions(dataDir).
		WithLogger(nil).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// BadgerPool is a Badger-backed validated pool for one artifact kind.
// Keys are prefixed by kind so every kind gets an isolated namespace in
// the shared store.
type BadgerPool struct {
	store *Store
	kind  artifact.Kind
}

// NewValidatedPool returns the pool for one artifact kind.
func NewValidatedPool(store *Store, kind artifact.Kind) *BadgerPool {
	return &BadgerPool{store: store, kind: kind}
}

// Kind returns the artifact kind this pool holds.
func (p *BadgerPool) Kind() artifact.Kind {
	return p.kind
}

func (p *BadgerPool) keyPrefix() []byte {
	return []byte("validated/" + string(p.kind) + "/")
}

func (p *BadgerPool) key(id artifact.ID) []byte {
	return append(p.keyPrefix(), id[:]...)
}

// Put stores a validated artifact. Called by the validation pipeline,
// never by the senders.
func (p *BadgerPool) Put(a *artifact.Artifact) error {
	if a.Kind != p.kind {
		return fmt.Errorf("artifact kind %q does not match pool kind %q", a.Kind, p.kind)
	}

	value, err := cbor.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to serialize artifact %s: %w", a.ID, err)
	}

	p.store.mu.Lock()
	defer p.store.mu.Unlock()

	return p.store.db.Update(func(txn *badger.Txn) error {
		return txn.Set(p.key(a.ID), value)
	})
}

// Remove deletes a validated artifact. Called by the validation pipeline
// when an artifact is purged.
func (p *BadgerPool) Remove(id artifact.ID) error {
	p.store.mu.Lock()
	defer p.store.mu.Unlock()

	return p.store.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(p.key(id))
	})
}

// GetValidated returns one validated artifact by identity.
func (p *BadgerPool) GetValidated(id artifact.ID) (*artifact.Artifact, error) {
	p.store.mu.RLock()
	defer p.store.mu.RUnlock()

	var value []byte
	err := p.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(p.key(id))
		if err != nil {
			return err
		}
		// ValueCopy so the bytes stay valid outside the transaction.
		value, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", id, err)
	}

	var a artifact.Artifact
	if err := cbor.Unmarshal(value, &a); err != nil {
		return nil, fmt.Errorf("failed to decode artifact %s: %w", id, err)
	}
	return &a, nil
}

// GetAllValidated returns a snapshot of every validated artifact of this
// pool's kind.
func (p *BadgerPool) GetAllValidated() ([]*artifact.Artifact, error) {
	p.store.mu.RLock()
	defer p.store.mu.RUnlock()

	var artifacts []*artifact.Artifact
	prefix := p.keyPrefix()

	err := p.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var a artifact.Artifact
			if err := cbor.Unmarshal(value, &a); err != nil {
				return err
			}
			artifacts = append(artifacts, &a)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan validated pool %q: %w", p.kind, err)
	}
	return artifacts, nil
}
