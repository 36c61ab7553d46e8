package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/types"
)

const (
	statePrefix  = "s/"
	modulePrefix = "m/"
)

// BadgerView is a base snapshot backed by badger. Each block reads through
// one read-only transaction, so concurrent Apply calls never leak into a
// running block.
type BadgerView struct {
	db *badger.DB
}

// BadgerOptions returns the default options for dir. An empty dir opens an
// in-memory database.
func BadgerOptions(dir string) badger.Options {
	opts := badger.DefaultOptions(dir).
		WithSyncWrites(false).
		WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	return opts
}

// OpenBadger opens (or creates) a badger store.
func OpenBadger(opts badger.Options) (*BadgerView, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerView{db: db}, nil
}

// Close closes the database.
func (b *BadgerView) Close() error {
	return b.db.Close()
}

// Snapshot returns a consistent read view. Callers must Close it.
func (b *BadgerView) Snapshot() *BadgerSnapshot {
	return &BadgerSnapshot{txn: b.db.NewTransaction(false)}
}

// Seed writes raw state, typically a genesis.
func (b *BadgerView) Seed(state map[types.StateKey][]byte) error {
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for k, v := range state {
		if err := wb.Set([]byte(statePrefix+string(k)), v); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// Apply commits block results.
func (b *BadgerView) Apply(results []Result) error {
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, r := range results {
		for _, w := range r.Writes {
			key := []byte(statePrefix + string(w.Key))
			var err error
			if w.Deleted {
				err = wb.Delete(key)
			} else {
				err = wb.Set(key, w.Value)
			}
			if err != nil {
				return err
			}
		}
		for _, m := range r.ModuleWrites {
			if err := wb.Set([]byte(modulePrefix+string(m.ID)), m.Code); err != nil {
				return err
			}
		}
	}
	return wb.Flush()
}

// BadgerSnapshot is a read-only badger transaction implementing
// types.StateView. Reads are serialized since a badger Txn is not meant for
// concurrent use; wrap it in a cache for hot keys.
type BadgerSnapshot struct {
	mu  sync.Mutex
	txn *badger.Txn
}

// GetState implements types.StateView.
func (s *BadgerSnapshot) GetState(key types.StateKey) ([]byte, error) {
	return s.get(statePrefix + string(key))
}

// GetModule implements types.StateView.
func (s *BadgerSnapshot) GetModule(id types.ModuleID) ([]byte, error) {
	return s.get(modulePrefix + string(id))
}

func (s *BadgerSnapshot) get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, err := s.txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// Close discards the read transaction.
func (s *BadgerSnapshot) Close() {
	s.txn.Discard()
}
