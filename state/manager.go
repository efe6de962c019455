package state

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"dogxsale/core/types"
	"dogxsale/storage"
)

var accountPrefix = []byte("account/")

// Manager persists accounts and module records in a key-value database using
// RLP encoding. Engines consume it through narrow interfaces so tests can
// substitute in-memory fakes.
type Manager struct {
	mu sync.RWMutex
	db storage.Database
}

// NewManager wraps the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func accountKey(addr []byte) []byte {
	return append(append([]byte(nil), accountPrefix...), addr...)
}

// GetAccount loads the account stored for the address. Unknown addresses
// yield a zeroed account rather than an error.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	if len(addr) == 0 {
		return nil, fmt.Errorf("state: empty account address")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, err := m.db.Get(accountKey(addr))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return types.NewAccount(), nil
		}
		return nil, err
	}
	account := new(types.Account)
	if err := rlp.DecodeBytes(data, account); err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	return account.Normalize(), nil
}

// PutAccount stores the account under the address.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if len(addr) == 0 {
		return fmt.Errorf("state: empty account address")
	}
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	encoded, err := rlp.EncodeToBytes(account.Normalize())
	if err != nil {
		return fmt.Errorf("state: encode account: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Put(accountKey(addr), encoded)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Put(key, encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the
// key existed.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	m.mu.RLock()
	data, err := m.db.Get(key)
	m.mu.RUnlock()
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under the supplied key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Delete(key)
}

// KVAppend appends the member to the byte-slice list stored under the key.
// Duplicate members are ignored to keep indexes deterministic.
func (m *Manager) KVAppend(key []byte, member []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	list, err := m.readList(key)
	if err != nil {
		return err
	}
	for _, existing := range list {
		if bytes.Equal(existing, member) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), member...))
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

// KVList returns the byte-slice list stored under the key. A missing key
// yields an empty list.
func (m *Manager) KVList(key []byte) ([][]byte, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("kv: key must not be empty")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.readList(key)
}

func (m *Manager) readList(key []byte) ([][]byte, error) {
	data, err := m.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return [][]byte{}, nil
		}
		return nil, err
	}
	var list [][]byte
	if err := rlp.DecodeBytes(data, &list); err != nil {
		return nil, err
	}
	return list, nil
}
