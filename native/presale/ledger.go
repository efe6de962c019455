package presale

import (
	"fmt"

	"dogxsale/core/types"
)

// Storage abstracts the subset of state manager functionality required by the
// presale ledger.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	KVAppend(key []byte, member []byte) error
	KVList(key []byte) ([][]byte, error)
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

var (
	salePrefix  = []byte("presale/sale/")
	userPrefix  = []byte("presale/user/")
	indexPrefix = []byte("presale/buyers/")
)

func saleKey(id [32]byte) []byte {
	return append(append([]byte(nil), salePrefix...), id[:]...)
}

func userKey(id [32]byte, buyer [20]byte) []byte {
	key := append(append([]byte(nil), userPrefix...), id[:]...)
	return append(key, buyer[:]...)
}

func buyersKey(id [32]byte) []byte {
	return append(append([]byte(nil), indexPrefix...), id[:]...)
}

// Ledger persists sale and contribution records through the state manager
// using RLP encoding, and maintains a per-sale buyer index for enumeration.
// It implements the engine's state contract.
type Ledger struct {
	store Storage
}

// NewLedger wraps the provided storage backend.
func NewLedger(store Storage) *Ledger {
	return &Ledger{store: store}
}

// PresalePut sanitizes and stores the sale record.
func (l *Ledger) PresalePut(p *Presale) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("presale ledger: storage not configured")
	}
	sanitized, err := SanitizePresale(p)
	if err != nil {
		return err
	}
	return l.store.KVPut(saleKey(sanitized.ID), sanitized)
}

// PresaleGet loads the sale record for the identifier.
func (l *Ledger) PresaleGet(id [32]byte) (*Presale, bool) {
	if l == nil || l.store == nil {
		return nil, false
	}
	record := new(Presale)
	ok, err := l.store.KVGet(saleKey(id), record)
	if err != nil || !ok {
		return nil, false
	}
	return record, true
}

// PresaleDelete removes the sale record. Contribution records are retained
// for auditability after close.
func (l *Ledger) PresaleDelete(id [32]byte) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("presale ledger: storage not configured")
	}
	return l.store.KVDelete(saleKey(id))
}

// UserPut stores the contribution record and indexes the buyer.
func (l *Ledger) UserPut(saleID [32]byte, user *UserInfo) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("presale ledger: storage not configured")
	}
	if user == nil {
		return fmt.Errorf("presale ledger: nil user record")
	}
	if user.ClaimedToken && user.ClaimedRefund {
		return fmt.Errorf("presale ledger: conflicting settlement flags")
	}
	if err := l.store.KVPut(userKey(saleID, user.Buyer), user); err != nil {
		return err
	}
	return l.store.KVAppend(buyersKey(saleID), user.Buyer[:])
}

// UserGet loads the contribution record for the buyer.
func (l *Ledger) UserGet(saleID [32]byte, buyer [20]byte) (*UserInfo, bool) {
	if l == nil || l.store == nil {
		return nil, false
	}
	record := new(UserInfo)
	ok, err := l.store.KVGet(userKey(saleID, buyer), record)
	if err != nil || !ok {
		return nil, false
	}
	return record, true
}

// Buyers returns the addresses that contributed to the sale, in first-seen
// order.
func (l *Ledger) Buyers(saleID [32]byte) ([][20]byte, error) {
	if l == nil || l.store == nil {
		return nil, fmt.Errorf("presale ledger: storage not configured")
	}
	raw, err := l.store.KVList(buyersKey(saleID))
	if err != nil {
		return nil, err
	}
	buyers := make([][20]byte, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 20 {
			return nil, fmt.Errorf("presale ledger: malformed buyer index entry")
		}
		var addr [20]byte
		copy(addr[:], entry)
		buyers = append(buyers, addr)
	}
	return buyers, nil
}

// GetAccount proxies account reads to the state manager.
func (l *Ledger) GetAccount(addr []byte) (*types.Account, error) {
	if l == nil || l.store == nil {
		return nil, fmt.Errorf("presale ledger: storage not configured")
	}
	return l.store.GetAccount(addr)
}

// PutAccount proxies account writes to the state manager.
func (l *Ledger) PutAccount(addr []byte, account *types.Account) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("presale ledger: storage not configured")
	}
	return l.store.PutAccount(addr, account)
}
