package state

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"vaultd/core/types"
	"vaultd/native/escrow"
	"vaultd/storage"
)

var (
	escrowPrefix      = []byte("escrow/")
	escrowVaultPrefix = []byte("escrow-vault/")
	accountPrefix     = []byte("account/")
	escrowLastIDKey   = []byte("escrow-lastid")
)

// Manager exposes the persisted ledger state to the escrow engine: accounts,
// escrow records keyed by sequential id, per-escrow custody balances and the
// id allocator. Everything is JSON-encoded over a flat key-value database;
// the engine serializes access, so the manager itself carries no lock.
type Manager struct {
	db storage.Database
}

// NewManager wraps the given database in a state manager.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

type storedEscrow struct {
	ID              uint64 `json:"id"`
	Kind            uint8  `json:"kind"`
	Status          uint8  `json:"status"`
	BuyerConfirmed  bool   `json:"buyerConfirmed"`
	SellerConfirmed bool   `json:"sellerConfirmed"`
	Buyer           string `json:"buyer"`
	Seller          string `json:"seller"`
	Custodian       string `json:"custodian"`
	Amount          string `json:"amount"`
	StartTime       int64  `json:"startTime"`
	EndTime         int64  `json:"endTime"`
}

func escrowKey(id uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return append(append([]byte(nil), escrowPrefix...), buf[:]...)
}

func escrowVaultKey(id uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return append(append([]byte(nil), escrowVaultPrefix...), buf[:]...)
}

func accountKey(addr []byte) []byte {
	return append(append([]byte(nil), accountPrefix...), []byte(hex.EncodeToString(addr))...)
}

func decodeAddr(s string) ([20]byte, error) {
	var out [20]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("state: invalid address length %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// EscrowPut validates and persists an escrow record.
func (m *Manager) EscrowPut(e *escrow.Escrow) error {
	sanitized, err := escrow.SanitizeEscrow(e)
	if err != nil {
		return err
	}
	stored := storedEscrow{
		ID:              sanitized.ID,
		Kind:            uint8(sanitized.Kind),
		Status:          uint8(sanitized.Status),
		BuyerConfirmed:  sanitized.BuyerConfirmed,
		SellerConfirmed: sanitized.SellerConfirmed,
		Buyer:           hex.EncodeToString(sanitized.Buyer[:]),
		Seller:          hex.EncodeToString(sanitized.Seller[:]),
		Custodian:       hex.EncodeToString(sanitized.Custodian[:]),
		Amount:          sanitized.Amount.String(),
		StartTime:       sanitized.StartTime,
		EndTime:         sanitized.EndTime,
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return m.db.Put(escrowKey(sanitized.ID), raw)
}

// EscrowGet loads an escrow record by id.
func (m *Manager) EscrowGet(id uint64) (*escrow.Escrow, bool) {
	raw, err := m.db.Get(escrowKey(id))
	if err != nil {
		return nil, false
	}
	var stored storedEscrow
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, false
	}
	buyer, err := decodeAddr(stored.Buyer)
	if err != nil {
		return nil, false
	}
	seller, err := decodeAddr(stored.Seller)
	if err != nil {
		return nil, false
	}
	custodian, err := decodeAddr(stored.Custodian)
	if err != nil {
		return nil, false
	}
	amount, ok := new(big.Int).SetString(stored.Amount, 10)
	if !ok {
		return nil, false
	}
	return &escrow.Escrow{
		ID:              stored.ID,
		Kind:            escrow.Kind(stored.Kind),
		Status:          escrow.Status(stored.Status),
		BuyerConfirmed:  stored.BuyerConfirmed,
		SellerConfirmed: stored.SellerConfirmed,
		Buyer:           buyer,
		Seller:          seller,
		Custodian:       custodian,
		Amount:          amount,
		StartTime:       stored.StartTime,
		EndTime:         stored.EndTime,
	}, true
}

// EscrowLastID returns the most recently allocated id, or 0 when the registry
// is empty.
func (m *Manager) EscrowLastID() uint64 {
	raw, err := m.db.Get(escrowLastIDKey)
	if err != nil || len(raw) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(raw)
}

// EscrowSetLastID records the id allocator's high-water mark.
func (m *Manager) EscrowSetLastID(id uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return m.db.Put(escrowLastIDKey, buf[:])
}

// EscrowCredit adds the given amount to an escrow's custody balance.
func (m *Manager) EscrowCredit(id uint64, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return fmt.Errorf("state: invalid credit amount")
	}
	balance := m.EscrowBalance(id)
	balance = new(big.Int).Add(balance, amt)
	return m.db.Put(escrowVaultKey(id), []byte(balance.String()))
}

// EscrowDebit removes the given amount from an escrow's custody balance. The
// balance can never go negative.
func (m *Manager) EscrowDebit(id uint64, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return fmt.Errorf("state: invalid debit amount")
	}
	balance := m.EscrowBalance(id)
	if balance.Cmp(amt) < 0 {
		return fmt.Errorf("state: custody balance underflow for escrow %d", id)
	}
	balance = new(big.Int).Sub(balance, amt)
	return m.db.Put(escrowVaultKey(id), []byte(balance.String()))
}

// EscrowBalance returns the value currently held in custody for an escrow.
func (m *Manager) EscrowBalance(id uint64) *big.Int {
	raw, err := m.db.Get(escrowVaultKey(id))
	if err != nil {
		return big.NewInt(0)
	}
	balance, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return big.NewInt(0)
	}
	return balance
}

// GetAccount loads the account stored for addr. A never-seen address yields a
// fresh zero-balance account rather than an error.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	ok, err := m.db.Has(accountKey(addr))
	if err != nil {
		return nil, err
	}
	if !ok {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	raw, err := m.db.Get(accountKey(addr))
	if err != nil {
		return nil, err
	}
	account := &types.Account{}
	if err := json.Unmarshal(raw, account); err != nil {
		return nil, err
	}
	if account.Balance == nil {
		account.Balance = big.NewInt(0)
	}
	return account, nil
}

// PutAccount persists the account stored for addr.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	if account.Balance == nil {
		account.Balance = big.NewInt(0)
	}
	raw, err := json.Marshal(account)
	if err != nil {
		return err
	}
	return m.db.Put(accountKey(addr), raw)
}
