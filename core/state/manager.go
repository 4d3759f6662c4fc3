package state

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"

	"gildchain/core/types"
	"gildchain/storage"
)

var (
	accountPrefix   = []byte("account:")
	allowancePrefix = []byte("allowance:")
	rolePrefix      = []byte("role:")
	baseRateKey     = []byte("ledger:base-rate")
	totalSupplyKey  = []byte("ledger:total-supply")
)

// Manager provides typed access to the durable ledger state backed by a
// key-value store. All reads and writes of accounts, the global base rate,
// allowances and role grants go through it.
//
// Between Begin and Commit writes are staged in memory and flushed to the
// database as a single batch, so a mutation spanning several records is
// either fully durable or not at all. Reads observe staged values.
type Manager struct {
	db     storage.Database
	batch  *storage.Batch
	staged map[string][]byte
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Begin starts staging writes. Subsequent writes accumulate in memory until
// Commit flushes them in one batch.
func (m *Manager) Begin() {
	m.batch = new(storage.Batch)
	m.staged = make(map[string][]byte)
}

// Commit flushes every staged write to the database atomically. Outside a
// Begin it is a no-op.
func (m *Manager) Commit() error {
	if m.batch == nil {
		return nil
	}
	batch := m.batch
	m.batch, m.staged = nil, nil
	if err := m.db.Write(batch); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	return nil
}

// Discard drops staged writes without touching the database. After a Commit
// it is a no-op, so callers may defer it unconditionally.
func (m *Manager) Discard() {
	m.batch, m.staged = nil, nil
}

func (m *Manager) write(key, value []byte) error {
	if m.batch != nil {
		m.batch.Put(key, value)
		m.staged[string(key)] = value
		return nil
	}
	return m.db.Put(key, value)
}

func (m *Manager) read(key []byte) ([]byte, bool, error) {
	if value, ok := m.staged[string(key)]; ok {
		return value, true, nil
	}
	exists, err := m.db.Has(key)
	if err != nil || !exists {
		return nil, false, err
	}
	value, err := m.db.Get(key)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func accountKey(addr []byte) []byte {
	return append(append([]byte{}, accountPrefix...), addr...)
}

func allowanceKey(owner, spender []byte) []byte {
	key := append([]byte{}, allowancePrefix...)
	key = append(key, owner...)
	key = append(key, ':')
	return append(key, spender...)
}

func roleKey(role string) []byte {
	normalized := strings.ToUpper(strings.TrimSpace(role))
	return append(append([]byte{}, rolePrefix...), normalized...)
}

// GetAccount loads the account record for the address, returning a fresh
// zero-valued record when none has been persisted yet. Accounts are created
// implicitly on first reference and never deleted.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	if len(addr) == 0 {
		return nil, fmt.Errorf("state: account address required")
	}
	data, exists, err := m.read(accountKey(addr))
	if err != nil {
		return nil, fmt.Errorf("state: load account: %w", err)
	}
	if !exists {
		return types.NewAccount(), nil
	}
	account := new(types.Account)
	if err := rlp.DecodeBytes(data, account); err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	account.Normalize()
	return account, nil
}

// PutAccount persists the account record under the address.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if len(addr) == 0 {
		return fmt.Errorf("state: account address required")
	}
	if account == nil {
		return fmt.Errorf("state: account record required")
	}
	account.Normalize()
	encoded, err := rlp.EncodeToBytes(account)
	if err != nil {
		return fmt.Errorf("state: encode account: %w", err)
	}
	return m.write(accountKey(addr), encoded)
}

// BaseRate returns the persisted global base rate, or nil when the ledger has
// not been initialised yet.
func (m *Manager) BaseRate() (*big.Int, error) {
	data, exists, err := m.read(baseRateKey)
	if err != nil {
		return nil, fmt.Errorf("state: load base rate: %w", err)
	}
	if !exists {
		return nil, nil
	}
	rate := new(big.Int)
	if err := rlp.DecodeBytes(data, rate); err != nil {
		return nil, fmt.Errorf("state: decode base rate: %w", err)
	}
	return rate, nil
}

// SetBaseRate overwrites the persisted global base rate. The monotonic
// decrease guard lives in the ledger engine; the manager stores what it is
// told.
func (m *Manager) SetBaseRate(rate *big.Int) error {
	if rate == nil || rate.Sign() < 0 {
		return fmt.Errorf("state: base rate must be non-negative")
	}
	encoded, err := rlp.EncodeToBytes(rate)
	if err != nil {
		return fmt.Errorf("state: encode base rate: %w", err)
	}
	return m.write(baseRateKey, encoded)
}

// TotalSupply returns the aggregate realized principal across all accounts.
func (m *Manager) TotalSupply() (*big.Int, error) {
	data, exists, err := m.read(totalSupplyKey)
	if err != nil {
		return nil, fmt.Errorf("state: load supply: %w", err)
	}
	if !exists {
		return big.NewInt(0), nil
	}
	supply := new(big.Int)
	if err := rlp.DecodeBytes(data, supply); err != nil {
		return nil, fmt.Errorf("state: decode supply: %w", err)
	}
	return supply, nil
}

// SetTotalSupply persists the aggregate realized principal.
func (m *Manager) SetTotalSupply(supply *big.Int) error {
	if supply == nil || supply.Sign() < 0 {
		return fmt.Errorf("state: total supply must be non-negative")
	}
	encoded, err := rlp.EncodeToBytes(supply)
	if err != nil {
		return fmt.Errorf("state: encode supply: %w", err)
	}
	return m.write(totalSupplyKey, encoded)
}

// Allowance returns the spending allowance granted by owner to spender.
func (m *Manager) Allowance(owner, spender []byte) (*big.Int, error) {
	if len(owner) == 0 || len(spender) == 0 {
		return nil, fmt.Errorf("state: owner and spender required")
	}
	data, exists, err := m.read(allowanceKey(owner, spender))
	if err != nil {
		return nil, fmt.Errorf("state: load allowance: %w", err)
	}
	if !exists {
		return big.NewInt(0), nil
	}
	amount := new(big.Int)
	if err := rlp.DecodeBytes(data, amount); err != nil {
		return nil, fmt.Errorf("state: decode allowance: %w", err)
	}
	return amount, nil
}

// SetAllowance persists the spending allowance granted by owner to spender.
func (m *Manager) SetAllowance(owner, spender []byte, amount *big.Int) error {
	if len(owner) == 0 || len(spender) == 0 {
		return fmt.Errorf("state: owner and spender required")
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: allowance must be non-negative")
	}
	encoded, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return fmt.Errorf("state: encode allowance: %w", err)
	}
	return m.write(allowanceKey(owner, spender), encoded)
}

// GrantRole associates the address with the role. Granting an already-held
// role is a no-op.
func (m *Manager) GrantRole(role string, addr []byte) error {
	if len(addr) == 0 {
		return fmt.Errorf("state: role member address required")
	}
	members, err := m.RoleMembers(role)
	if err != nil {
		return err
	}
	for _, member := range members {
		if bytes.Equal(member, addr) {
			return nil
		}
	}
	members = append(members, append([]byte{}, addr...))
	encoded, err := rlp.EncodeToBytes(members)
	if err != nil {
		return fmt.Errorf("state: encode role members: %w", err)
	}
	return m.write(roleKey(role), encoded)
}

// RevokeRole removes the address from the role member set.
func (m *Manager) RevokeRole(role string, addr []byte) error {
	members, err := m.RoleMembers(role)
	if err != nil {
		return err
	}
	filtered := make([][]byte, 0, len(members))
	for _, member := range members {
		if !bytes.Equal(member, addr) {
			filtered = append(filtered, member)
		}
	}
	encoded, err := rlp.EncodeToBytes(filtered)
	if err != nil {
		return fmt.Errorf("state: encode role members: %w", err)
	}
	return m.write(roleKey(role), encoded)
}

// RoleMembers returns every address associated with the role.
func (m *Manager) RoleMembers(role string) ([][]byte, error) {
	data, exists, err := m.read(roleKey(role))
	if err != nil {
		return nil, fmt.Errorf("state: load role: %w", err)
	}
	if !exists {
		return [][]byte{}, nil
	}
	var members [][]byte
	if err := rlp.DecodeBytes(data, &members); err != nil {
		return nil, fmt.Errorf("state: decode role members: %w", err)
	}
	return members, nil
}

// HasRole reports whether the provided address is associated with the
// specified role. Errors while reading the underlying state result in a false
// return, matching the best-effort semantics required by the callers.
func (m *Manager) HasRole(role string, addr []byte) bool {
	if len(addr) == 0 {
		return false
	}
	members, err := m.RoleMembers(role)
	if err != nil {
		return false
	}
	for _, member := range members {
		if bytes.Equal(member, addr) {
			return true
		}
	}
	return false
}
