package ledger

import (
	"errors"
	"math/big"
	"testing"

	"gildchain/core/state"
	"gildchain/core/types"
	"gildchain/storage"
)

type mockLedgerState struct {
	accounts   map[string]*types.Account
	allowances map[string]*big.Int
	baseRate   *big.Int
	supply     *big.Int
}

func newMockLedgerState() *mockLedgerState {
	return &mockLedgerState{
		accounts:   make(map[string]*types.Account),
		allowances: make(map[string]*big.Int),
		supply:     big.NewInt(0),
	}
}

func (m *mockLedgerState) GetAccount(addr []byte) (*types.Account, error) {
	if acc, ok := m.accounts[string(addr)]; ok {
		return acc.Clone(), nil
	}
	return types.NewAccount(), nil
}

func (m *mockLedgerState) PutAccount(addr []byte, account *types.Account) error {
	m.accounts[string(addr)] = account.Clone()
	return nil
}

func (m *mockLedgerState) BaseRate() (*big.Int, error) {
	if m.baseRate == nil {
		return nil, nil
	}
	return new(big.Int).Set(m.baseRate), nil
}

func (m *mockLedgerState) SetBaseRate(rate *big.Int) error {
	m.baseRate = new(big.Int).Set(rate)
	return nil
}

func (m *mockLedgerState) TotalSupply() (*big.Int, error) {
	return new(big.Int).Set(m.supply), nil
}

func (m *mockLedgerState) SetTotalSupply(supply *big.Int) error {
	m.supply = new(big.Int).Set(supply)
	return nil
}

func (m *mockLedgerState) allowanceKey(owner, spender []byte) string {
	return string(owner) + "/" + string(spender)
}

func (m *mockLedgerState) Allowance(owner, spender []byte) (*big.Int, error) {
	if amount, ok := m.allowances[m.allowanceKey(owner, spender)]; ok {
		return new(big.Int).Set(amount), nil
	}
	return big.NewInt(0), nil
}

func (m *mockLedgerState) SetAllowance(owner, spender []byte, amount *big.Int) error {
	m.allowances[m.allowanceKey(owner, spender)] = new(big.Int).Set(amount)
	return nil
}

// The mock applies writes immediately; commit atomicity under storage
// failure is exercised against the real state manager further down.
func (m *mockLedgerState) Begin()        {}
func (m *mockLedgerState) Commit() error { return nil }
func (m *mockLedgerState) Discard()      {}

type staticAuthorizer struct {
	grants map[string]string
}

func (a staticAuthorizer) HasRole(role string, addr []byte) bool {
	granted, ok := a.grants[string(addr)]
	return ok && granted == role
}

type manualClock struct {
	now uint64
}

func (c *manualClock) Now() uint64 { return c.now }

func (c *manualClock) Advance(seconds uint64) { c.now += seconds }

func makeAddr(suffix byte) []byte {
	raw := make([]byte, 20)
	raw[len(raw)-1] = suffix
	return raw
}

func newTestEngine(t *testing.T) (*Engine, *mockLedgerState, *manualClock) {
	t.Helper()
	state := newMockLedgerState()
	clock := &manualClock{}
	engine := NewEngine()
	engine.SetState(state)
	engine.SetClock(clock.Now)
	return engine, state, clock
}

func mintDirect(state *mockLedgerState, addr []byte, principal int64, rate *big.Int, lastAccrual uint64) {
	state.accounts[string(addr)] = &types.Account{
		Principal:       big.NewInt(principal),
		LockedRate:      new(big.Int).Set(rate),
		LastAccrualTime: lastAccrual,
	}
	state.supply.Add(state.supply, big.NewInt(principal))
}

func TestTransferRealizesBothSides(t *testing.T) {
	engine, state, clock := newTestEngine(t)
	rate := big.NewInt(50_000_000_000) // 5e10 per second
	sender := makeAddr(0x01)
	recipient := makeAddr(0x02)
	mintDirect(state, sender, 1000, rate, 0)
	mintDirect(state, recipient, 500, big.NewInt(70_000_000_000), 0)

	clock.Advance(100)
	if err := engine.Transfer(sender, recipient, big.NewInt(200)); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	got := state.accounts[string(sender)]
	// 1000 * (1e18 + 5e10*100) / 1e18 = 1000 (the accrued 5e-6 rounds away),
	// minus the 200 moved out.
	if got.Principal.Cmp(big.NewInt(800)) != 0 {
		t.Fatalf("unexpected sender principal: %s", got.Principal)
	}
	if got.LastAccrualTime != 100 {
		t.Fatalf("sender accrual timestamp not stamped: %d", got.LastAccrualTime)
	}
	recv := state.accounts[string(recipient)]
	if recv.Principal.Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("unexpected recipient principal: %s", recv.Principal)
	}
	if recv.LastAccrualTime != 100 {
		t.Fatalf("recipient accrual timestamp not stamped: %d", recv.LastAccrualTime)
	}
}

func TestTransferKeepsRecipientRate(t *testing.T) {
	engine, state, clock := newTestEngine(t)
	sender := makeAddr(0x01)
	recipient := makeAddr(0x02)
	senderRate := big.NewInt(30_000_000_000)
	recipientRate := big.NewInt(90_000_000_000)
	mintDirect(state, sender, 1000, senderRate, 0)
	mintDirect(state, recipient, 1, recipientRate, 0)

	clock.Advance(10)
	if err := engine.Transfer(sender, recipient, big.NewInt(500)); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	recv := state.accounts[string(recipient)]
	if recv.LockedRate.Cmp(recipientRate) != 0 {
		t.Fatalf("recipient locked rate overwritten: %s", recv.LockedRate)
	}
}

func TestTransferPropagatesRateToEmptyRecipient(t *testing.T) {
	engine, state, clock := newTestEngine(t)
	sender := makeAddr(0x01)
	recipient := makeAddr(0x02)
	senderRate := big.NewInt(30_000_000_000)
	mintDirect(state, sender, 1000, senderRate, 0)

	clock.Advance(10)
	if err := engine.Transfer(sender, recipient, big.NewInt(400)); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	recv := state.accounts[string(recipient)]
	if recv.LockedRate.Cmp(senderRate) != 0 {
		t.Fatalf("recipient did not inherit sender rate: %s", recv.LockedRate)
	}
	if recv.Principal.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("unexpected recipient principal: %s", recv.Principal)
	}
}

func TestTransferPropagatesRateToDrainedRecipient(t *testing.T) {
	engine, state, clock := newTestEngine(t)
	sender := makeAddr(0x01)
	recipient := makeAddr(0x02)
	senderRate := big.NewInt(30_000_000_000)
	// Drained holder: zero principal with a stale rate and timestamp.
	mintDirect(state, sender, 1000, senderRate, 0)
	mintDirect(state, recipient, 0, big.NewInt(90_000_000_000), 0)

	clock.Advance(10)
	if err := engine.Transfer(sender, recipient, big.NewInt(100)); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	recv := state.accounts[string(recipient)]
	if recv.LockedRate.Cmp(senderRate) != 0 {
		t.Fatalf("drained recipient should adopt sender rate, got %s", recv.LockedRate)
	}
}

func TestTransferMaxSentinelMovesVirtualBalance(t *testing.T) {
	engine, state, clock := newTestEngine(t)
	sender := makeAddr(0x01)
	recipient := makeAddr(0x02)
	rate := new(big.Int).Mul(big.NewInt(50), big.NewInt(1_000_000_000_000_000)) // 5e16: visible growth
	principal := big.NewInt(1_000_000)
	state.accounts[string(sender)] = &types.Account{
		Principal:  new(big.Int).Set(principal),
		LockedRate: rate,
	}
	state.supply = new(big.Int).Set(principal)

	clock.Advance(100)
	if err := engine.Transfer(sender, recipient, MaxTransferAmount); err != nil {
		t.Fatalf("max transfer failed: %v", err)
	}

	got := state.accounts[string(sender)]
	if got.Principal.Sign() != 0 {
		t.Fatalf("sender should be fully drained, got %s", got.Principal)
	}
	// 1e6 * (1e18 + 5e16*100) / 1e18 = 6e6.
	want := big.NewInt(6_000_000)
	recv := state.accounts[string(recipient)]
	if recv.Principal.Cmp(want) != 0 {
		t.Fatalf("recipient principal = %s, want %s", recv.Principal, want)
	}
	if supply, _ := state.TotalSupply(); supply.Cmp(want) != 0 {
		t.Fatalf("supply should track realized interest, got %s want %s", supply, want)
	}
}

func TestTransferInsufficientBalance(t *testing.T) {
	engine, state, clock := newTestEngine(t)
	sender := makeAddr(0x01)
	recipient := makeAddr(0x02)
	mintDirect(state, sender, 100, big.NewInt(0), 0)
	clock.Advance(5)

	err := engine.Transfer(sender, recipient, big.NewInt(101))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	// No partial effects: recipient must not exist, sender untouched.
	if _, ok := state.accounts[string(recipient)]; ok {
		t.Fatalf("recipient should not have been created")
	}
	if got := state.accounts[string(sender)]; got.Principal.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("sender principal mutated on failed transfer: %s", got.Principal)
	}
}

func TestSelfTransferRealizesOnce(t *testing.T) {
	engine, state, clock := newTestEngine(t)
	addr := makeAddr(0x01)
	rate := new(big.Int).Mul(big.NewInt(50), big.NewInt(1_000_000_000_000_000)) // 5e16
	state.accounts[string(addr)] = &types.Account{
		Principal:  big.NewInt(1_000_000),
		LockedRate: rate,
	}
	state.supply = big.NewInt(1_000_000)

	clock.Advance(100)
	if err := engine.Transfer(addr, addr, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("self transfer failed: %v", err)
	}
	got := state.accounts[string(addr)]
	want := big.NewInt(6_000_000)
	if got.Principal.Cmp(want) != 0 {
		t.Fatalf("self transfer principal = %s, want %s", got.Principal, want)
	}
	if got.LastAccrualTime != 100 {
		t.Fatalf("self transfer did not stamp accrual time: %d", got.LastAccrualTime)
	}
}

func TestTransferFromSpendsAllowance(t *testing.T) {
	engine, state, clock := newTestEngine(t)
	owner := makeAddr(0x01)
	spender := makeAddr(0x02)
	recipient := makeAddr(0x03)
	mintDirect(state, owner, 1000, big.NewInt(0), 0)

	if err := engine.Approve(owner, spender, big.NewInt(300)); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	clock.Advance(1)
	if err := engine.TransferFrom(spender, owner, recipient, big.NewInt(200)); err != nil {
		t.Fatalf("transferFrom failed: %v", err)
	}
	remaining, err := engine.Allowance(owner, spender)
	if err != nil {
		t.Fatalf("allowance query failed: %v", err)
	}
	if remaining.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("allowance not decremented: %s", remaining)
	}

	err = engine.TransferFrom(spender, owner, recipient, big.NewInt(200))
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected insufficient allowance, got %v", err)
	}
}

func TestTransferFromInfiniteAllowance(t *testing.T) {
	engine, state, clock := newTestEngine(t)
	owner := makeAddr(0x01)
	spender := makeAddr(0x02)
	recipient := makeAddr(0x03)
	mintDirect(state, owner, 1000, big.NewInt(0), 0)

	if err := engine.Approve(owner, spender, MaxTransferAmount); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	clock.Advance(1)
	if err := engine.TransferFrom(spender, owner, recipient, big.NewInt(400)); err != nil {
		t.Fatalf("transferFrom failed: %v", err)
	}
	remaining, err := engine.Allowance(owner, spender)
	if err != nil {
		t.Fatalf("allowance query failed: %v", err)
	}
	if remaining.Cmp(MaxTransferAmount) != 0 {
		t.Fatalf("infinite allowance should not be decremented: %s", remaining)
	}
}

func TestTransferMaxSentinelWithTickingClock(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	sender := makeAddr(0x01)
	recipient := makeAddr(0x02)
	rate := new(big.Int).Mul(big.NewInt(50), big.NewInt(1_000_000_000_000_000)) // 5e16
	state.accounts[string(sender)] = &types.Account{
		Principal:  big.NewInt(1_000_000),
		LockedRate: rate,
	}
	state.supply = big.NewInt(1_000_000)

	// A wall clock that ticks on every reading. The sentinel resolution and
	// the realization must observe the same instant or the sender retains
	// accrual dust after a full drain.
	var now uint64 = 100
	engine.SetClock(func() uint64 { now++; return now })

	if err := engine.Transfer(sender, recipient, MaxTransferAmount); err != nil {
		t.Fatalf("max transfer failed: %v", err)
	}
	got := state.accounts[string(sender)]
	if got.Principal.Sign() != 0 {
		t.Fatalf("sender should be fully drained, got %s", got.Principal)
	}
	// 1e6 * (1e18 + 5e16*101) / 1e18 = 6_050_000 at the single instant 101.
	want := big.NewInt(6_050_000)
	recv := state.accounts[string(recipient)]
	if recv.Principal.Cmp(want) != 0 {
		t.Fatalf("recipient principal = %s, want %s", recv.Principal, want)
	}
}

func TestTransferFromMaxSentinelWithTickingClock(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	owner := makeAddr(0x01)
	spender := makeAddr(0x02)
	recipient := makeAddr(0x03)
	rate := new(big.Int).Mul(big.NewInt(50), big.NewInt(1_000_000_000_000_000)) // 5e16
	state.accounts[string(owner)] = &types.Account{
		Principal:  big.NewInt(1_000_000),
		LockedRate: rate,
	}
	state.supply = big.NewInt(1_000_000)
	if err := engine.Approve(owner, spender, MaxTransferAmount); err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	var now uint64
	engine.SetClock(func() uint64 { now++; return now })

	if err := engine.TransferFrom(spender, owner, recipient, MaxTransferAmount); err != nil {
		t.Fatalf("transferFrom failed: %v", err)
	}
	got := state.accounts[string(owner)]
	if got.Principal.Sign() != 0 {
		t.Fatalf("owner should be fully drained, got %s", got.Principal)
	}
	// 1e6 * (1e18 + 5e16*1) / 1e18 = 1_050_000.
	recv := state.accounts[string(recipient)]
	if recv.Principal.Cmp(big.NewInt(1_050_000)) != 0 {
		t.Fatalf("recipient principal = %s, want 1050000", recv.Principal)
	}
}

// faultDB lets a test force the commit batch to fail while the seeding
// writes succeed.
type faultDB struct {
	*storage.MemDB
	failWrites bool
}

func (db *faultDB) Write(batch *storage.Batch) error {
	if db.failWrites {
		return errors.New("simulated batch failure")
	}
	return db.MemDB.Write(batch)
}

func newManagerEngine(t *testing.T) (*Engine, *state.Manager, *faultDB, *manualClock) {
	t.Helper()
	db := &faultDB{MemDB: storage.NewMemDB()}
	manager := state.NewManager(db)
	clock := &manualClock{}
	engine := NewEngine()
	engine.SetState(manager)
	engine.SetAuthorizer(manager)
	engine.SetClock(clock.Now)
	return engine, manager, db, clock
}

func TestFailedCommitLeavesNoPartialTransfer(t *testing.T) {
	engine, manager, db, clock := newManagerEngine(t)
	minter := makeAddr(0xaa)
	sender := makeAddr(0x01)
	recipient := makeAddr(0x02)
	if err := manager.GrantRole(RoleMinter, minter); err != nil {
		t.Fatalf("grant role failed: %v", err)
	}
	rate := new(big.Int).Mul(big.NewInt(50), big.NewInt(1_000_000_000_000_000)) // 5e16
	if err := engine.Mint(minter, sender, big.NewInt(1000), rate); err != nil {
		t.Fatalf("mint failed: %v", err)
	}

	clock.Advance(100)
	db.failWrites = true
	if err := engine.Transfer(sender, recipient, big.NewInt(400)); err == nil {
		t.Fatalf("expected the storage failure to surface")
	}
	db.failWrites = false

	// Neither the debit nor the realization may be observable after the
	// failed commit.
	principal, err := engine.PrincipalOf(sender)
	if err != nil {
		t.Fatalf("principal query failed: %v", err)
	}
	if principal.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("failed transfer left sender principal at %s, want 1000", principal)
	}
	recvPrincipal, err := engine.PrincipalOf(recipient)
	if err != nil {
		t.Fatalf("principal query failed: %v", err)
	}
	if recvPrincipal.Sign() != 0 {
		t.Fatalf("failed transfer credited recipient: %s", recvPrincipal)
	}
	supply, err := engine.TotalSupply()
	if err != nil {
		t.Fatalf("supply query failed: %v", err)
	}
	if supply.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("failed transfer moved supply to %s, want 1000", supply)
	}
}

func TestFailedCommitPreservesAllowance(t *testing.T) {
	engine, manager, db, clock := newManagerEngine(t)
	minter := makeAddr(0xaa)
	owner := makeAddr(0x01)
	spender := makeAddr(0x02)
	recipient := makeAddr(0x03)
	if err := manager.GrantRole(RoleMinter, minter); err != nil {
		t.Fatalf("grant role failed: %v", err)
	}
	if err := engine.Mint(minter, owner, big.NewInt(1000), big.NewInt(0)); err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	if err := engine.Approve(owner, spender, big.NewInt(300)); err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	clock.Advance(10)
	db.failWrites = true
	if err := engine.TransferFrom(spender, owner, recipient, big.NewInt(200)); err == nil {
		t.Fatalf("expected the storage failure to surface")
	}
	db.failWrites = false

	allowance, err := engine.Allowance(owner, spender)
	if err != nil {
		t.Fatalf("allowance query failed: %v", err)
	}
	if allowance.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("failed transferFrom decremented allowance to %s, want 300", allowance)
	}
	principal, err := engine.PrincipalOf(owner)
	if err != nil {
		t.Fatalf("principal query failed: %v", err)
	}
	if principal.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("failed transferFrom debited owner to %s, want 1000", principal)
	}
}

func TestBalanceQueriesDoNotMutate(t *testing.T) {
	engine, state, clock := newTestEngine(t)
	addr := makeAddr(0x01)
	rate := new(big.Int).Mul(big.NewInt(50), big.NewInt(1_000_000_000_000_000)) // 5e16
	state.accounts[string(addr)] = &types.Account{
		Principal:  big.NewInt(1_000_000),
		LockedRate: rate,
	}

	clock.Advance(100)
	balance, err := engine.BalanceOf(addr)
	if err != nil {
		t.Fatalf("balanceOf failed: %v", err)
	}
	if balance.Cmp(big.NewInt(6_000_000)) != 0 {
		t.Fatalf("unexpected virtual balance: %s", balance)
	}
	principal, err := engine.PrincipalOf(addr)
	if err != nil {
		t.Fatalf("principalOf failed: %v", err)
	}
	if principal.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("principal query must exclude unrealized interest: %s", principal)
	}
	stored := state.accounts[string(addr)]
	if stored.Principal.Cmp(big.NewInt(1_000_000)) != 0 || stored.LastAccrualTime != 0 {
		t.Fatalf("read-only query mutated state: %+v", stored)
	}
}
