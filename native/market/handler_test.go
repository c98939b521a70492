package market

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"datamarket/core/types"
)

type mockAccounts struct {
	accounts map[[20]byte]*types.Account
}

func newMockAccounts() *mockAccounts {
	return &mockAccounts{accounts: make(map[[20]byte]*types.Account)}
}

func (m *mockAccounts) key(addr []byte) [20]byte {
	var k [20]byte
	copy(k[:], addr)
	return k
}

func (m *mockAccounts) GetAccount(addr []byte) (*types.Account, error) {
	if account, ok := m.accounts[m.key(addr)]; ok {
		return account.Clone(), nil
	}
	account := &types.Account{}
	account.EnsureDefaults()
	return account, nil
}

func (m *mockAccounts) PutAccount(addr []byte, account *types.Account) error {
	m.accounts[m.key(addr)] = account.Clone()
	return nil
}

func (m *mockAccounts) balance(addr [20]byte) *big.Int {
	account, ok := m.accounts[addr]
	if !ok {
		return big.NewInt(0)
	}
	return account.Balance
}

func (m *mockAccounts) fund(addr [20]byte, amount int64) {
	m.accounts[addr] = &types.Account{Balance: big.NewInt(amount)}
}

func TestTokenHandlerTransfers(t *testing.T) {
	state := newMockAccounts()
	from := newTestAddress(0x0A)
	to := newTestAddress(0x0B)
	state.fund(from, 100)

	args, err := EncodeTokenTransferArgs(TokenTransferArgs{From: from, To: to, Amount: big.NewInt(40)})
	if err != nil {
		t.Fatalf("encode args: %v", err)
	}

	handler := NewTokenHandler(state)
	id := OfferID{0x01, 0x02}
	receipt, err := handler.Attempt(id, TokenTransferSelector, args)
	if err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if state.balance(from).Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("sender balance: %s", state.balance(from))
	}
	if state.balance(to).Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("recipient balance: %s", state.balance(to))
	}
	want := append([]byte(nil), id[:]...)
	want = append(want, big.NewInt(40).Bytes()...)
	if !bytes.Equal(receipt, want) {
		t.Fatalf("receipt mismatch: %x", receipt)
	}
}

func TestTokenHandlerInsufficientBalance(t *testing.T) {
	state := newMockAccounts()
	from := newTestAddress(0x0A)
	to := newTestAddress(0x0B)
	state.fund(from, 10)

	args, err := EncodeTokenTransferArgs(TokenTransferArgs{From: from, To: to, Amount: big.NewInt(40)})
	if err != nil {
		t.Fatalf("encode args: %v", err)
	}

	handler := NewTokenHandler(state)
	if _, err := handler.Attempt(OfferID{}, TokenTransferSelector, args); !errors.Is(err, errInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	// Failed attempts must not move funds.
	if state.balance(from).Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("sender balance changed: %s", state.balance(from))
	}
	if state.balance(to).Sign() != 0 {
		t.Fatalf("recipient balance changed: %s", state.balance(to))
	}
}

func TestTokenHandlerRejectsBadInput(t *testing.T) {
	state := newMockAccounts()
	handler := NewTokenHandler(state)

	if _, err := handler.Attempt(OfferID{}, [4]byte{0xDE, 0xAD, 0xBE, 0xEF}, nil); err == nil {
		t.Fatalf("unknown selector must be rejected")
	}
	if _, err := handler.Attempt(OfferID{}, TokenTransferSelector, []byte{0x01, 0x02}); err == nil {
		t.Fatalf("malformed arguments must be rejected")
	}
	if _, err := EncodeTokenTransferArgs(TokenTransferArgs{Amount: big.NewInt(0)}); err == nil {
		t.Fatalf("zero amount must be rejected")
	}
	if _, err := EncodeTokenTransferArgs(TokenTransferArgs{Amount: nil}); err == nil {
		t.Fatalf("nil amount must be rejected")
	}
}

func TestHandlerRegistry(t *testing.T) {
	registry := NewHandlerRegistry()
	addr := newTestAddress(0xEE)
	if _, ok := registry.Resolve(addr); ok {
		t.Fatalf("empty registry should resolve nothing")
	}

	first := &successHandler{receipt: []byte("a")}
	registry.Register(addr, first)
	got, ok := registry.Resolve(addr)
	if !ok || got != SettlementHandler(first) {
		t.Fatalf("resolve after register failed")
	}

	second := &successHandler{receipt: []byte("b")}
	registry.Register(addr, second)
	got, _ = registry.Resolve(addr)
	if got != SettlementHandler(second) {
		t.Fatalf("register must replace previous binding")
	}

	registry.Register(addr, nil)
	got, _ = registry.Resolve(addr)
	if got != SettlementHandler(second) {
		t.Fatalf("nil handler registration must be ignored")
	}
}

func TestTokenHandlerAddressStable(t *testing.T) {
	a := TokenHandlerAddress()
	b := TokenHandlerAddress()
	if a != b {
		t.Fatalf("handler address must be stable")
	}
	if a == ([20]byte{}) {
		t.Fatalf("handler address must not be zero")
	}
}
