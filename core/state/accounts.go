package state

import (
	"fmt"
	"math/big"

	"datamarket/core/types"
)

var accountPrefix = []byte("account:")

func accountKey(addr []byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr)
	return buf
}

type storedAccount struct {
	Nonce    uint64
	Balance  *big.Int
	Username string
}

// GetAccount loads the account stored under the provided address. Unknown
// addresses yield a zero-value account rather than an error so balance
// queries never fail on fresh participants.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	if len(addr) == 0 {
		return nil, fmt.Errorf("address must not be empty")
	}
	stored := new(storedAccount)
	ok, err := m.KVGet(accountKey(addr), stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return (&types.Account{}).EnsureDefaults(), nil
	}
	account := &types.Account{
		Nonce:    stored.Nonce,
		Balance:  stored.Balance,
		Username: stored.Username,
	}
	return account.EnsureDefaults(), nil
}

// PutAccount persists the account under the provided address.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if len(addr) == 0 {
		return fmt.Errorf("address must not be empty")
	}
	if account == nil {
		return fmt.Errorf("account must not be nil")
	}
	account.EnsureDefaults()
	stored := &storedAccount{
		Nonce:    account.Nonce,
		Balance:  account.Balance,
		Username: account.Username,
	}
	return m.KVPut(accountKey(addr), stored)
}
