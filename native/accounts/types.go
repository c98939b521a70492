package accounts

import "errors"

// AccountID is the opaque 8-byte handle assigned to an account at creation.
type AccountID [8]byte

// AccountStatus distinguishes identity-locked temporary accounts from fully
// owned ones.
type AccountStatus uint8

const (
	// AccountTemporary marks an account bound to a hashed identity but not
	// yet claimed by an owner.
	AccountTemporary AccountStatus = iota
	// AccountActive marks an account with an assigned owner.
	AccountActive
)

// Account captures a registered account. Temporary accounts carry only the
// identity hash; unlocking assigns the owner and the password proof key used
// for signature-based lookups.
type Account struct {
	ID           AccountID
	Owner        [20]byte
	IdentityHash [32]byte
	ProofKey     [20]byte
	Status       AccountStatus
	CreatedAt    uint64
}

var (
	// ErrAccountNotFound marks lookups for unknown account handles.
	ErrAccountNotFound = errors.New("accounts: account not found")
	// ErrIdentityMismatch is returned when an unlock preimage does not hash
	// to the stored identity.
	ErrIdentityMismatch = errors.New("accounts: identity preimage mismatch")
	// ErrNotTemporary rejects unlock attempts against accounts that already
	// have an owner.
	ErrNotTemporary = errors.New("accounts: account is not temporary")
	// ErrInvalidSignature marks signatures that cannot be recovered to a
	// proof key.
	ErrInvalidSignature = errors.New("accounts: invalid signature")
	// ErrUnknownProofKey is returned when a recovered proof key maps to no
	// account.
	ErrUnknownProofKey = errors.New("accounts: no account for signer")
)

// Clone returns a copy of the account record.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

// Valid reports whether the status value is within the supported range.
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountTemporary, AccountActive:
		return true
	default:
		return false
	}
}
