package accounts

import (
	"encoding/binary"
	"errors"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"datamarket/core/events"
	"datamarket/core/types"
)

var errNilState = errors.New("accounts engine: state not configured")

// storage abstracts the subset of state manager functionality required by
// the account registry.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	accountPrefix  = []byte("accounts/account/")
	identityPrefix = []byte("accounts/identity/")
	proofPrefix    = []byte("accounts/proof/")
)

func accountRecordKey(id AccountID) []byte {
	buf := make([]byte, len(accountPrefix)+len(id))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], id[:])
	return buf
}

func identityIndexKey(hash [32]byte) []byte {
	buf := make([]byte, len(identityPrefix)+len(hash))
	copy(buf, identityPrefix)
	copy(buf[len(identityPrefix):], hash[:])
	return buf
}

func proofIndexKey(proof [20]byte) []byte {
	buf := make([]byte, len(proofPrefix)+len(proof))
	copy(buf, proofPrefix)
	copy(buf[len(proofPrefix):], proof[:])
	return buf
}

type storedAccount struct {
	Owner        [20]byte
	IdentityHash [32]byte
	ProofKey     [20]byte
	Status       uint8
	CreatedAt    uint64
}

type accountEvent struct {
	evt *types.Event
}

func (e accountEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e accountEvent) Event() *types.Event { return e.evt }

// Engine implements the identity/account registry. It is a sibling boundary
// to the market engine: the offer lifecycle never calls into it.
type Engine struct {
	state    storage
	emitter  events.Emitter
	heightFn func() uint64
}

// NewEngine creates an account engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter:  events.NoopEmitter{},
		heightFn: func() uint64 { return 0 },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state storage) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetHeightFunc overrides the logical clock used for id derivation.
func (e *Engine) SetHeightFunc(height func() uint64) {
	if height == nil {
		e.heightFn = func() uint64 { return 0 }
		return
	}
	e.heightFn = height
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(accountEvent{evt: event})
}

func (e *Engine) height() uint64 {
	if e == nil || e.heightFn == nil {
		return 0
	}
	return e.heightFn()
}

// deriveAccountID hashes the seed material with the logical clock and
// truncates, mirroring offer handle derivation.
func deriveAccountID(seed []byte, height uint64) AccountID {
	buf := make([]byte, len(seed)+8)
	copy(buf, seed)
	binary.BigEndian.PutUint64(buf[len(seed):], height)
	digest := ethcrypto.Keccak256(buf)
	var id AccountID
	copy(id[:], digest[:len(id)])
	return id
}

func (e *Engine) load(id AccountID) (*Account, bool, error) {
	stored := new(storedAccount)
	ok, err := e.state.KVGet(accountRecordKey(id), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &Account{
		ID:           id,
		Owner:        stored.Owner,
		IdentityHash: stored.IdentityHash,
		ProofKey:     stored.ProofKey,
		Status:       AccountStatus(stored.Status),
		CreatedAt:    stored.CreatedAt,
	}, true, nil
}

func (e *Engine) store(account *Account) error {
	stored := &storedAccount{
		Owner:        account.Owner,
		IdentityHash: account.IdentityHash,
		ProofKey:     account.ProofKey,
		Status:       uint8(account.Status),
		CreatedAt:    account.CreatedAt,
	}
	return e.state.KVPut(accountRecordKey(account.ID), stored)
}

func (e *Engine) indexProofKey(proof [20]byte, id AccountID) error {
	return e.state.KVPut(proofIndexKey(proof), id[:])
}

func (e *Engine) lookupProofKey(proof [20]byte) (AccountID, bool, error) {
	var raw []byte
	ok, err := e.state.KVGet(proofIndexKey(proof), &raw)
	if err != nil || !ok {
		return AccountID{}, false, err
	}
	var id AccountID
	copy(id[:], raw)
	return id, true, nil
}

// Create issues a new account owned by the given identity. The owner address
// doubles as the initial proof key for signature-based lookups.
func (e *Engine) Create(owner [20]byte) (*Account, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	now := e.height()
	account := &Account{
		ID:        deriveAccountID(owner[:], now),
		Owner:     owner,
		ProofKey:  owner,
		Status:    AccountActive,
		CreatedAt: now,
	}
	if err := e.store(account); err != nil {
		return nil, err
	}
	if err := e.indexProofKey(owner, account.ID); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(account, now))
	return account.Clone(), nil
}

// CreateTemporary issues an unowned account bound to a hashed identity. The
// operation is idempotent per identity hash.
func (e *Engine) CreateTemporary(identityHash [32]byte) (*Account, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var raw []byte
	if ok, err := e.state.KVGet(identityIndexKey(identityHash), &raw); err != nil {
		return nil, err
	} else if ok {
		var id AccountID
		copy(id[:], raw)
		account, found, err := e.load(id)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, ErrAccountNotFound
		}
		return account.Clone(), nil
	}
	now := e.height()
	account := &Account{
		ID:           deriveAccountID(identityHash[:], now),
		IdentityHash: identityHash,
		Status:       AccountTemporary,
		CreatedAt:    now,
	}
	if err := e.store(account); err != nil {
		return nil, err
	}
	if err := e.state.KVPut(identityIndexKey(identityHash), account.ID[:]); err != nil {
		return nil, err
	}
	e.emit(NewTemporaryEvent(account, now))
	return account.Clone(), nil
}

// UnlockTemporary assigns an owner to an identity-locked account. The caller
// presents the identity preimage and a detached password signature over the
// keccak digest of the new owner address; the recovered signer becomes the
// account's proof key.
func (e *Engine) UnlockTemporary(identityPreimage [32]byte, newOwner [20]byte, passwordSignature []byte) (*Account, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	hash := [32]byte{}
	copy(hash[:], ethcrypto.Keccak256(identityPreimage[:]))
	var raw []byte
	ok, err := e.state.KVGet(identityIndexKey(hash), &raw)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrIdentityMismatch
	}
	var id AccountID
	copy(id[:], raw)
	account, found, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrAccountNotFound
	}
	if account.Status != AccountTemporary {
		return nil, ErrNotTemporary
	}
	proof, err := RecoverSigner(ethcrypto.Keccak256(newOwner[:]), passwordSignature)
	if err != nil {
		return nil, err
	}
	account.Owner = newOwner
	account.ProofKey = proof
	account.Status = AccountActive
	if err := e.store(account); err != nil {
		return nil, err
	}
	if err := e.indexProofKey(proof, account.ID); err != nil {
		return nil, err
	}
	e.emit(NewUnlockedEvent(account, e.height()))
	return account.Clone(), nil
}

// GetAccountIDFromSignature recovers the signer of messageHash and resolves
// it to the account whose proof key it is.
func (e *Engine) GetAccountIDFromSignature(messageHash [32]byte, signature []byte) (AccountID, error) {
	if e == nil || e.state == nil {
		return AccountID{}, errNilState
	}
	proof, err := RecoverSigner(messageHash[:], signature)
	if err != nil {
		return AccountID{}, err
	}
	id, ok, err := e.lookupProofKey(proof)
	if err != nil {
		return AccountID{}, err
	}
	if !ok {
		return AccountID{}, ErrUnknownProofKey
	}
	return id, nil
}

// Get returns the stored account record.
func (e *Engine) Get(id AccountID) (*Account, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	account, ok, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAccountNotFound
	}
	return account.Clone(), nil
}

// RecoverSigner recovers the 20-byte address that produced the 65-byte
// secp256k1 signature over hash.
func RecoverSigner(hash []byte, signature []byte) ([20]byte, error) {
	if len(signature) != 65 {
		return [20]byte{}, ErrInvalidSignature
	}
	sig := append([]byte(nil), signature...)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(hash, sig)
	if err != nil {
		return [20]byte{}, ErrInvalidSignature
	}
	var addr [20]byte
	copy(addr[:], ethcrypto.PubkeyToAddress(*pub).Bytes())
	return addr, nil
}
