package market

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"datamarket/core/types"
)

// SettlementHandler is the capability invoked exactly once per settlement
// attempt. The engine passes the offer handle for correlation together with
// the selector and argument bytes fixed on the offer at prepare time. A nil
// error marks settlement success and the returned payload is surfaced to the
// caller verbatim as a receipt; an error marks a recoverable failure and
// leaves the offer pending.
type SettlementHandler interface {
	Attempt(id OfferID, selector [4]byte, args []byte) ([]byte, error)
}

// HandlerRegistry resolves settlement handlers by their 20-byte address.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[[20]byte]SettlementHandler
}

// NewHandlerRegistry constructs an empty handler registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[[20]byte]SettlementHandler)}
}

// Register binds the handler to the given address, replacing any previous
// binding.
func (r *HandlerRegistry) Register(addr [20]byte, handler SettlementHandler) {
	if r == nil || handler == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[addr] = handler
}

// Resolve returns the handler bound to addr, if any.
func (r *HandlerRegistry) Resolve(addr [20]byte) (SettlementHandler, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[addr]
	return handler, ok
}

// --- Token transfer handler ---

// TokenTransferSelector identifies the transfer method understood by the
// token settlement handler.
var TokenTransferSelector = [4]byte{0x7f, 0x2c, 0x3a, 0x91}

// TokenHandlerAddress returns the well-known address the daemon binds the
// token settlement handler to.
func TokenHandlerAddress() [20]byte {
	digest := ethcrypto.Keccak256([]byte("datamarket/token-handler"))
	var addr [20]byte
	copy(addr[:], digest[:len(addr)])
	return addr
}

// TokenTransferArgs is the pre-encoded argument payload consumed by the
// token settlement handler.
type TokenTransferArgs struct {
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}

// EncodeTokenTransferArgs serialises the payload for storage on an offer.
func EncodeTokenTransferArgs(args TokenTransferArgs) ([]byte, error) {
	if args.Amount == nil || args.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("market: transfer amount must be positive")
	}
	return rlp.EncodeToBytes(&args)
}

type handlerState interface {
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// TokenHandler settles offers by moving the agreed token amount between the
// accounts named in the escrow arguments. It is the reference settlement
// handler wired by the daemon; arbitrary external handlers plug in through
// the same interface.
type TokenHandler struct {
	state handlerState
}

// NewTokenHandler constructs a token handler over the given account state.
func NewTokenHandler(state handlerState) *TokenHandler {
	return &TokenHandler{state: state}
}

var errInsufficientBalance = errors.New("market: insufficient balance for settlement")

// Attempt implements the SettlementHandler interface.
func (h *TokenHandler) Attempt(id OfferID, selector [4]byte, args []byte) ([]byte, error) {
	if h == nil || h.state == nil {
		return nil, errors.New("market: token handler state not configured")
	}
	if selector != TokenTransferSelector {
		return nil, fmt.Errorf("market: unknown settlement selector %x", selector)
	}
	decoded := new(TokenTransferArgs)
	if err := rlp.DecodeBytes(args, decoded); err != nil {
		return nil, fmt.Errorf("market: malformed settlement arguments: %w", err)
	}
	amount := decoded.Amount
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("market: transfer amount must be positive")
	}
	fromAcc, err := h.state.GetAccount(decoded.From[:])
	if err != nil {
		return nil, err
	}
	toAcc, err := h.state.GetAccount(decoded.To[:])
	if err != nil {
		return nil, err
	}
	fromAcc.EnsureDefaults()
	toAcc.EnsureDefaults()
	if fromAcc.Balance.Cmp(amount) < 0 {
		return nil, errInsufficientBalance
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := h.state.PutAccount(decoded.From[:], fromAcc); err != nil {
		return nil, err
	}
	if err := h.state.PutAccount(decoded.To[:], toAcc); err != nil {
		return nil, err
	}
	receipt := append([]byte(nil), id[:]...)
	receipt = append(receipt, amount.Bytes()...)
	return receipt, nil
}
