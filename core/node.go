package core

import (
	"sync"

	"datamarket/core/events"
	"datamarket/core/state"
	"datamarket/core/types"
	"datamarket/native/accounts"
	"datamarket/native/market"
	"datamarket/native/registry"
	"datamarket/observability/metrics"
	"datamarket/storage"
)

var heightKey = []byte("chain/height")

// Node composes the state manager and the native engines behind a single
// facade. It owns the logical clock and serializes every operation under one
// mutex, giving the engines the global total order they are written against:
// operations apply fully or not at all, and no two of them ever interleave.
type Node struct {
	mu sync.Mutex

	db       storage.Database
	state    *state.Manager
	market   *market.Engine
	registry *registry.Engine
	accounts *accounts.Engine
	handlers *market.HandlerRegistry
	recorder *events.Recorder

	height uint64
}

// Config carries the tunables applied to a fresh node.
type Config struct {
	OfferTimeout uint64
	MaxDataIDs   int
	EventBuffer  int
}

// NewNode wires the engines over the provided database. The stored height is
// restored so the logical clock stays monotonic across restarts.
func NewNode(db storage.Database, cfg Config) (*Node, error) {
	manager := state.NewManager(db)
	node := &Node{
		db:       db,
		state:    manager,
		handlers: market.NewHandlerRegistry(),
		recorder: events.NewRecorder(cfg.EventBuffer),
	}
	var stored uint64
	if ok, err := manager.KVGet(heightKey, &stored); err != nil {
		return nil, err
	} else if ok {
		node.height = stored
	}

	heightFn := func() uint64 { return node.height }

	node.registry = registry.NewEngine()
	node.registry.SetState(manager)
	node.registry.SetEmitter(node.recorder)
	node.registry.SetHeightFunc(heightFn)

	node.accounts = accounts.NewEngine()
	node.accounts.SetState(manager)
	node.accounts.SetEmitter(node.recorder)
	node.accounts.SetHeightFunc(heightFn)

	node.market = market.NewEngine()
	node.market.SetState(manager)
	node.market.SetRegistry(node.registry)
	node.market.SetHandlers(node.handlers)
	node.market.SetEmitter(node.recorder)
	node.market.SetHeightFunc(heightFn)
	if cfg.OfferTimeout != 0 {
		node.market.SetOfferTimeout(cfg.OfferTimeout)
	}
	if cfg.MaxDataIDs != 0 {
		node.market.SetMaxDataIDs(cfg.MaxDataIDs)
	}
	return node, nil
}

// State exposes the underlying state manager for settlement handler wiring.
func (n *Node) State() *state.Manager { return n.state }

// Handlers exposes the settlement handler registry.
func (n *Node) Handlers() *market.HandlerRegistry { return n.handlers }

// Height returns the current logical clock value.
func (n *Node) Height() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.height
}

// advance moves the logical clock forward one tick and persists it. Called at
// the start of every mutating operation; read-only queries do not tick.
func (n *Node) advance() error {
	n.height++
	return n.state.KVPut(heightKey, n.height)
}

// Events returns a snapshot of the retained lifecycle events.
func (n *Node) Events() []*types.Event {
	recorded := n.recorder.Events()
	out := make([]*types.Event, 0, len(recorded))
	for _, evt := range recorded {
		carrier, ok := evt.(interface{ Event() *types.Event })
		if !ok {
			continue
		}
		out = append(out, carrier.Event())
	}
	return out
}

// --- Market facade ---

// PrepareOffer creates a neutral offer.
func (n *Node) PrepareOffer(caller [20]byte, provider string, consumer [20]byte, escrow market.EscrowCall, nonce uint64, dataIDs []market.DataID) (*market.Offer, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.advance(); err != nil {
		return nil, err
	}
	offer, err := n.market.Prepare(caller, provider, consumer, escrow, nonce, dataIDs)
	if err != nil {
		metrics.OperationErrors.WithLabelValues("prepare").Inc()
		return nil, err
	}
	metrics.OffersPrepared.Inc()
	return offer, nil
}

// AddDataIDs appends identifiers to a neutral offer's bundle.
func (n *Node) AddDataIDs(caller [20]byte, id market.OfferID, dataIDs []market.DataID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.advance(); err != nil {
		return err
	}
	if err := n.market.AddDataIDs(caller, id, dataIDs); err != nil {
		metrics.OperationErrors.WithLabelValues("addDataIds").Inc()
		return err
	}
	return nil
}

// OrderOffer presents a neutral offer to its consumer.
func (n *Node) OrderOffer(caller [20]byte, id market.OfferID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.advance(); err != nil {
		return err
	}
	if err := n.market.Order(caller, id); err != nil {
		metrics.OperationErrors.WithLabelValues("order").Inc()
		return err
	}
	return nil
}

// CancelOffer withdraws a pending offer.
func (n *Node) CancelOffer(caller [20]byte, id market.OfferID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.advance(); err != nil {
		return err
	}
	if err := n.market.Cancel(caller, id); err != nil {
		metrics.OperationErrors.WithLabelValues("cancel").Inc()
		return err
	}
	return nil
}

// SettleOffer drives the escrow invocation for a pending offer.
func (n *Node) SettleOffer(caller [20]byte, id market.OfferID) (*market.SettlementResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.advance(); err != nil {
		return nil, err
	}
	result, err := n.market.Settle(caller, id)
	if err != nil {
		metrics.OperationErrors.WithLabelValues("settle").Inc()
		return nil, err
	}
	if result.Settled {
		metrics.OffersSettled.Inc()
	} else {
		metrics.EscrowFailures.Inc()
	}
	return result, nil
}

// RejectOffer declines a pending offer.
func (n *Node) RejectOffer(caller [20]byte, id market.OfferID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.advance(); err != nil {
		return err
	}
	if err := n.market.Reject(caller, id); err != nil {
		metrics.OperationErrors.WithLabelValues("reject").Inc()
		return err
	}
	return nil
}

// OfferExists reports whether a live offer is stored under the handle.
func (n *Node) OfferExists(id market.OfferID) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.market.OfferExists(id)
}

// GetOffer returns a copy of the stored offer.
func (n *Node) GetOffer(id market.OfferID) (*market.Offer, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.market.GetOffer(id)
}

// GetOfferMembers resolves the provider owner identity and consumer address.
func (n *Node) GetOfferMembers(id market.OfferID) ([20]byte, [20]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.market.GetOfferMembers(id)
}

// --- Registry facade ---

// RegisterApplication binds an application name to its owner identity.
func (n *Node) RegisterApplication(name string, owner [20]byte) (*registry.App, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.advance(); err != nil {
		return nil, err
	}
	return n.registry.Register(name, owner)
}

// TransferApplication hands an application to a new owner.
func (n *Node) TransferApplication(name string, caller [20]byte, newOwner [20]byte) (*registry.App, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.advance(); err != nil {
		return nil, err
	}
	return n.registry.Transfer(name, caller, newOwner)
}

// ApplicationExists reports whether the name is registered.
func (n *Node) ApplicationExists(name string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.Exists(name)
}

// GetApplication returns the registered application record.
func (n *Node) GetApplication(name string) (*registry.App, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.Get(name)
}

// IsApplicationOwner reports whether identity owns the named application.
func (n *Node) IsApplicationOwner(name string, identity [20]byte) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.IsOwner(name, identity)
}

// --- Accounts facade ---

// CreateAccount issues a new owned account.
func (n *Node) CreateAccount(owner [20]byte) (*accounts.Account, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.advance(); err != nil {
		return nil, err
	}
	return n.accounts.Create(owner)
}

// CreateTemporaryAccount issues an identity-locked account.
func (n *Node) CreateTemporaryAccount(identityHash [32]byte) (*accounts.Account, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.advance(); err != nil {
		return nil, err
	}
	return n.accounts.CreateTemporary(identityHash)
}

// UnlockTemporaryAccount claims an identity-locked account for newOwner.
func (n *Node) UnlockTemporaryAccount(identityPreimage [32]byte, newOwner [20]byte, passwordSignature []byte) (*accounts.Account, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.advance(); err != nil {
		return nil, err
	}
	return n.accounts.UnlockTemporary(identityPreimage, newOwner, passwordSignature)
}

// AccountIDFromSignature resolves a detached signature to the signer's
// account handle.
func (n *Node) AccountIDFromSignature(messageHash [32]byte, signature []byte) (accounts.AccountID, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.accounts.GetAccountIDFromSignature(messageHash, signature)
}

// GetAccountRecord returns the registered account record.
func (n *Node) GetAccountRecord(id accounts.AccountID) (*accounts.Account, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.accounts.Get(id)
}

// GetBalance returns the ledger account stored under the address.
func (n *Node) GetBalance(addr [20]byte) (*types.Account, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.GetAccount(addr[:])
}

// SetLedgerAccount overwrites the ledger account stored under the address.
// Used by the daemon for genesis funding and by tests.
func (n *Node) SetLedgerAccount(addr [20]byte, account *types.Account) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.PutAccount(addr[:], account)
}
