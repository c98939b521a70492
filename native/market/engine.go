package market

import (
	"errors"
	"fmt"

	"datamarket/core/events"
	"datamarket/core/types"
)

var (
	errNilState    = errors.New("market engine: state not configured")
	errNilRegistry = errors.New("market engine: application registry not configured")

	// ErrOfferNotFound marks lookups for handles that were never assigned.
	ErrOfferNotFound = errors.New("market: offer not found")
	// ErrOfferExists is returned when Prepare would overwrite a live offer.
	ErrOfferExists = errors.New("market: offer already exists")
	// ErrUnknownApplication marks offers naming an unregistered provider.
	ErrUnknownApplication = errors.New("market: unknown provider application")
	// ErrNotProvider marks callers that do not control the provider
	// application of the offer they are acting on.
	ErrNotProvider = errors.New("market: caller does not control provider application")
	// ErrNotConsumer marks settlement or rejection attempts by anyone other
	// than the offer's consumer.
	ErrNotConsumer = errors.New("market: caller is not the offer consumer")
	// ErrOfferNotNeutral marks mutations that require an unpresented offer.
	ErrOfferNotNeutral = errors.New("market: offer is not neutral")
	// ErrOfferNotPending marks transitions that require a presented offer.
	ErrOfferNotPending = errors.New("market: offer is not pending")
	// ErrBundleLimit is returned when an offer would exceed the configured
	// data id bundle size. The stored bundle is left unchanged.
	ErrBundleLimit = errors.New("market: data id bundle limit exceeded")
	// ErrNoHandler marks settlement attempts against an address with no
	// registered settlement handler.
	ErrNoHandler = errors.New("market: no settlement handler registered")
	// ErrReentrancy rejects engine calls made while a settlement handler is
	// in flight.
	ErrReentrancy = errors.New("market: settlement in progress")
)

// DefaultMaxDataIDs bounds the bundle size of a single offer unless the
// engine is configured otherwise.
const DefaultMaxDataIDs = 256

// DefaultOfferTimeout is the advisory settlement window, in heights, granted
// to the consumer once an offer is presented.
const DefaultOfferTimeout = 240

type engineState interface {
	OfferPut(*Offer) error
	OfferGet(id OfferID) (*Offer, bool, error)
}

// applicationRegistry is the read-only authorization oracle binding provider
// application names to their owning identity.
type applicationRegistry interface {
	Exists(name string) (bool, error)
	Owner(name string) ([20]byte, error)
	IsOwner(name string, identity [20]byte) (bool, error)
}

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

// SettlementResult reports the outcome of a settlement attempt. Escrow
// failure is a recoverable condition, not an error: Settled is false, Reason
// carries the handler's failure reason and the offer remains pending so the
// consumer may retry or reject.
type SettlementResult struct {
	Settled bool
	Receipt []byte
	Reason  string
}

// Engine drives the offer lifecycle: it creates offers, enforces the
// per-state authorization and mutation rules, and performs settlement through
// externally supplied handlers. All mutation happens through the transition
// operations; callers only ever receive deep copies of stored offers.
type Engine struct {
	state      engineState
	apps       applicationRegistry
	handlers   *HandlerRegistry
	emitter    events.Emitter
	heightFn   func() uint64
	timeout    uint64
	maxDataIDs int
	settling   bool
}

// NewEngine creates a market engine with a no-op emitter and default limits.
// Callers configure state, registry and handlers before use.
func NewEngine() *Engine {
	return &Engine{
		emitter:    events.NoopEmitter{},
		handlers:   NewHandlerRegistry(),
		heightFn:   func() uint64 { return 0 },
		timeout:    DefaultOfferTimeout,
		maxDataIDs: DefaultMaxDataIDs,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRegistry configures the application registry consulted for provider
// authorization.
func (e *Engine) SetRegistry(apps applicationRegistry) { e.apps = apps }

// SetHandlers configures the settlement handler registry. Passing nil resets
// the engine to an empty registry.
func (e *Engine) SetHandlers(handlers *HandlerRegistry) {
	if handlers == nil {
		e.handlers = NewHandlerRegistry()
		return
	}
	e.handlers = handlers
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetHeightFunc overrides the logical clock used by the engine. The source
// must be monotonic; the surrounding node advances it once per operation.
func (e *Engine) SetHeightFunc(height func() uint64) {
	if height == nil {
		e.heightFn = func() uint64 { return 0 }
		return
	}
	e.heightFn = height
}

// SetOfferTimeout configures the advisory settlement window in heights.
func (e *Engine) SetOfferTimeout(timeout uint64) {
	if timeout == 0 {
		timeout = DefaultOfferTimeout
	}
	e.timeout = timeout
}

// SetMaxDataIDs configures the bundle size limit per offer.
func (e *Engine) SetMaxDataIDs(limit int) {
	if limit <= 0 {
		limit = DefaultMaxDataIDs
	}
	e.maxDataIDs = limit
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: event})
}

func (e *Engine) height() uint64 {
	if e == nil || e.heightFn == nil {
		return 0
	}
	return e.heightFn()
}

func (e *Engine) guard() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.apps == nil {
		return errNilRegistry
	}
	if e.settling {
		return ErrReentrancy
	}
	return nil
}

func (e *Engine) loadOffer(id OfferID) (*Offer, error) {
	offer, ok, err := e.state.OfferGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOfferNotFound
	}
	return offer, nil
}

func (e *Engine) requireProvider(offer *Offer, caller [20]byte) error {
	ok, err := e.apps.IsOwner(offer.Provider, caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotProvider
	}
	return nil
}

// Prepare creates a neutral offer binding the provider application, the
// consumer and the escrow invocation triple. The nonce distinguishes offers
// created by the same caller at the same height; zero is fine for fresh
// offers.
func (e *Engine) Prepare(caller [20]byte, provider string, consumer [20]byte, escrow EscrowCall, nonce uint64, dataIDs []DataID) (*Offer, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	normalized, err := NormalizeProvider(provider)
	if err != nil {
		return nil, err
	}
	exists, err := e.apps.Exists(normalized)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUnknownApplication
	}
	if len(dataIDs) > e.maxDataIDs {
		return nil, ErrBundleLimit
	}
	now := e.height()
	id := DeriveOfferID(caller, now, nonce)
	if _, ok, err := e.state.OfferGet(id); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrOfferExists
	}
	offer := &Offer{
		ID:       id,
		Provider: normalized,
		Consumer: consumer,
		DataIDs:  append([]DataID(nil), dataIDs...),
		Escrow: EscrowCall{
			Handler:  escrow.Handler,
			Selector: escrow.Selector,
			Args:     append([]byte(nil), escrow.Args...),
		},
		Status: OfferNeutral,
	}
	if err := e.state.OfferPut(offer); err != nil {
		return nil, err
	}
	e.emit(NewPreparedEvent(offer, now))
	return offer.Clone(), nil
}

// AddDataIDs appends data identifiers to a neutral offer. Only an identity
// controlling the provider application may extend the bundle.
func (e *Engine) AddDataIDs(caller [20]byte, id OfferID, dataIDs []DataID) error {
	if err := e.guard(); err != nil {
		return err
	}
	offer, err := e.loadOffer(id)
	if err != nil {
		return err
	}
	if err := e.requireProvider(offer, caller); err != nil {
		return err
	}
	if offer.Status != OfferNeutral {
		return ErrOfferNotNeutral
	}
	if len(offer.DataIDs)+len(dataIDs) > e.maxDataIDs {
		return ErrBundleLimit
	}
	offer.DataIDs = append(offer.DataIDs, dataIDs...)
	return e.state.OfferPut(offer)
}

// Order presents a neutral offer to its consumer: the offer becomes pending,
// the presentation height is recorded and the settlement window starts.
func (e *Engine) Order(caller [20]byte, id OfferID) error {
	if err := e.guard(); err != nil {
		return err
	}
	offer, err := e.loadOffer(id)
	if err != nil {
		return err
	}
	if err := e.requireProvider(offer, caller); err != nil {
		return err
	}
	if offer.Status != OfferNeutral {
		return ErrOfferNotNeutral
	}
	now := e.height()
	offer.At = now
	offer.Until = now + e.timeout
	offer.Status = OfferPending
	if err := e.state.OfferPut(offer); err != nil {
		return err
	}
	e.emit(NewPresentedEvent(offer, now))
	return nil
}

// Cancel withdraws a pending offer on behalf of the provider.
func (e *Engine) Cancel(caller [20]byte, id OfferID) error {
	if err := e.guard(); err != nil {
		return err
	}
	offer, err := e.loadOffer(id)
	if err != nil {
		return err
	}
	if err := e.requireProvider(offer, caller); err != nil {
		return err
	}
	if offer.Status != OfferPending {
		return ErrOfferNotPending
	}
	offer.Status = OfferCanceled
	if err := e.state.OfferPut(offer); err != nil {
		return err
	}
	e.emit(NewCanceledEvent(offer, e.height()))
	return nil
}

// Reject declines a pending offer on behalf of the consumer.
func (e *Engine) Reject(caller [20]byte, id OfferID) error {
	if err := e.guard(); err != nil {
		return err
	}
	offer, err := e.loadOffer(id)
	if err != nil {
		return err
	}
	if offer.Consumer != caller {
		return ErrNotConsumer
	}
	if offer.Status != OfferPending {
		return ErrOfferNotPending
	}
	offer.Status = OfferRejected
	if err := e.state.OfferPut(offer); err != nil {
		return err
	}
	e.emit(NewRejectedEvent(offer, e.height()))
	return nil
}

// Settle performs the single escrow invocation for a pending offer. Handler
// failure is surfaced as a recoverable outcome: the offer stays pending, an
// escrow failure event is emitted and no error is returned. Authorization and
// state violations remain fatal errors. The handler call executes under a
// reentrancy guard; any nested engine call made while it is in flight fails
// with ErrReentrancy.
func (e *Engine) Settle(caller [20]byte, id OfferID) (*SettlementResult, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	offer, err := e.loadOffer(id)
	if err != nil {
		return nil, err
	}
	if offer.Consumer != caller {
		return nil, ErrNotConsumer
	}
	if offer.Status != OfferPending {
		return nil, ErrOfferNotPending
	}
	handler, ok := e.handlers.Resolve(offer.Escrow.Handler)
	if !ok {
		return nil, ErrNoHandler
	}
	receipt, attemptErr := e.invoke(handler, offer)
	now := e.height()
	if attemptErr != nil {
		e.emit(NewEscrowFailedEvent(offer, attemptErr.Error(), now))
		return &SettlementResult{Settled: false, Reason: attemptErr.Error()}, nil
	}
	offer.Status = OfferSettled
	if err := e.state.OfferPut(offer); err != nil {
		return nil, err
	}
	e.emit(NewSettledEvent(offer, now))
	e.emit(NewReceiptEvent(offer, receipt, now))
	return &SettlementResult{Settled: true, Receipt: receipt}, nil
}

// invoke runs the external settlement call with the reentrancy flag set. The
// flag is cleared on every exit path, including handler panics unwinding.
func (e *Engine) invoke(handler SettlementHandler, offer *Offer) ([]byte, error) {
	e.settling = true
	defer func() { e.settling = false }()
	return handler.Attempt(offer.ID, offer.Escrow.Selector, offer.Escrow.Args)
}

// OfferExists reports whether a live offer is stored under the handle.
func (e *Engine) OfferExists(id OfferID) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	_, ok, err := e.state.OfferGet(id)
	return ok, err
}

// GetOffer returns a deep copy of the stored offer.
func (e *Engine) GetOffer(id OfferID) (*Offer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadOffer(id)
}

// GetOfferMembers resolves the offer's provider application to its owning
// identity and returns it together with the consumer address.
func (e *Engine) GetOfferMembers(id OfferID) (provider [20]byte, consumer [20]byte, err error) {
	if e == nil || e.state == nil {
		return provider, consumer, errNilState
	}
	if e.apps == nil {
		return provider, consumer, errNilRegistry
	}
	offer, err := e.loadOffer(id)
	if err != nil {
		return provider, consumer, err
	}
	owner, err := e.apps.Owner(offer.Provider)
	if err != nil {
		return provider, consumer, fmt.Errorf("market: resolve provider owner: %w", err)
	}
	return owner, offer.Consumer, nil
}
