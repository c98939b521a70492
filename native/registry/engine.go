package registry

import (
	"errors"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"datamarket/core/events"
	"datamarket/core/types"
)

var errNilState = errors.New("registry engine: state not configured")

// storage abstracts the subset of state manager functionality required by
// the application registry.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var appPrefix = []byte("registry/app/")

func appKey(hashedName [32]byte) []byte {
	buf := make([]byte, len(appPrefix)+len(hashedName))
	copy(buf, appPrefix)
	copy(buf[len(appPrefix):], hashedName[:])
	return buf
}

type storedApp struct {
	Name         string
	Owner        [20]byte
	RegisteredAt uint64
}

type registryEvent struct {
	evt *types.Event
}

func (e registryEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e registryEvent) Event() *types.Event { return e.evt }

// Engine maintains the mapping from application names to their owning
// identity. The market engine consults it as a read-only authorization
// oracle; registration and ownership transfer are exposed to callers through
// the node facade.
type Engine struct {
	state    storage
	emitter  events.Emitter
	heightFn func() uint64
}

// NewEngine creates a registry engine with a no-op emitter.
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

// SetHeightFunc overrides the logical clock used for registration metadata.
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
	e.emitter.Emit(registryEvent{evt: event})
}

func (e *Engine) height() uint64 {
	if e == nil || e.heightFn == nil {
		return 0
	}
	return e.heightFn()
}

// HashName returns the keccak256 digest of the normalized name.
func HashName(name string) [32]byte {
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256([]byte(name)))
	return out
}

func (e *Engine) load(name string) (*App, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	normalized, err := NormalizeName(name)
	if err != nil {
		return nil, false, err
	}
	hashed := HashName(normalized)
	stored := new(storedApp)
	ok, err := e.state.KVGet(appKey(hashed), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &App{
		Name:         stored.Name,
		Owner:        stored.Owner,
		HashedName:   hashed,
		RegisteredAt: stored.RegisteredAt,
	}, true, nil
}

func (e *Engine) store(app *App) error {
	stored := &storedApp{
		Name:         app.Name,
		Owner:        app.Owner,
		RegisteredAt: app.RegisteredAt,
	}
	return e.state.KVPut(appKey(app.HashedName), stored)
}

// Register binds the application name to the owner identity. Names are
// normalized before storage and duplicates are refused.
func (e *Engine) Register(name string, owner [20]byte) (*App, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	normalized, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	if _, ok, err := e.load(normalized); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrNameTaken
	}
	app := &App{
		Name:         normalized,
		Owner:        owner,
		HashedName:   HashName(normalized),
		RegisteredAt: e.height(),
	}
	if err := e.store(app); err != nil {
		return nil, err
	}
	e.emit(NewRegisteredEvent(app, e.height()))
	return app.Clone(), nil
}

// Transfer hands the application over to a new owner. Only the current owner
// may transfer.
func (e *Engine) Transfer(name string, caller [20]byte, newOwner [20]byte) (*App, error) {
	app, ok, err := e.load(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAppNotFound
	}
	if app.Owner != caller {
		return nil, ErrNotOwner
	}
	app.Owner = newOwner
	if err := e.store(app); err != nil {
		return nil, err
	}
	e.emit(NewTransferredEvent(app, e.height()))
	return app.Clone(), nil
}

// Exists reports whether the name is registered.
func (e *Engine) Exists(name string) (bool, error) {
	_, ok, err := e.load(name)
	if errors.Is(err, ErrInvalidName) {
		return false, nil
	}
	return ok, err
}

// Get returns the registered application record.
func (e *Engine) Get(name string) (*App, error) {
	app, ok, err := e.load(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAppNotFound
	}
	return app.Clone(), nil
}

// Owner resolves the name to its owning identity.
func (e *Engine) Owner(name string) ([20]byte, error) {
	app, err := e.Get(name)
	if err != nil {
		return [20]byte{}, err
	}
	return app.Owner, nil
}

// IsOwner reports whether identity owns the named application. Unregistered
// names are simply not owned.
func (e *Engine) IsOwner(name string, identity [20]byte) (bool, error) {
	app, ok, err := e.load(name)
	if errors.Is(err, ErrInvalidName) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return app.Owner == identity, nil
}
