package registry

import (
	"encoding/hex"
	"strconv"

	"datamarket/core/types"
)

const (
	EventTypeAppRegistered  = "registry.app.registered"
	EventTypeAppTransferred = "registry.app.transferred"
)

// NewRegisteredEvent returns the canonical payload for a newly registered
// application.
func NewRegisteredEvent(app *App, height uint64) *types.Event {
	return newAppEvent(EventTypeAppRegistered, app, height)
}

// NewTransferredEvent returns the payload emitted on ownership handover.
func NewTransferredEvent(app *App, height uint64) *types.Event {
	return newAppEvent(EventTypeAppTransferred, app, height)
}

func newAppEvent(eventType string, app *App, height uint64) *types.Event {
	attrs := make(map[string]string)
	attrs["height"] = strconv.FormatUint(height, 10)
	if app == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["name"] = app.Name
	attrs["owner"] = hex.EncodeToString(app.Owner[:])
	attrs["hashedName"] = hex.EncodeToString(app.HashedName[:])
	return &types.Event{Type: eventType, Attributes: attrs}
}
