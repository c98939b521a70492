package accounts

import (
	"encoding/hex"
	"strconv"

	"datamarket/core/types"
)

const (
	EventTypeAccountCreated   = "accounts.created"
	EventTypeAccountTemporary = "accounts.temporary.created"
	EventTypeAccountUnlocked  = "accounts.unlocked"
)

// NewCreatedEvent returns the canonical payload for a newly issued account.
func NewCreatedEvent(a *Account, height uint64) *types.Event {
	return newAccountEvent(EventTypeAccountCreated, a, height)
}

// NewTemporaryEvent returns the payload for an identity-locked account.
func NewTemporaryEvent(a *Account, height uint64) *types.Event {
	return newAccountEvent(EventTypeAccountTemporary, a, height)
}

// NewUnlockedEvent returns the payload emitted when a temporary account is
// claimed by its owner.
func NewUnlockedEvent(a *Account, height uint64) *types.Event {
	return newAccountEvent(EventTypeAccountUnlocked, a, height)
}

func newAccountEvent(eventType string, a *Account, height uint64) *types.Event {
	attrs := make(map[string]string)
	attrs["height"] = strconv.FormatUint(height, 10)
	if a == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = hex.EncodeToString(a.ID[:])
	if a.Status == AccountActive {
		attrs["owner"] = hex.EncodeToString(a.Owner[:])
	}
	if a.IdentityHash != ([32]byte{}) {
		attrs["identityHash"] = hex.EncodeToString(a.IdentityHash[:])
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
