package market

import (
	"fmt"
	"strings"
)

// OfferStatus represents the lifecycle states of a marketplace offer.
type OfferStatus uint8

const (
	OfferNeutral OfferStatus = iota
	OfferPending
	OfferSettled
	OfferCanceled
	OfferRejected
)

// OfferID is the opaque 8-byte handle assigned to an offer at creation. It is
// derived from the creator, the logical clock and a caller-supplied nonce and
// never reused.
type OfferID [8]byte

// DataID identifies a single piece of content bundled in an offer.
type DataID [20]byte

// EscrowCall describes how the engine invokes the external settlement logic
// attached to an offer: the handler address, the method selector understood
// by that handler and the pre-encoded argument bytes. The triple is fixed at
// prepare time.
type EscrowCall struct {
	Handler  [20]byte
	Selector [4]byte
	Args     []byte
}

// Offer captures a proposed exchange of a data bundle between a provider
// application and a consumer. At records the height at which the offer was
// presented (0 while neutral) and Until the advisory settlement boundary.
type Offer struct {
	ID       OfferID
	Provider string
	Consumer [20]byte
	DataIDs  []DataID
	Escrow   EscrowCall
	At       uint64
	Until    uint64
	Status   OfferStatus
}

// Clone returns a deep copy of the offer so callers can safely mutate the
// copy without affecting the stored instance.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	clone := *o
	if o.DataIDs != nil {
		clone.DataIDs = append([]DataID(nil), o.DataIDs...)
	}
	if o.Escrow.Args != nil {
		clone.Escrow.Args = append([]byte(nil), o.Escrow.Args...)
	}
	return &clone
}

// Valid reports whether the status value is within the supported range.
func (s OfferStatus) Valid() bool {
	switch s {
	case OfferNeutral, OfferPending, OfferSettled, OfferCanceled, OfferRejected:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status is one of the three permanent outcomes.
func (s OfferStatus) Terminal() bool {
	switch s {
	case OfferSettled, OfferCanceled, OfferRejected:
		return true
	default:
		return false
	}
}

// String returns the canonical lowercase name of the status.
func (s OfferStatus) String() string {
	switch s {
	case OfferNeutral:
		return "neutral"
	case OfferPending:
		return "pending"
	case OfferSettled:
		return "settled"
	case OfferCanceled:
		return "canceled"
	case OfferRejected:
		return "rejected"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// NormalizeProvider lowercases and trims the provider application name. The
// registry enforces the full naming constraints; the engine only requires a
// non-empty canonical form.
func NormalizeProvider(name string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if trimmed == "" {
		return "", fmt.Errorf("market: provider name must not be empty")
	}
	return trimmed, nil
}

// SanitizeOffer validates and normalises the supplied offer, returning a
// cloned instance. The function does not mutate the original value.
func SanitizeOffer(o *Offer) (*Offer, error) {
	if o == nil {
		return nil, fmt.Errorf("market: nil offer")
	}
	clone := o.Clone()
	provider, err := NormalizeProvider(clone.Provider)
	if err != nil {
		return nil, err
	}
	clone.Provider = provider
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("market: invalid offer status: %d", clone.Status)
	}
	if clone.Status == OfferNeutral && (clone.At != 0 || clone.Until != 0) {
		return nil, fmt.Errorf("market: neutral offer must not carry presentation heights")
	}
	if clone.Until < clone.At {
		return nil, fmt.Errorf("market: offer expiry precedes presentation height")
	}
	return clone, nil
}
