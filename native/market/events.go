package market

import (
	"encoding/hex"
	"strconv"

	"datamarket/core/types"
)

const (
	EventTypeOfferPrepared  = "market.offer.prepared"
	EventTypeOfferPresented = "market.offer.presented"
	EventTypeOfferCanceled  = "market.offer.canceled"
	EventTypeOfferSettled   = "market.offer.settled"
	EventTypeOfferReceipt   = "market.offer.receipt"
	EventTypeEscrowFailed   = "market.escrow.failed"
	EventTypeOfferRejected  = "market.offer.rejected"
)

// NewPreparedEvent returns the canonical payload for a newly prepared offer.
func NewPreparedEvent(o *Offer, height uint64) *types.Event {
	return newOfferEvent(EventTypeOfferPrepared, o, height)
}

// NewPresentedEvent returns the payload emitted when an offer is presented to
// its consumer and the settlement countdown starts.
func NewPresentedEvent(o *Offer, height uint64) *types.Event {
	return newOfferEvent(EventTypeOfferPresented, o, height)
}

// NewCanceledEvent returns the payload emitted when the provider withdraws a
// pending offer.
func NewCanceledEvent(o *Offer, height uint64) *types.Event {
	return newOfferEvent(EventTypeOfferCanceled, o, height)
}

// NewSettledEvent returns the payload emitted when escrow execution succeeds.
func NewSettledEvent(o *Offer, height uint64) *types.Event {
	return newOfferEvent(EventTypeOfferSettled, o, height)
}

// NewRejectedEvent returns the payload emitted when the consumer declines a
// pending offer.
func NewRejectedEvent(o *Offer, height uint64) *types.Event {
	return newOfferEvent(EventTypeOfferRejected, o, height)
}

// NewReceiptEvent carries the settlement handler's return payload verbatim.
func NewReceiptEvent(o *Offer, receipt []byte, height uint64) *types.Event {
	evt := newOfferEvent(EventTypeOfferReceipt, o, height)
	evt.Attributes["receipt"] = hex.EncodeToString(receipt)
	return evt
}

// NewEscrowFailedEvent carries the failure reason of a settlement attempt
// that left the offer pending.
func NewEscrowFailedEvent(o *Offer, reason string, height uint64) *types.Event {
	evt := newOfferEvent(EventTypeEscrowFailed, o, height)
	evt.Attributes["reason"] = reason
	return evt
}

func newOfferEvent(eventType string, o *Offer, height uint64) *types.Event {
	attrs := make(map[string]string)
	attrs["height"] = strconv.FormatUint(height, 10)
	if o == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = hex.EncodeToString(o.ID[:])
	attrs["provider"] = o.Provider
	attrs["consumer"] = hex.EncodeToString(o.Consumer[:])
	attrs["status"] = o.Status.String()
	attrs["dataIds"] = strconv.Itoa(len(o.DataIDs))
	if o.At != 0 {
		attrs["at"] = strconv.FormatUint(o.At, 10)
		attrs["until"] = strconv.FormatUint(o.Until, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
