package state

import (
	"datamarket/native/market"
)

var offerPrefix = []byte("market/offer/")

func offerKey(id market.OfferID) []byte {
	buf := make([]byte, len(offerPrefix)+len(id))
	copy(buf, offerPrefix)
	copy(buf[len(offerPrefix):], id[:])
	return buf
}

type storedOffer struct {
	ID       market.OfferID
	Provider string
	Consumer [20]byte
	DataIDs  []market.DataID
	Handler  [20]byte
	Selector [4]byte
	Args     []byte
	At       uint64
	Until    uint64
	Status   uint8
}

// OfferPut persists the sanitized offer under its handle.
func (m *Manager) OfferPut(offer *market.Offer) error {
	sanitized, err := market.SanitizeOffer(offer)
	if err != nil {
		return err
	}
	stored := &storedOffer{
		ID:       sanitized.ID,
		Provider: sanitized.Provider,
		Consumer: sanitized.Consumer,
		DataIDs:  sanitized.DataIDs,
		Handler:  sanitized.Escrow.Handler,
		Selector: sanitized.Escrow.Selector,
		Args:     sanitized.Escrow.Args,
		At:       sanitized.At,
		Until:    sanitized.Until,
		Status:   uint8(sanitized.Status),
	}
	return m.KVPut(offerKey(sanitized.ID), stored)
}

// OfferGet loads the offer stored under the handle. Each call decodes a
// fresh copy so callers never share mutable state with the store.
func (m *Manager) OfferGet(id market.OfferID) (*market.Offer, bool, error) {
	stored := new(storedOffer)
	ok, err := m.KVGet(offerKey(id), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	offer := &market.Offer{
		ID:       stored.ID,
		Provider: stored.Provider,
		Consumer: stored.Consumer,
		DataIDs:  stored.DataIDs,
		Escrow: market.EscrowCall{
			Handler:  stored.Handler,
			Selector: stored.Selector,
			Args:     stored.Args,
		},
		At:     stored.At,
		Until:  stored.Until,
		Status: market.OfferStatus(stored.Status),
	}
	return offer, true, nil
}
