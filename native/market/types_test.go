package market

import "testing"

func TestOfferStatusString(t *testing.T) {
	cases := map[OfferStatus]string{
		OfferNeutral:  "neutral",
		OfferPending:  "pending",
		OfferSettled:  "settled",
		OfferCanceled: "canceled",
		OfferRejected: "rejected",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Fatalf("status %d: got %q want %q", status, got, want)
		}
	}
	if got := OfferStatus(42).String(); got != "unknown(42)" {
		t.Fatalf("unexpected string for invalid status: %q", got)
	}
}

func TestOfferStatusTerminal(t *testing.T) {
	if OfferNeutral.Terminal() || OfferPending.Terminal() {
		t.Fatalf("neutral and pending are not terminal")
	}
	for _, status := range []OfferStatus{OfferSettled, OfferCanceled, OfferRejected} {
		if !status.Terminal() {
			t.Fatalf("%s should be terminal", status)
		}
	}
}

func TestNormalizeProvider(t *testing.T) {
	got, err := NormalizeProvider("  My-App ")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "my-app" {
		t.Fatalf("got %q", got)
	}
	if _, err := NormalizeProvider("   "); err == nil {
		t.Fatalf("blank provider must be rejected")
	}
}

func TestOfferCloneIsDeep(t *testing.T) {
	offer := &Offer{
		ID:       OfferID{0x01},
		Provider: "me",
		DataIDs:  []DataID{{0x0A}},
		Escrow:   EscrowCall{Args: []byte{0x01, 0x02}},
		Status:   OfferPending,
		At:       3,
		Until:    13,
	}
	clone := offer.Clone()
	clone.DataIDs[0] = DataID{0xFF}
	clone.Escrow.Args[0] = 0xFF
	clone.Status = OfferSettled

	if offer.DataIDs[0] != (DataID{0x0A}) {
		t.Fatalf("data ids shared between clone and original")
	}
	if offer.Escrow.Args[0] != 0x01 {
		t.Fatalf("escrow args shared between clone and original")
	}
	if offer.Status != OfferPending {
		t.Fatalf("status mutated through clone")
	}

	var nilOffer *Offer
	if nilOffer.Clone() != nil {
		t.Fatalf("nil clone should be nil")
	}
}

func TestSanitizeOffer(t *testing.T) {
	base := &Offer{ID: OfferID{0x01}, Provider: " ME ", Status: OfferNeutral}
	sanitized, err := SanitizeOffer(base)
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if sanitized.Provider != "me" {
		t.Fatalf("provider not normalized: %q", sanitized.Provider)
	}
	if base.Provider != " ME " {
		t.Fatalf("sanitize must not mutate its input")
	}

	if _, err := SanitizeOffer(nil); err == nil {
		t.Fatalf("nil offer must be rejected")
	}
	if _, err := SanitizeOffer(&Offer{Provider: "me", Status: OfferStatus(9)}); err == nil {
		t.Fatalf("invalid status must be rejected")
	}
	if _, err := SanitizeOffer(&Offer{Provider: "me", Status: OfferNeutral, At: 1}); err == nil {
		t.Fatalf("neutral offer with heights must be rejected")
	}
	if _, err := SanitizeOffer(&Offer{Provider: "me", Status: OfferPending, At: 10, Until: 5}); err == nil {
		t.Fatalf("expiry before presentation must be rejected")
	}
}

func TestDeriveOfferIDDeterminism(t *testing.T) {
	creator := newTestAddress(0x01)
	a := DeriveOfferID(creator, 5, 0)
	b := DeriveOfferID(creator, 5, 0)
	if a != b {
		t.Fatalf("derivation must be deterministic")
	}
	if a == DeriveOfferID(creator, 6, 0) {
		t.Fatalf("height must distinguish handles")
	}
	if a == DeriveOfferID(creator, 5, 1) {
		t.Fatalf("nonce must distinguish handles")
	}
	if a == DeriveOfferID(newTestAddress(0x02), 5, 0) {
		t.Fatalf("creator must distinguish handles")
	}
	if a == (OfferID{}) {
		t.Fatalf("derived handle must not be zero")
	}
}
