package market

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// DeriveOfferID produces the offer handle for a creator at a given height.
// The handle is the truncated keccak256 digest of the creator address, the
// logical clock value and the caller-supplied nonce (zero for fresh offers).
// Collisions are cryptographically negligible and are not checked post hoc;
// Prepare still refuses to overwrite a live offer with a colliding handle.
func DeriveOfferID(creator [20]byte, height uint64, nonce uint64) OfferID {
	buf := make([]byte, len(creator)+16)
	copy(buf, creator[:])
	binary.BigEndian.PutUint64(buf[len(creator):], height)
	binary.BigEndian.PutUint64(buf[len(creator)+8:], nonce)
	digest := ethcrypto.Keccak256(buf)
	var id OfferID
	copy(id[:], digest[:len(id)])
	return id
}
