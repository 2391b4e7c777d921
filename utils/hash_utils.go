package utils

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multicodec"
	"github.com/multiformats/go-multihash"
)

// MerkleRoot computes the hex encoded SHA-256 digest of content. The name
// is historical: providers and indexers key files by "merkle root" even
// though it is a flat digest, not a tree.
func MerkleRoot(content []byte) string {
	digest := sha256.Sum256(content)
	return hex.EncodeToString(digest[:])
}

// CombinedMerkleRoot computes the aggregate content identifier over the
// concatenation of all chunk frames, in index order, without materializing
// the concatenated buffer.
func CombinedMerkleRoot(frames [][]byte) string {
	h := sha256.New()
	for _, frame := range frames {
		h.Write(frame)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func CalculateCid(content []byte) (cid.Cid, error) {
	pref := cid.Prefix{
		Version:  1,
		Codec:    uint64(multicodec.Raw),
		MhType:   multihash.SHA2_256,
		MhLength: -1, // default length
	}

	contentCid, err := pref.Sum(content)
	if err != nil {
		return cid.Undef, err
	}

	return contentCid, nil
}
