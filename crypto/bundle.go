package crypto

import (
	"crypto/rand"
	"io"

	"sao-files/types"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("crypto")

// NewAesBundle generates the per-file symmetric secret: a 256-bit AEAD key
// and a 16-byte IV. One bundle per file, never reused.
func NewAesBundle() (*types.AesBundle, error) {
	bundle := &types.AesBundle{
		IV:  make([]byte, types.BundleIVSize),
		Key: make([]byte, types.BundleKeySize),
	}

	if _, err := io.ReadFull(rand.Reader, bundle.IV); err != nil {
		return nil, types.Wrap(types.ErrCreateBundleFailed, err)
	}
	if _, err := io.ReadFull(rand.Reader, bundle.Key); err != nil {
		return nil, types.Wrap(types.ErrCreateBundleFailed, err)
	}

	return bundle, nil
}
