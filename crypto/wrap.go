package crypto

import (
	"encoding/hex"
	"strings"

	"sao-files/types"

	eciesgo "github.com/ecies/go/v2"
)

const wrappedKeySeparator = "|"

// WrapKey encrypts the bundle IV and the raw key bytes independently for
// recipientPub and joins the hex encodings with a pipe. The resulting
// string is safe to publish; only the recipient can open it.
func WrapKey(bundle *types.AesBundle, recipientPub *eciesgo.PublicKey) (types.WrappedKey, error) {
	encryptedIV, err := eciesgo.Encrypt(recipientPub, bundle.IV)
	if err != nil {
		return "", types.Wrap(types.ErrWrapKeyFailed, err)
	}

	encryptedKey, err := eciesgo.Encrypt(recipientPub, bundle.Key)
	if err != nil {
		return "", types.Wrap(types.ErrWrapKeyFailed, err)
	}

	return types.WrappedKey(hex.EncodeToString(encryptedIV) + wrappedKeySeparator + hex.EncodeToString(encryptedKey)), nil
}

// UnwrapKey opens a wrapped key with priv and reassembles the bundle.
// Callers must verify the public key derived from priv matches the
// currently published key for the owner before trusting the result.
func UnwrapKey(wrapped types.WrappedKey, priv *eciesgo.PrivateKey) (*types.AesBundle, error) {
	parts := strings.Split(string(wrapped), wrappedKeySeparator)
	if len(parts) != 2 {
		return nil, types.Wrapf(types.ErrMalformedKey, "expected 2 parts, got %d", len(parts))
	}

	encryptedIV, err := hex.DecodeString(parts[0])
	if err != nil {
		return nil, types.Wrap(types.ErrMalformedKey, err)
	}
	encryptedKey, err := hex.DecodeString(parts[1])
	if err != nil {
		return nil, types.Wrap(types.ErrMalformedKey, err)
	}

	iv, err := eciesgo.Decrypt(priv, encryptedIV)
	if err != nil {
		return nil, types.Wrap(types.ErrUnwrapKeyFailed, err)
	}
	key, err := eciesgo.Decrypt(priv, encryptedKey)
	if err != nil {
		return nil, types.Wrap(types.ErrUnwrapKeyFailed, err)
	}

	if len(iv) != types.BundleIVSize || len(key) != types.BundleKeySize {
		return nil, types.Wrapf(types.ErrMalformedKey, "unwrapped iv %d bytes, key %d bytes", len(iv), len(key))
	}

	return &types.AesBundle{IV: iv, Key: key}, nil
}
