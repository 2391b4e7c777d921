package crypto

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"sync"

	"sao-files/types"
	"sao-files/wallet"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	eciesgo "github.com/ecies/go/v2"
)

// KeySeedMessage is the constant payload the wallet signs to seed the
// encryption keypair. Changing it changes every derived key, which is why
// a derived key must always be checked against the published one.
const KeySeedMessage = "Sign this message to access your sao-files encryption key"

// KeyStore holds the keypairs derived during one session, one per wallet
// address. It replaces ambient module-level caches: the owner creates one
// per session and Clear()s it on disconnect.
type KeyStore struct {
	lk   sync.Mutex
	keys map[string]*eciesgo.PrivateKey
}

func NewKeyStore() *KeyStore {
	return &KeyStore{
		keys: make(map[string]*eciesgo.PrivateKey),
	}
}

// Derive returns the encryption keypair for address, requesting a wallet
// signature over KeySeedMessage on first use and caching the result for
// the session. Deterministic per (wallet, message).
func (ks *KeyStore) Derive(ctx context.Context, w wallet.WalletApi, chainId string, address string) (*eciesgo.PrivateKey, error) {
	ks.lk.Lock()
	if key, ok := ks.keys[address]; ok {
		ks.lk.Unlock()
		return key, nil
	}
	ks.lk.Unlock()

	signature, err := w.SignArbitrary(ctx, chainId, address, KeySeedMessage)
	if err != nil {
		return nil, types.Wrap(types.ErrDeriveKeyFailed, err)
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return nil, types.Wrap(types.ErrDeriveKeyFailed, err)
	}

	key := keyFromSeed(sig)

	ks.lk.Lock()
	ks.keys[address] = key
	ks.lk.Unlock()

	log.Debugf("derived encryption key for %s", address)
	return key, nil
}

// Clear drops every cached keypair. Call on wallet disconnect.
func (ks *KeyStore) Clear() {
	ks.lk.Lock()
	ks.keys = make(map[string]*eciesgo.PrivateKey)
	ks.lk.Unlock()
}

func keyFromSeed(seed []byte) *eciesgo.PrivateKey {
	digest := sha256.Sum256(seed)

	// treat the digest as a secp256k1 scalar, reduced mod the group order
	var scalar secp256k1.ModNScalar
	scalar.SetByteSlice(digest[:])
	priv := secp256k1.NewPrivateKey(&scalar)

	return eciesgo.NewPrivateKeyFromBytes(priv.Serialize())
}

// PublicKeyHex is the uncompressed hex form of a derived public key, the
// exact format published to the ledger.
func PublicKeyHex(priv *eciesgo.PrivateKey) string {
	return hex.EncodeToString(priv.PublicKey.Bytes(false))
}

// PublicKeyFromHex parses a published public key back into its ECIES
// form.
func PublicKeyFromHex(publishedHex string) (*eciesgo.PublicKey, error) {
	pub, err := eciesgo.NewPublicKeyFromHex(publishedHex)
	if err != nil {
		return nil, types.Wrap(types.ErrMalformedKey, err)
	}
	return pub, nil
}

// VerifyPublishedKey checks bit for bit that the keypair derived from the
// wallet matches the currently published key for the address. A mismatch
// means the key was derived under a different seed message and must never
// be silently ignored.
func VerifyPublishedKey(priv *eciesgo.PrivateKey, publishedHex string) error {
	derived := PublicKeyHex(priv)
	if subtle.ConstantTimeCompare([]byte(derived), []byte(publishedHex)) != 1 {
		return types.Wrapf(types.ErrKeyMismatch, "derived %s.. published %s..", derived[:16], clip(publishedHex, 16))
	}
	return nil
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
