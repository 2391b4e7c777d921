package crypto

import (
	"strings"
	"testing"

	"sao-files/types"

	eciesgo "github.com/ecies/go/v2"
	"github.com/stretchr/testify/require"
)

func TestWrapUnwrapRoundtrip(t *testing.T) {
	bundle := testBundle(t)
	priv, err := eciesgo.GenerateKey()
	require.NoError(t, err)

	wrapped, err := WrapKey(bundle, priv.PublicKey)
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(string(wrapped), "|"))

	opened, err := UnwrapKey(wrapped, priv)
	require.NoError(t, err)
	require.Equal(t, bundle.IV, opened.IV)
	require.Equal(t, bundle.Key, opened.Key)
}

func TestUnwrapRejectsWrongKey(t *testing.T) {
	bundle := testBundle(t)
	recipient, err := eciesgo.GenerateKey()
	require.NoError(t, err)
	other, err := eciesgo.GenerateKey()
	require.NoError(t, err)

	wrapped, err := WrapKey(bundle, recipient.PublicKey)
	require.NoError(t, err)

	_, err = UnwrapKey(wrapped, other)
	require.ErrorIs(t, err, types.ErrUnwrapKeyFailed)
}

func TestUnwrapRejectsMalformedKey(t *testing.T) {
	priv, err := eciesgo.GenerateKey()
	require.NoError(t, err)

	for _, wrapped := range []types.WrappedKey{
		"",
		"deadbeef",
		"aa|bb|cc",
		"not-hex|cafebabe",
		"cafebabe|not-hex",
	} {
		_, err := UnwrapKey(wrapped, priv)
		require.ErrorIs(t, err, types.ErrMalformedKey, "wrapped key %q", wrapped)
	}
}

func TestVerifyPublishedKey(t *testing.T) {
	priv, err := eciesgo.GenerateKey()
	require.NoError(t, err)

	require.NoError(t, VerifyPublishedKey(priv, PublicKeyHex(priv)))

	other, err := eciesgo.GenerateKey()
	require.NoError(t, err)
	err = VerifyPublishedKey(priv, PublicKeyHex(other))
	require.ErrorIs(t, err, types.ErrKeyMismatch)

	err = VerifyPublishedKey(priv, "")
	require.ErrorIs(t, err, types.ErrKeyMismatch)
}
