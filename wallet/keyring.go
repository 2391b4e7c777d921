package wallet

import (
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"

	"sao-files/types"

	"github.com/ignite/cli/ignite/pkg/cosmosaccount"
	"github.com/mitchellh/go-homedir"
)

const ADDRESS_PREFIX = "sao"

// KeyringWallet signs with a local test-backend keyring, the same keyring
// the node tooling manages accounts in.
type KeyringWallet struct {
	keyringHome string
	keyName     string

	registry *cosmosaccount.Registry
}

func NewKeyringWallet(keyringHome string, keyName string) *KeyringWallet {
	return &KeyringWallet{
		keyringHome: keyringHome,
		keyName:     keyName,
	}
}

func (w *KeyringWallet) Enable(ctx context.Context, chainId string) error {
	if w.registry != nil {
		return nil
	}

	registry, err := newAccountRegistry(ctx, w.keyringHome, chainId)
	if err != nil {
		return types.Wrap(types.ErrCreateRegistryFailed, err)
	}

	w.registry = &registry
	log.Debugf("keyring enabled for chain %s", chainId)
	return nil
}

func (w *KeyringWallet) GetAddress(ctx context.Context) (string, error) {
	if w.registry == nil {
		return "", types.Wrapf(types.ErrGetAddressFailed, "wallet not enabled")
	}

	account, err := w.registry.GetByName(w.keyName)
	if err != nil {
		return "", types.Wrap(types.ErrAccountNotFound, err)
	}

	address, err := account.Address(ADDRESS_PREFIX)
	if err != nil {
		return "", types.Wrap(types.ErrGetAddressFailed, err)
	}
	return address, nil
}

func (w *KeyringWallet) SignArbitrary(ctx context.Context, chainId string, address string, message string) (string, error) {
	if w.registry == nil {
		return "", types.Wrapf(types.ErrSignedFailed, "wallet not enabled")
	}

	sig, _, err := w.registry.Keyring.Sign(w.keyName, []byte(message))
	if err != nil {
		return "", types.Wrap(types.ErrSignedFailed, err)
	}

	return base64.StdEncoding.EncodeToString(sig), nil
}

func newAccountRegistry(ctx context.Context, keyringHome string, chainId string) (cosmosaccount.Registry, error) {
	homePath, err := homedir.Expand(keyringHome)
	if err != nil {
		return cosmosaccount.Registry{}, err
	}

	return cosmosaccount.New(
		cosmosaccount.WithKeyringBackend(cosmosaccount.KeyringTest),
		cosmosaccount.WithHome(filepath.Join(homePath, chainId)),
	)
}

// List prints all accounts in the keyring.
func List(ctx context.Context, keyringHome string, chainId string) error {
	registry, err := newAccountRegistry(ctx, keyringHome, chainId)
	if err != nil {
		return types.Wrap(types.ErrCreateRegistryFailed, err)
	}

	accounts, err := registry.List()
	if err != nil {
		return types.Wrap(types.ErrListAccountsFailed, err)
	}

	for _, account := range accounts {
		address, err := account.Address(ADDRESS_PREFIX)
		if err != nil {
			return types.Wrap(types.ErrGetAddressFailed, err)
		}

		fmt.Println("Account:", account.Name)
		fmt.Println("Address:", address)
	}

	return nil
}

// Create adds a new account to the keyring and prints its mnemonic.
func Create(ctx context.Context, keyringHome string, chainId string, name string) error {
	registry, err := newAccountRegistry(ctx, keyringHome, chainId)
	if err != nil {
		return types.Wrap(types.ErrCreateRegistryFailed, err)
	}

	account, mnemonic, err := registry.Create(name)
	if err != nil {
		return types.Wrap(types.ErrCreateAccountFailed, err)
	}

	address, err := account.Address(ADDRESS_PREFIX)
	if err != nil {
		return types.Wrap(types.ErrGetAddressFailed, err)
	}

	fmt.Println("Account:", account.Name)
	fmt.Println("Address:", address)
	fmt.Println("Mnemonic:")
	fmt.Println(mnemonic)
	return nil
}

// Import restores an account from an exported armored key.
func Import(ctx context.Context, keyringHome string, chainId string, name string, secret string, passphrase string) error {
	registry, err := newAccountRegistry(ctx, keyringHome, chainId)
	if err != nil {
		return types.Wrap(types.ErrCreateRegistryFailed, err)
	}

	account, err := registry.Import(name, secret, passphrase)
	if err != nil {
		return types.Wrap(types.ErrImportAccountFailed, err)
	}

	address, err := account.Address(ADDRESS_PREFIX)
	if err != nil {
		return types.Wrap(types.ErrGetAddressFailed, err)
	}
	fmt.Println("Account:", account.Name)
	fmt.Println("Address:", address)
	return nil
}

// Export prints the armored private key of an account.
func Export(ctx context.Context, keyringHome string, chainId string, name string, passphrase string) error {
	registry, err := newAccountRegistry(ctx, keyringHome, chainId)
	if err != nil {
		return types.Wrap(types.ErrCreateRegistryFailed, err)
	}

	account, err := registry.GetByName(name)
	if err != nil {
		return types.Wrap(types.ErrAccountNotFound, err)
	}
	address, err := account.Address(ADDRESS_PREFIX)
	if err != nil {
		return types.Wrap(types.ErrGetAddressFailed, err)
	}

	key, err := registry.Export(name, passphrase)
	if err != nil {
		return types.Wrap(types.ErrExportAccountFailed, err)
	}

	fmt.Println("Account:", name)
	fmt.Println("Address:", address)
	fmt.Println("Secret:")
	fmt.Println(key)
	return nil
}
