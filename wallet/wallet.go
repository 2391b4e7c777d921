package wallet

import (
	"context"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("wallet")

// WalletApi is the wallet signer collaborator. Enable must be called once
// per chain before any other call; SignArbitrary returns the base64
// encoded signature over message.
type WalletApi interface {
	Enable(ctx context.Context, chainId string) error
	GetAddress(ctx context.Context) (string, error)
	SignArbitrary(ctx context.Context, chainId string, address string, message string) (string, error)
}
