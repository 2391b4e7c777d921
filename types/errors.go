package types

import "github.com/cosmos/cosmos-sdk/types/errors"

var (
	ModuleCrypto = "crypto"

	ErrCreateBundleFailed = errors.Register(ModuleCrypto, 10000, "failed to create the file key bundle")
	ErrMalformedFrame     = errors.Register(ModuleCrypto, 10001, "malformed chunk frame")
	ErrIntegrity          = errors.Register(ModuleCrypto, 10002, "chunk authentication failed")
	ErrMalformedKey       = errors.Register(ModuleCrypto, 10003, "malformed wrapped file key")
	ErrWrapKeyFailed      = errors.Register(ModuleCrypto, 10004, "failed to wrap the file key")
	ErrUnwrapKeyFailed    = errors.Register(ModuleCrypto, 10005, "failed to unwrap the file key")
	ErrDeriveKeyFailed    = errors.Register(ModuleCrypto, 10006, "failed to derive the encryption key")
	ErrKeyMismatch        = errors.Register(ModuleCrypto, 10007, "derived key doesn't match the published key, please re-publish your encryption key")

	ModuleTransfer = "transfer"

	ErrNetwork           = errors.Register(ModuleTransfer, 20000, "network request failed")
	ErrTimeout           = errors.Register(ModuleTransfer, 20001, "network request timed out")
	ErrTransferFailed    = errors.Register(ModuleTransfer, 20002, "all providers failed to accept the file")
	ErrMalformedResponse = errors.Register(ModuleTransfer, 20003, "malformed multipart download response")
	ErrIncompleteFile    = errors.Register(ModuleTransfer, 20004, "downloaded file misses chunks")
	ErrNoIndexerAccepted = errors.Register(ModuleTransfer, 20005, "no indexer accepted the chunk metadata")
	ErrMetadataNotFound  = errors.Register(ModuleTransfer, 20006, "no indexer knows the requested file")

	ModuleChain = "chain"

	ErrQueryProvidersFailed = errors.Register(ModuleChain, 30000, "failed to query the storage providers")
	ErrQueryIndexersFailed  = errors.Register(ModuleChain, 30001, "failed to query the indexers")
	ErrQueryKeyFailed       = errors.Register(ModuleChain, 30002, "failed to query the published encryption key")
	ErrKeyNotPublished      = errors.Register(ModuleChain, 30003, "no encryption key published for the address")
	ErrPublishKeyFailed     = errors.Register(ModuleChain, 30004, "failed to publish the encryption key")
	ErrRegisterFileFailed   = errors.Register(ModuleChain, 30005, "failed to register the file")

	ModuleWallet = "wallet"

	ErrCreateRegistryFailed = errors.Register(ModuleWallet, 40000, "failed to create the account registry")
	ErrAccountNotFound      = errors.Register(ModuleWallet, 40001, "account not found, check the keyring please")
	ErrGetAddressFailed     = errors.Register(ModuleWallet, 40002, "failed to get address")
	ErrSignedFailed         = errors.Register(ModuleWallet, 40003, "failed to sign the payload")
	ErrListAccountsFailed   = errors.Register(ModuleWallet, 40004, "failed to list the local accounts")
	ErrCreateAccountFailed  = errors.Register(ModuleWallet, 40005, "failed to create the account")
	ErrImportAccountFailed  = errors.Register(ModuleWallet, 40006, "failed to import the account")
	ErrExportAccountFailed  = errors.Register(ModuleWallet, 40007, "failed to export the account")

	ModuleClient = "client"

	ErrAlreadyRunning     = errors.Register(ModuleClient, 50000, "another transfer is already running")
	ErrDecodeConfigFailed = errors.Register(ModuleClient, 50001, "failed to decode the config")
	ErrEncodeConfigFailed = errors.Register(ModuleClient, 50002, "failed to encode the config")
	ErrReadFileFailed     = errors.Register(ModuleClient, 50003, "failed to read the input file")
	ErrWriteFileFailed    = errors.Register(ModuleClient, 50004, "failed to write the output file")
)

func Wrap(err0 error, err1 error) error {
	return errors.Wrapf(err0, ", due to %w", err1)
}

func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}
