package client

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"sao-files/chain"
	"sao-files/crypto"
	"sao-files/types"
	"sao-files/utils"
	"sao-files/wallet"

	logging "github.com/ipfs/go-log/v2"
	"github.com/mitchellh/go-homedir"
	"golang.org/x/xerrors"
)

var log = logging.Logger("client")

type SaoFilesConfig struct {
	ChainId        string
	ChainAddress   string
	KeyName        string
	KeyringHome    string
	RequestTimeout time.Duration
	ExpirationDays int
}

func DefaultSaoFilesConfig() *SaoFilesConfig {
	return &SaoFilesConfig{
		ChainId:        "sao-testnet",
		ChainAddress:   "http://localhost:1317",
		KeyName:        "",
		KeyringHome:    "~/.sao-files",
		RequestTimeout: 30 * time.Second,
		ExpirationDays: 365,
	}
}

// SaoFilesClient drives the whole transfer pipeline: key derivation,
// chunk sealing, provider upload with failover and indexer fan-out. One
// client serves one wallet session.
type SaoFilesClient struct {
	Cfg    *SaoFilesConfig
	repo   string
	wallet wallet.WalletApi
	ledger chain.LedgerSvcApi
	keys   *crypto.KeyStore
	codec  crypto.Codec

	// busy guards the pipeline: a second overlapping upload or download
	// observes "already running" and returns immediately.
	busy int32
}

type SaoFilesOptions struct {
	Repo         string
	ChainAddress string
	ChainId      string
	KeyName      string
	KeyringHome  string
	Wallet       wallet.WalletApi
	Ledger       chain.LedgerSvcApi
}

func NewSaoFilesClient(ctx context.Context, opt SaoFilesOptions) (*SaoFilesClient, error) {
	cliPath, err := homedir.Expand(opt.Repo)
	if err != nil {
		return nil, err
	}

	configPath := filepath.Join(cliPath, "config.toml")
	_, err = os.Stat(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			err = os.MkdirAll(cliPath, 0755) //nolint: gosec
			if err != nil && !os.IsExist(err) {
				return nil, err
			}

			dc, err := utils.NodeBytes(DefaultSaoFilesConfig())
			if err != nil {
				return nil, err
			}
			if err = os.WriteFile(configPath, dc, 0644); err != nil {
				return nil, err
			}
		}
	}

	c, err := utils.FromFile(configPath, DefaultSaoFilesConfig())
	if err != nil {
		return nil, err
	}
	cfg, ok := c.(*SaoFilesConfig)
	if !ok {
		return nil, xerrors.Errorf("invalid config: %v", c)
	}

	if opt.ChainAddress != "" {
		cfg.ChainAddress = opt.ChainAddress
	}
	if opt.ChainId != "" {
		cfg.ChainId = opt.ChainId
	}
	if opt.KeyName != "" {
		cfg.KeyName = opt.KeyName
	}
	if opt.KeyringHome != "" {
		cfg.KeyringHome = opt.KeyringHome
	}

	w := opt.Wallet
	if w == nil {
		w = wallet.NewKeyringWallet(cfg.KeyringHome, cfg.KeyName)
	}
	ledger := opt.Ledger
	if ledger == nil {
		ledger = chain.NewLedgerSvc(cfg.ChainAddress, cfg.RequestTimeout)
	}

	return &SaoFilesClient{
		Cfg:    cfg,
		repo:   opt.Repo,
		wallet: w,
		ledger: ledger,
		keys:   crypto.NewKeyStore(),
	}, nil
}

func (sc *SaoFilesClient) SaveConfig(cfg *SaoFilesConfig) error {
	cliPath, err := homedir.Expand(sc.repo)
	if err != nil {
		return err
	}

	dc, err := utils.NodeBytes(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cliPath, "config.toml"), dc, 0644)
}

// Disconnect drops every session secret.
func (sc *SaoFilesClient) Disconnect() {
	sc.keys.Clear()
}

func (sc *SaoFilesClient) acquire() error {
	if !atomic.CompareAndSwapInt32(&sc.busy, 0, 1) {
		return types.Wrapf(types.ErrAlreadyRunning, "one transfer at a time")
	}
	return nil
}

func (sc *SaoFilesClient) release() {
	atomic.StoreInt32(&sc.busy, 0)
}

// DeriveKey derives (or returns the cached) encryption keypair for the
// session wallet and returns its public key in published hex form.
func (sc *SaoFilesClient) DeriveKey(ctx context.Context) (string, error) {
	address, err := sc.enable(ctx)
	if err != nil {
		return "", err
	}

	priv, err := sc.keys.Derive(ctx, sc.wallet, sc.Cfg.ChainId, address)
	if err != nil {
		return "", err
	}
	return crypto.PublicKeyHex(priv), nil
}

// PublishKey derives the encryption keypair and publishes its public key
// to the ledger so that senders can wrap file keys for this wallet.
func (sc *SaoFilesClient) PublishKey(ctx context.Context) (string, error) {
	address, err := sc.enable(ctx)
	if err != nil {
		return "", err
	}

	priv, err := sc.keys.Derive(ctx, sc.wallet, sc.Cfg.ChainId, address)
	if err != nil {
		return "", err
	}

	publicKey := crypto.PublicKeyHex(priv)
	if err = sc.ledger.PublishKey(ctx, address, publicKey); err != nil {
		return "", err
	}
	return publicKey, nil
}

func (sc *SaoFilesClient) enable(ctx context.Context) (string, error) {
	if err := sc.wallet.Enable(ctx, sc.Cfg.ChainId); err != nil {
		return "", err
	}
	return sc.wallet.GetAddress(ctx)
}
