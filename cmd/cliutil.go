package cliutil

import (
	"fmt"
	"syscall"

	"golang.org/x/term"

	"github.com/urfave/cli/v2"
)

const FlagKeyName = "key-name"

var Repo string
var FlagRepo = &cli.StringFlag{
	Name:        "repo",
	Usage:       "repo directory for config and gateway cache",
	EnvVars:     []string{"SAOFILES_REPO"},
	Value:       "~/.sao-files",
	Destination: &Repo,
}

var ChainAddress string
var FlagChainAddress = &cli.StringFlag{
	Name:        "chain-address",
	Usage:       "ledger api endpoint",
	EnvVars:     []string{"SAOFILES_CHAIN_API"},
	Destination: &ChainAddress,
}

var ChainId string
var FlagChainId = &cli.StringFlag{
	Name:        "chain-id",
	Usage:       "chain id the keyring and key derivation are bound to",
	EnvVars:     []string{"SAOFILES_CHAIN_ID"},
	Value:       "sao-testnet",
	Destination: &ChainId,
}

var KeyringHome string
var FlagKeyringHome = &cli.StringFlag{
	Name:        "keyring",
	Usage:       "account keyring home directory",
	EnvVars:     []string{"SAOFILES_KEYRING_HOME"},
	Value:       "~/.sao-files",
	Destination: &KeyringHome,
}

// IsVeryVerbose is a global var signalling if the CLI is running in very
// verbose mode or not (default: false).
var IsVeryVerbose bool

// FlagVeryVerbose enables very verbose mode, which is useful when debugging
// the CLI itself. It should be included as a flag on the top-level command
// (e.g. saofiles -vv).
var FlagVeryVerbose = &cli.BoolFlag{
	Name:        "vv",
	Usage:       "enables very verbose mode, useful for debugging the CLI",
	Destination: &IsVeryVerbose,
}

func AskForPassphrase() (string, error) {
	fmt.Print("Enter passphrase:")
	passphrase, err := term.ReadPassword(syscall.Stdin)
	if err != nil {
		return "", err
	}
	return string(passphrase), nil
}
