package main

import (
	"os"

	"sao-files/build"
	"sao-files/cmd/account"

	cliutil "sao-files/cmd"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
)

var log = logging.Logger("saofiles")

func before(cctx *cli.Context) error {
	_ = logging.SetLogLevel("saofiles", "INFO")
	_ = logging.SetLogLevel("client", "INFO")
	_ = logging.SetLogLevel("transfer", "INFO")
	_ = logging.SetLogLevel("chain", "INFO")
	_ = logging.SetLogLevel("gateway", "INFO")

	if cliutil.IsVeryVerbose {
		_ = logging.SetLogLevel("saofiles", "DEBUG")
		_ = logging.SetLogLevel("client", "DEBUG")
		_ = logging.SetLogLevel("transfer", "DEBUG")
		_ = logging.SetLogLevel("chain", "DEBUG")
		_ = logging.SetLogLevel("crypto", "DEBUG")
		_ = logging.SetLogLevel("wallet", "DEBUG")
		_ = logging.SetLogLevel("gateway", "DEBUG")
	}

	return nil
}

func main() {
	app := &cli.App{
		Name:                 "saofiles",
		Usage:                "cli client for encrypted file transfer",
		EnableBashCompletion: true,
		Version:              build.UserVersion(),
		Before:               before,
		Flags: []cli.Flag{
			cliutil.FlagVeryVerbose,
			cliutil.FlagRepo,
			cliutil.FlagChainAddress,
			cliutil.FlagChainId,
			cliutil.FlagKeyringHome,
			&cli.StringFlag{
				Name:    cliutil.FlagKeyName,
				Usage:   "account name in the keyring used to sign",
				EnvVars: []string{"SAOFILES_KEY_NAME"},
			},
		},
		Commands: []*cli.Command{
			fileCmd,
			keyCmd,
			serveCmd,
			account.AccountCmd,
		},
	}
	app.Setup()

	if err := app.Run(os.Args); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
