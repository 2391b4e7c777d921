package account

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	cliutil "sao-files/cmd"
	"sao-files/wallet"

	"github.com/urfave/cli/v2"
)

var AccountCmd = &cli.Command{
	Name:  "account",
	Usage: "account management",
	Subcommands: []*cli.Command{
		listCmd,
		createCmd,
		importCmd,
		exportCmd,
	},
}

var listCmd = &cli.Command{
	Name: "list",
	Action: func(cctx *cli.Context) error {
		ctx := cctx.Context

		return wallet.List(ctx, cliutil.KeyringHome, cliutil.ChainId)
	},
}

var createCmd = &cli.Command{
	Name: "create",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "name",
			Usage: "account name",
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := cctx.Context

		name, err := accountName(cctx)
		if err != nil {
			return err
		}

		return wallet.Create(ctx, cliutil.KeyringHome, cliutil.ChainId, name)
	},
}

var exportCmd = &cli.Command{
	Name: "export",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "name",
			Usage: "account name",
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := cctx.Context

		name, err := accountName(cctx)
		if err != nil {
			return err
		}

		passphrase, err := cliutil.AskForPassphrase()
		if err != nil {
			return err
		}

		return wallet.Export(ctx, cliutil.KeyringHome, cliutil.ChainId, name, passphrase)
	},
}

var importCmd = &cli.Command{
	Name: "import",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "name",
			Usage: "account name",
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := cctx.Context

		name, err := accountName(cctx)
		if err != nil {
			return err
		}

		fmt.Println("Enter secret:")
		var secret string
		reader := bufio.NewReader(os.Stdin)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return err
			}

			secret = secret + line

			if strings.Contains(line, "-----END TENDERMINT PRIVATE KEY-----") {
				break
			}
		}

		passphrase, err := cliutil.AskForPassphrase()
		if err != nil {
			return err
		}

		return wallet.Import(ctx, cliutil.KeyringHome, cliutil.ChainId, name, secret, passphrase)
	},
}

func accountName(cctx *cli.Context) (string, error) {
	if cctx.IsSet("name") {
		return cctx.String("name"), nil
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Enter account name:")
	indata, err := reader.ReadBytes('\n')
	if err != nil {
		return "", err
	}
	return strings.Replace(string(indata), "\n", "", -1), nil
}
