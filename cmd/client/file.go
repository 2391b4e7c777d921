package main

import (
	"fmt"

	saoclient "sao-files/client"
	"sao-files/transfer"

	cliutil "sao-files/cmd"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"
)

var fileCmd = &cli.Command{
	Name:  "file",
	Usage: "encrypted file transfer",
	Subcommands: []*cli.Command{
		uploadCmd,
		downloadCmd,
	},
}

var uploadCmd = &cli.Command{
	Name:  "upload",
	Usage: "encrypt and upload a file to the storage network",
	Flags: []cli.Flag{
		&cli.PathFlag{
			Name:     "filepath",
			Usage:    "file's path to upload",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "recipient",
			Usage:    "wallet address the file key is wrapped for, defaults to the uploader",
			Required: false,
		},
		&cli.IntFlag{
			Name:     "expiration",
			Usage:    "how many days to keep the file.",
			Required: false,
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := cctx.Context

		if !cctx.IsSet("filepath") {
			return xerrors.Errorf("must provide --filepath")
		}

		client, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer client.Disconnect()

		result, err := client.Upload(ctx, saoclient.UploadOptions{
			Path:           cctx.Path("filepath"),
			Recipient:      cctx.String("recipient"),
			ExpirationDays: cctx.Int("expiration"),
			Progress:       progress("uploaded"),
		})
		if err != nil {
			return err
		}

		console := color.New(color.FgMagenta, color.Bold)

		fmt.Print("  Merkle Root : ")
		console.Println(result.MerkleRoot)

		fmt.Print("  Cid         : ")
		console.Println(result.Cid)

		fmt.Print("  Tx Hash     : ")
		console.Println(result.TxHash)

		fmt.Print("  Provider    : ")
		console.Println(result.Provider)

		fmt.Print("  Chunks      : ")
		console.Println(len(result.Chunks))

		fmt.Print("  Indexers    : ")
		console.Printf("%d accepted, %d failed\r\n", result.Indexers.SuccessCount, result.Indexers.FailureCount)

		return nil
	},
}

var downloadCmd = &cli.Command{
	Name:  "download",
	Usage: "download and decrypt a file from the storage network",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "merkle-root",
			Usage:    "merkle root of the file to download",
			Required: true,
		},
		&cli.PathFlag{
			Name:     "output",
			Usage:    "path to write the decrypted file to, defaults to the original name",
			Required: false,
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := cctx.Context

		if !cctx.IsSet("merkle-root") {
			return xerrors.Errorf("must provide --merkle-root")
		}

		client, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer client.Disconnect()

		result, err := client.Download(ctx, cctx.String("merkle-root"), cctx.Path("output"), progress("downloaded"))
		if err != nil {
			return err
		}

		console := color.New(color.FgMagenta, color.Bold)

		fmt.Print("  File Name    : ")
		console.Println(result.Name)

		fmt.Print("  Content Type : ")
		console.Println(result.ContentType)

		fmt.Print("  Size         : ")
		console.Println(result.Size)

		fmt.Print("  Chunks       : ")
		console.Println(result.Chunks)

		return nil
	},
}

func newClient(cctx *cli.Context) (*saoclient.SaoFilesClient, error) {
	return saoclient.NewSaoFilesClient(cctx.Context, saoclient.SaoFilesOptions{
		Repo:         cliutil.Repo,
		ChainAddress: cliutil.ChainAddress,
		ChainId:      cliutil.ChainId,
		KeyName:      cctx.String(cliutil.FlagKeyName),
		KeyringHome:  cliutil.KeyringHome,
	})
}

func progress(verb string) transfer.ProgressFunc {
	return func(index int, total int) {
		if total > 0 {
			fmt.Printf("chunk %d/%d %s\r\n", index+1, total, verb)
		}
	}
}
