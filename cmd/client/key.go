package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

var keyCmd = &cli.Command{
	Name:  "key",
	Usage: "encryption key management",
	Subcommands: []*cli.Command{
		keyDeriveCmd,
		keyPublishCmd,
		keyClearCmd,
	},
}

var keyDeriveCmd = &cli.Command{
	Name:  "derive",
	Usage: "derive the encryption public key for the session wallet",
	Action: func(cctx *cli.Context) error {
		ctx := cctx.Context

		client, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer client.Disconnect()

		publicKey, err := client.DeriveKey(ctx)
		if err != nil {
			return err
		}

		console := color.New(color.FgMagenta, color.Bold)

		fmt.Print("  Public Key : ")
		console.Println(publicKey)

		return nil
	},
}

var keyClearCmd = &cli.Command{
	Name:  "clear",
	Usage: "drop the cached session keys",
	Action: func(cctx *cli.Context) error {
		client, err := newClient(cctx)
		if err != nil {
			return err
		}

		client.Disconnect()
		fmt.Println("session keys cleared")
		return nil
	},
}

var keyPublishCmd = &cli.Command{
	Name:  "publish",
	Usage: "derive the encryption public key and publish it to the ledger",
	Action: func(cctx *cli.Context) error {
		ctx := cctx.Context

		client, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer client.Disconnect()

		publicKey, err := client.PublishKey(ctx)
		if err != nil {
			return err
		}
		log.Info("public key published")

		console := color.New(color.FgMagenta, color.Bold)

		fmt.Print("  Public Key : ")
		console.Println(publicKey)

		return nil
	},
}
