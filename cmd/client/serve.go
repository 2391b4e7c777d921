package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"sao-files/gateway"

	cliutil "sao-files/cmd"

	"github.com/fatih/color"
	"github.com/mitchellh/go-homedir"
	"github.com/urfave/cli/v2"
)

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "run a local http gateway serving decrypted files",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "address",
			Usage: "address the gateway listens on",
			Value: gateway.DefaultConfig().Address,
		},
		&cli.IntFlag{
			Name:  "cache-size",
			Usage: "how many decrypted files to keep on disk",
			Value: gateway.DefaultConfig().CacheSize,
		},
		&cli.BoolFlag{
			Name:  "log",
			Usage: "enable http request logging",
			Value: false,
		},
		&cli.BoolFlag{
			Name:  "require-token",
			Usage: "only serve requests carrying a valid share token",
			Value: false,
		},
		&cli.StringSliceFlag{
			Name:  "share",
			Usage: "merkle root(s) to print share tokens for at startup",
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := cctx.Context

		client, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer client.Disconnect()

		cfg := gateway.DefaultConfig()
		cfg.Enable = true
		cfg.Address = cctx.String("address")
		cfg.CacheSize = cctx.Int("cache-size")
		cfg.EnableLog = cctx.Bool("log")
		cfg.RequireToken = cctx.Bool("require-token")

		repoPath, err := homedir.Expand(cliutil.Repo)
		if err != nil {
			return err
		}
		serverPath := filepath.Join(repoPath, "gateway")

		server, err := gateway.StartHttpFileServer(serverPath, cfg, client)
		if err != nil {
			return err
		}
		log.Infof("gateway listening on %s", cfg.Address)

		if roots := cctx.StringSlice("share"); len(roots) > 0 {
			console := color.New(color.FgMagenta, color.Bold)
			for _, root := range roots {
				address, token := server.GenerateToken(root)
				fmt.Printf("  %s : ", root)
				console.Printf("http://%s/v1/%s?token=%s\r\n", address, root, token)
			}
		}

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		<-sigChan

		return server.Stop(ctx)
	},
}
