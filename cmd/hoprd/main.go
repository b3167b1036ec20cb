// hoprd runs a single HOPR mixnet node: the session manager and SURB
// balancer, the payment-ticket bookkeeping core, and the chain indexer's
// event handler, wired together against whatever substrate transport and
// chain RPC client the deployment supplies.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/hoprnet/hopr-corego/substrate"
	"github.com/hoprnet/hopr-corego/ticketstore"
)

const clientIdentifier = "hoprd"

var app = &cli.App{
	Name:    clientIdentifier,
	Usage:   "HOPR mixnet node: session manager, ticket bookkeeping, chain indexer",
	Version: "0.1.0",
}

func init() {
	app.Flags = []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "path to a hoprd config file"},
		&cli.BoolFlag{Name: "dev", Usage: "run against in-memory substrate and chain-RPC stand-ins instead of a real deployment"},
	}
	app.Commands = []*cli.Command{
		{
			Name:   "serve",
			Usage:  "start the node and block until terminated",
			Action: runServe,
		},
		{
			Name:  "version",
			Usage: "print the version and exit",
			Action: func(ctx *cli.Context) error {
				fmt.Println(app.Version)
				return nil
			},
		},
	}
	app.Action = runServe
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cliCtx *cli.Context) error {
	logger := log.Root()

	cfg, err := LoadConfig(cliCtx.String("config"))
	if err != nil {
		return err
	}

	if !cliCtx.Bool("dev") {
		return fmt.Errorf("hoprd: no production substrate/chain-RPC transport is wired into this binary; rerun with --dev, or embed this module's Node type with your own substrate.Sink/Source and chainrpc.Client")
	}

	net := substrate.NewMemory()
	sink, source := net.NewPeer(substrate.PeerID(cfg.Node.Self))

	node, err := NewNode(cfg, sink, idleChainRPC{}, ticketstore.TrustingVerifier{}, ticketstore.ZeroSigner{}, logger)
	if err != nil {
		return err
	}
	defer node.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go node.pump(ctx, source)
	go func() {
		if err := node.runIndexer(ctx, nil, 0); err != nil && ctx.Err() == nil {
			logger.Error("indexer stopped", "err", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(node.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", "err", err)
		}
	}()

	logger.Info("hoprd started", "self", cfg.Node.Self, "metrics_addr", cfg.Metrics.ListenAddr)
	<-ctx.Done()
	logger.Info("hoprd shutting down")
	return srv.Close()
}
