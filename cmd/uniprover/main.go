// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// uniprover serves the TEE-attested block-execution proving surface:
// gen_proof/get_proof/get_proofs over HTTP, backed by a background
// identity-registration loop, wired the way the teacher's cmd/evm-node
// pairs urfave/cli flags with a viper-backed config merge.
package main

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luxfi/geth/accounts/abi/bind"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
	"github.com/luxfi/geth/crypto"
	"github.com/luxfi/geth/ethclient"
	"github.com/luxfi/log"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"

	"github.com/luxfi/uniprover/internal/attestation"
	"github.com/luxfi/uniprover/internal/attestloop"
	"github.com/luxfi/uniprover/internal/chainspec"
	"github.com/luxfi/uniprover/internal/clock"
	"github.com/luxfi/uniprover/internal/httpapi"
	"github.com/luxfi/uniprover/internal/keypair"
	"github.com/luxfi/uniprover/internal/metrics"
	"github.com/luxfi/uniprover/internal/prove"
	"github.com/luxfi/uniprover/internal/registry"
)

const clientIdentifier = "uniprover"

var app = &cli.App{
	Name:    clientIdentifier,
	Usage:   "TEE-backed block-execution prover for a Taiko-style L2 rollup",
	Version: "1.0.0",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "path to a JSON config file merged beneath flags/env"},
		&cli.StringFlag{Name: "private-key", EnvVars: []string{"PRIVATE_KEY"}, Usage: "hex-encoded secp256k1 key that pays for on-chain registration transactions"},
		&cli.StringFlag{Name: "l1-endpoint", EnvVars: []string{"L1_ENDPOINT"}, Usage: "JSON-RPC endpoint the ProverRegistry contract lives behind"},
		&cli.StringFlag{Name: "prover-registry", EnvVars: []string{"PROVER_REGISTRY"}, Usage: "ProverRegistry contract address"},
		&cli.StringFlag{Name: "listen", EnvVars: []string{"LISTEN"}, Value: "127.0.0.1:20300", Usage: "HTTP listen address"},
		&cli.IntFlag{Name: "attestation-pre-expire-secs", Value: 1800, Usage: "seconds before registration expiry the attestation loop rotates again"},
		&cli.IntFlag{Name: "worker-num", Value: 8, Usage: "bounded concurrency for multi-block proving"},
		&cli.BoolFlag{Name: "mock-attestation", Usage: "use the mock TEE quote builder instead of a TDX agent/subprocess"},
	},
}

func init() {
	app.Action = run
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig merges --config's JSON beneath environment variables and CLI
// flags, matching the original Rust binary's MultiProver.merge precedence
// (spec.md §6 CLI surface): flags win, then env, then the config file.
func loadConfig(ctx *cli.Context) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("json")
	if path := ctx.String("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("uniprover: read config %s: %w", path, err)
		}
	}
	v.AutomaticEnv()
	for _, name := range []string{"private-key", "l1-endpoint", "prover-registry", "listen"} {
		if ctx.IsSet(name) {
			v.Set(name, ctx.String(name))
		} else if !v.IsSet(name) && ctx.String(name) != "" {
			v.SetDefault(name, ctx.String(name))
		}
	}
	return v, nil
}

func run(cctx *cli.Context) error {
	log.Info("starting", "version", app.Version)

	cfg, err := loadConfig(cctx)
	if err != nil {
		return err
	}

	privKey, err := crypto.HexToECDSA(trimHexPrefix(cfg.GetString("private-key")))
	if err != nil {
		return fmt.Errorf("uniprover: parse private-key: %w", err)
	}
	registryAddr := common.HexToAddress(cfg.GetString("prover-registry"))
	l1Endpoint := cfg.GetString("l1-endpoint")
	listen := cfg.GetString("listen")
	if listen == "" {
		listen = "127.0.0.1:20300"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	l1, err := ethclient.DialContext(ctx, l1Endpoint)
	if err != nil {
		return fmt.Errorf("uniprover: dial %s: %w", l1Endpoint, err)
	}
	chainID, err := l1.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("uniprover: fetch chain id: %w", err)
	}
	l1.Close()
	signer, err := bind.NewKeyedTransactorWithChainID(privKey, chainID)
	if err != nil {
		return fmt.Errorf("uniprover: build transactor: %w", err)
	}
	from := crypto.PubkeyToAddress(privKey.PublicKey)

	registryClient, err := registry.New(ctx, l1Endpoint, registryAddr, from, func(tx *types.Transaction) (*types.Transaction, error) {
		return signer.Signer(from, tx)
	})
	if err != nil {
		return err
	}

	kp, err := keypair.New()
	if err != nil {
		return err
	}

	m := metrics.New()

	var builder attestation.ReportBuilder
	if cctx.Bool("mock-attestation") {
		builder = &attestation.MockBuilder{}
	} else {
		builder = attestation.NewAgentServiceBuilder()
	}

	loop := &attestloop.Loop{
		Keypair:   kp,
		Builder:   builder,
		Ref:       newestBlockSource{client: registryClient},
		Registrar: registryClient,
		Clock:     clock.New(),
		PreExpire: time.Duration(cctx.Int("attestation-pre-expire-secs")) * time.Second,
		Metrics:   m,
	}
	go func() {
		if err := loop.Run(ctx); err != nil {
			log.Warn("attestation loop stopped", "err", err)
		}
	}()

	chainSpecs := chainspec.Default
	server := &httpapi.Server{
		Deps: prove.Deps{
			Config: prove.Config{
				ProverRegistry: registryAddr,
				TeeType:        builder.TeeType(),
				ChainSpecs:     chainSpecs,
				WorkerNum:      cctx.Int("worker-num"),
			},
			Keypair: kp,
			Metrics: m,
		},
		Metrics: m,
	}

	httpServer := &http.Server{
		Addr:              listen,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("listening", "addr", listen)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("uniprover: serve: %w", err)
	}
	return nil
}

func trimHexPrefix(s string) string {
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// newestBlockSource satisfies attestation.ReferenceBlockSource against the
// registry client's own dial, since the reference block an attestation
// quote binds to is simply "the chain the registry lives on"'s current
// head (spec.md §4.5).
type newestBlockSource struct {
	client *registry.Client
}

func (s newestBlockSource) SelectReferenceBlock(ctx context.Context) (*big.Int, common.Hash, error) {
	return s.client.LatestBlock(ctx)
}

