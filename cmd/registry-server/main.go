package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/bioledger/bioregistry/cmd/flags"
	bioregcommon "github.com/bioledger/bioregistry/common"
	"github.com/bioledger/bioregistry/httpserver"
	"github.com/bioledger/bioregistry/metrics"
	"github.com/bioledger/bioregistry/registry"
	"github.com/bioledger/bioregistry/storage"
	"github.com/bioledger/bioregistry/verifier"
)

var serverFlags = append([]cli.Flag{
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8080",
		Usage: "address to listen on for the registry API",
	},
	flags.MetricsAddrFlag,
	flags.AdminAddrFlag,
	flags.ArtifactStoreFlag,
	flags.PprofFlag,
	flags.DrainSecondsFlag,
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:  "registry-server",
		Usage: "Serve the bio-material provenance registry API",
		Flags: serverFlags,
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			adminHex := cCtx.String(flags.AdminAddrFlag.Name)
			if !common.IsHexAddress(adminHex) {
				logger.Error("admin-address must be a 20-byte hex address", "value", adminHex)
				return cli.Exit("invalid admin-address", 1)
			}
			admin := common.HexToAddress(adminHex)

			storeURI := cCtx.String(flags.ArtifactStoreFlag.Name)
			store, err := storage.NewFactory(logger).StoreFor(storeURI)
			if err != nil {
				logger.Error("Failed to create artifact store", "err", err, "uri", storeURI)
				return err
			}

			var collector *metrics.Collector
			var metricsSrv *metrics.MetricsServer
			if metricsAddr := cCtx.String(flags.MetricsAddrFlag.Name); metricsAddr != "" {
				collector, metricsSrv, err = metrics.New(bioregcommon.PackageName, metricsAddr)
				if err != nil {
					logger.Error("Failed to create metrics server", "err", err)
					return err
				}
			}

			reg := registry.New(registry.Config{
				Admin:   admin,
				Log:     logger,
				Metrics: collector,
			})
			defer reg.Close()

			ver := verifier.New(reg, logger,
				verifier.WithArtifactStore(store, 30*time.Second),
				verifier.WithMetrics(collector),
			)

			cfg := &httpserver.HTTPServerConfig{
				ListenAddr:               cCtx.String("listen-addr"),
				MetricsAddr:              cCtx.String(flags.MetricsAddrFlag.Name),
				Metrics:                  metricsSrv,
				Log:                      logger,
				EnablePprof:              cCtx.Bool(flags.PprofFlag.Name),
				DrainDuration:            time.Duration(cCtx.Int64(flags.DrainSecondsFlag.Name)) * time.Second,
				GracefulShutdownDuration: 30 * time.Second,
				ReadTimeout:              60 * time.Second,
				WriteTimeout:             30 * time.Second,
			}

			server, err := httpserver.New(cfg, httpserver.NewHandler(reg, ver, logger),
				httpserver.WithRegistryStatus(reg),
				httpserver.WithArtifactStoreHealth(store),
			)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("Starting server",
				"listenAddr", cfg.ListenAddr,
				"admin", admin.Hex(),
				"artifactStore", store.Name())
			if err := server.ListenAndServe(ctx); err != nil {
				logger.Error("Server failed", "err", err)
				return err
			}
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
