package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/bioledger/bioregistry/cmd/flags"
	"github.com/bioledger/bioregistry/evaluation"
	"github.com/bioledger/bioregistry/workload"
)

var evaluateFlags = append([]cli.Flag{
	&cli.StringFlag{
		Name:  "dataset",
		Value: "all",
		Usage: "dataset preset to run: normal, drift, adversarial, or all",
	},
	&cli.StringFlag{
		Name:  "out-dir",
		Value: "results",
		Usage: "directory for persisted artifacts (materials, expectations, summary, benchmark)",
	},
	&cli.IntFlag{
		Name:  "latency-iterations",
		Value: 200,
		Usage: "iterations per operation for the latency benchmark",
	},
	&cli.IntSliceFlag{
		Name:  "concurrency",
		Value: cli.NewIntSlice(1, 4, 16),
		Usage: "concurrency levels for the mixed-workload throughput measurement",
	},
	&cli.IntFlag{
		Name:  "throughput-ops",
		Value: 500,
		Usage: "operations per worker in the throughput measurement",
	},
	&cli.IntSliceFlag{
		Name:  "scale-targets",
		Value: cli.NewIntSlice(1000, 2000, 5000),
		Usage: "registry population sizes for the scaling measurement",
	},
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:  "evaluate",
		Usage: "Generate workloads, materialize them onto a registry, and measure verification quality and performance",
		Flags: evaluateFlags,
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			var configs []workload.Config
			switch name := cCtx.String("dataset"); name {
			case "all":
				configs = workload.Presets()
			case "normal":
				configs = []workload.Config{workload.Normal()}
			case "drift":
				configs = []workload.Config{workload.Drift()}
			case "adversarial":
				configs = []workload.Config{workload.Adversarial()}
			default:
				return fmt.Errorf("unknown dataset %q", name)
			}

			outDir := cCtx.String("out-dir")
			if err := os.MkdirAll(outDir, 0755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}

			evalTime := time.Now().Unix()
			for _, cfg := range configs {
				if err := runDataset(cCtx, logger, cfg, evalTime, outDir); err != nil {
					return err
				}
			}
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// runDataset generates, persists, materializes and evaluates one dataset,
// then benchmarks the populated registry.
func runDataset(cCtx *cli.Context, logger *slog.Logger, cfg workload.Config, evalTime int64, outDir string) error {
	ctx := context.Background()
	logger = logger.With("dataset", cfg.Name)

	ds := workload.Generate(cfg, evalTime)
	logger.Info("Generated dataset", "materials", ds.Count, "seed", cfg.Seed)

	if err := workload.WriteMaterialsJSON(ds, filepath.Join(outDir, cfg.Name+"-materials.json")); err != nil {
		return err
	}
	if err := workload.WriteExpectationsCSV(ds, filepath.Join(outDir, cfg.Name+"-expectations.csv")); err != nil {
		return err
	}

	harness, err := evaluation.NewHarness(logger)
	if err != nil {
		return err
	}
	defer harness.Close()

	if err := harness.Materialize(ctx, ds); err != nil {
		return fmt.Errorf("materialization failed: %w", err)
	}

	result, err := harness.Evaluate(ctx, ds)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}
	logger.Info("Evaluated dataset",
		"onchainFailRate", result.OnChainFailRate,
		"fullFailRate", result.FullFailRate)
	if err := evaluation.WriteSummaryJSON(result, filepath.Join(outDir, cfg.Name+"-summary.json")); err != nil {
		return err
	}

	latency, err := harness.BenchmarkOperations(ctx, cCtx.Int("latency-iterations"))
	if err != nil {
		return fmt.Errorf("latency benchmark failed: %w", err)
	}

	throughput, err := harness.MeasureThroughput(ctx, cCtx.IntSlice("concurrency"), cCtx.Int("throughput-ops"))
	if err != nil {
		return fmt.Errorf("throughput measurement failed: %w", err)
	}

	scaling, err := harness.MeasureScaling(ctx, cCtx.IntSlice("scale-targets"), 100)
	if err != nil {
		return fmt.Errorf("scaling measurement failed: %w", err)
	}

	report := &evaluation.BenchmarkReport{
		Dataset:    cfg.Name,
		Latency:    latency,
		Throughput: throughput,
		Scaling:    scaling,
	}
	if err := evaluation.WriteBenchmarkJSON(report, filepath.Join(outDir, cfg.Name+"-benchmark.json")); err != nil {
		return err
	}

	logger.Info("Wrote artifacts", "dir", outDir)
	return nil
}
