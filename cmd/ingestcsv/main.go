// Command ingestcsv normalizes a raw CSV or Excel export into the canonical
// CSV layout, applying the same column mapping and row coercion as the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"nebcli/internal/config"
	"nebcli/internal/exporter"
	"nebcli/internal/infrastructure"
	"nebcli/internal/ingest"
	"nebcli/pkg/contracts/domain"
)

func main() {
	in := flag.String("in", "", "input csv or xlsx file (required)")
	out := flag.String("out", "", "output csv file path (defaults to <in>_normalized.csv)")
	bom := flag.Bool("bom", true, "prefix output with a UTF-8 BOM for Excel compatibility")
	flag.Parse()

	godotenv.Load()

	if *in == "" {
		fmt.Fprintln(os.Stderr, "usage: ingestcsv -in <file.csv|file.xlsx> [-out <file.csv>]")
		os.Exit(2)
	}
	if *out == "" {
		ext := filepath.Ext(*in)
		*out = strings.TrimSuffix(*in, ext) + "_normalized.csv"
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Warn("failed to load config, using defaults", "error", err)
		cfg = config.Default()
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}

	aliases := ingest.DefaultAliases()
	if len(cfg.Dataset.Aliases) > 0 {
		override := make(ingest.AliasSet, len(cfg.Dataset.Aliases))
		for role, names := range cfg.Dataset.Aliases {
			override[domain.Role(role)] = names
		}
		aliases = aliases.Merge(override)
	}
	pipeline := ingest.NewPipeline(logger, ingest.Config{Aliases: aliases})

	f, err := os.Open(*in)
	if err != nil {
		logger.Error("failed to open input", "path", *in, "error", err)
		os.Exit(1)
	}
	defer f.Close()

	ctx := context.Background()
	var result *ingest.Result
	switch strings.ToLower(filepath.Ext(*in)) {
	case ".xlsx", ".xlsm":
		result, err = pipeline.IngestExcel(ctx, f, filepath.Base(*in))
	default:
		result, err = pipeline.Ingest(ctx, f, filepath.Base(*in))
	}
	if err != nil {
		logger.Error("ingestion failed", "path", *in, "error", err)
		os.Exit(1)
	}

	writer := exporter.NewCSVWriter(logger, *bom)
	if err := writer.WriteFile(*out, result.Dataset); err != nil {
		logger.Error("failed to write output", "path", *out, "error", err)
		os.Exit(1)
	}

	logger.Info("normalization complete",
		slog.String("input", *in),
		slog.String("output", *out),
		slog.Int("rows", result.Dataset.Len()),
		slog.Int("rows_seen", result.RowsSeen),
		slog.Int("rows_dropped", result.RowsDropped),
	)
}
