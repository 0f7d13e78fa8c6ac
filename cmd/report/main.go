// Command report prints headline totals and per-group statistics for a CSV
// export straight to the terminal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/joho/godotenv"

	"nebcli/internal/analytics"
	"nebcli/internal/config"
	"nebcli/internal/infrastructure"
	"nebcli/internal/ingest"
	"nebcli/internal/source"
	"nebcli/pkg/contracts/domain"
)

func main() {
	in := flag.String("in", "", "input csv or xlsx file")
	url := flag.String("url", "", "source url to fetch instead of a local file")
	groupBy := flag.String("by", "", "column to group statistics by (defaults to the region column)")
	flag.Parse()

	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Warn("failed to load config, using defaults", "error", err)
		cfg = config.Default()
	}
	// Terminal tool; keep structured logs out of the table output.
	cfg.Logging.Output = "file"

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}

	if *in == "" && *url == "" {
		*url = cfg.Source.URL
	}
	if *in == "" && *url == "" {
		fmt.Fprintln(os.Stderr, "usage: report -in <file.csv> | -url <source url> [-by <column>]")
		os.Exit(2)
	}

	pipeline := ingest.NewPipeline(logger, ingest.Config{})
	ctx := context.Background()

	var result *ingest.Result
	if *in != "" {
		f, err := os.Open(*in)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open %s: %v\n", *in, err)
			os.Exit(1)
		}
		defer f.Close()

		switch strings.ToLower(filepath.Ext(*in)) {
		case ".xlsx", ".xlsm":
			result, err = pipeline.IngestExcel(ctx, f, filepath.Base(*in))
		default:
			result, err = pipeline.Ingest(ctx, f, filepath.Base(*in))
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "ingestion failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		fetcher := source.NewFetcher(logger, time.Minute)
		body, _, err := fetcher.Fetch(ctx, *url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fetch failed: %v\n", err)
			os.Exit(1)
		}
		result, err = pipeline.Ingest(ctx, strings.NewReader(string(body)), *url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ingestion failed: %v\n", err)
			os.Exit(1)
		}
	}

	d := result.Dataset
	if *groupBy == "" {
		*groupBy = d.Roles.Column(domain.RoleRegion)
	}

	printSummary(d, result)
	printGroups(d, *groupBy)
}

func printSummary(d *domain.Dataset, result *ingest.Result) {
	summary := analytics.Summarize(d)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Dataset Summary")
	t.AppendRows([]table.Row{
		{"Rows", summary.Rows},
		{"Rows dropped", result.RowsDropped},
		{"Total primary", fmt.Sprintf("%.2f", summary.TotalPrimary)},
	})
	if summary.TotalSecondary != nil {
		t.AppendRow(table.Row{"Total secondary", fmt.Sprintf("%.2f", *summary.TotalSecondary)})
	}
	if summary.MeanDiscount != nil {
		t.AppendRow(table.Row{"Mean discount", fmt.Sprintf("%.4f", *summary.MeanDiscount)})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}

func printGroups(d *domain.Dataset, groupBy string) {
	groups, err := analytics.Aggregate(d, groupBy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "aggregation failed: %v\n", err)
		os.Exit(1)
	}

	title := "Overall"
	if groupBy != "" {
		title = "By " + groupBy
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Group", "Count", "Sum", "Mean", "Min", "Max", "StdDev"})
	for key, stats := range groups {
		t.AppendRow(table.Row{
			key,
			stats.Count,
			fmt.Sprintf("%.2f", stats.Sum),
			fmt.Sprintf("%.2f", stats.Mean),
			fmt.Sprintf("%.2f", stats.Min),
			fmt.Sprintf("%.2f", stats.Max),
			fmt.Sprintf("%.2f", stats.StdDev),
		})
	}
	t.SortBy([]table.SortBy{{Name: "Group", Mode: table.Asc}})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Sum", Align: text.AlignRight},
		{Name: "Mean", Align: text.AlignRight},
	})
	t.SetStyle(table.StyleLight)
	t.Render()
}
