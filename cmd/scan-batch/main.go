package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/cardscan/internal/common"
	"github.com/joseph-ayodele/cardscan/internal/export"
	"github.com/joseph-ayodele/cardscan/internal/ingest"
	"github.com/joseph-ayodele/cardscan/internal/pipeline"
	repo "github.com/joseph-ayodele/cardscan/internal/repository"
	"github.com/joseph-ayodele/cardscan/internal/vision"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir        = flag.String("dir", "", "directory of card images (required)")
		out        = flag.String("out", "", "output XLSX file path (defaults to <dir>/../cards.xlsx)")
		exts       = flag.String("ext", "", "comma-separated extensions to include (default: all image types)")
		withHidden = flag.Bool("hidden", false, "include hidden files and directories")
		inmem      = flag.Bool("inmem", false, "use an in-memory ledger instead of DB_URL")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(filepath.Clean(*dir)), "cards.xlsx")
	}

	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbConfig := repo.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		DialTimeout:     cfg.Database.DialTimeout,
	}
	if *inmem {
		dbConfig.DSN = ""
	}
	db, err := repo.Open(ctx, dbConfig, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer repo.Close(db, logger)

	client, err := vision.NewClient(vision.ConfigFromEnv(cfg.Vision), logger)
	if err != nil {
		logger.Error("failed to create vision client", "error", err)
		os.Exit(2)
	}
	pipe := pipeline.New(client, repo.NewJobRepository(db, logger), logger)
	scanner := ingest.NewScanner(pipe, logger)

	var include []string
	if *exts != "" {
		include = strings.Split(*exts, ",")
	}
	results, stats, err := scanner.ScanDirectory(ctx, *dir, include, !*withHidden)
	if err != nil {
		logger.Error("scan failed", "dir", *dir, "error", err)
		if len(results) == 0 {
			os.Exit(1)
		}
	}

	items := make([]export.Item, 0, len(results))
	for _, r := range results {
		items = append(items, export.Item{Source: r.Path, JobID: r.JobID, Regions: r.Regions, Err: r.Err})
	}
	data, err := export.NewService(logger).RegionsXLSX(items)
	if err != nil {
		logger.Error("failed to build workbook", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		logger.Error("failed to write workbook", "path", *out, "error", err)
		os.Exit(1)
	}

	fmt.Printf("\n=== Scan Summary ===\n")
	fmt.Printf("- Files matched:   %d\n", stats.Matched)
	fmt.Printf("- Recognized:      %d\n", stats.Succeeded)
	fmt.Printf("- Failed:          %d\n", stats.Failed)
	fmt.Printf("- Workbook:        %s\n", *out)

	if stats.Failed > 0 {
		os.Exit(3)
	}
}
