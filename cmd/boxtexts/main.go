package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/cardscan/internal/common"
	"github.com/joseph-ayodele/cardscan/internal/vision"
)

func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		encoded = flag.Bool("base64", false, "treat the argument (or stdin) as base64 image data")
		timeout = flag.Duration("timeout", 2*time.Minute, "overall deadline for submit and polling")
		stdin   = flag.Bool("stdin", false, "read the image reference from stdin")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	_ = godotenv.Load()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	// logs go to stderr so stdout stays valid JSON
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ref, err := imageRef(flag.Args(), *stdin)
	if err != nil {
		printError("Error: %v\nusage: boxtexts [-base64] [-timeout 2m] <url|path|base64>\n", err)
		os.Exit(2)
	}

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}
	client, err := vision.NewClient(vision.ConfigFromEnv(cfg.Vision), logger)
	if err != nil {
		logger.Error("failed to create vision client", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	regions, err := client.ImageToBoxTexts(ctx, ref, *encoded)
	if err != nil {
		logger.Error("recognition failed", "error_code", common.CodeOf(err), "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(regions); err != nil {
		logger.Error("failed to write output", "error", err)
		os.Exit(1)
	}
}

func imageRef(args []string, fromStdin bool) (string, error) {
	if fromStdin {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", err
		}
		ref := strings.TrimSpace(string(b))
		if ref == "" {
			return "", fmt.Errorf("empty stdin")
		}
		return ref, nil
	}
	if len(args) != 1 {
		return "", fmt.Errorf("exactly one image reference is required")
	}
	return args[0], nil
}
