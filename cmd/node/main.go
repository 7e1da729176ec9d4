package main

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"plebiscite/internal/app/bootstrap"
	"plebiscite/internal/platform/config"
)

// Node process entrypoint.
// Data flow:
// 1) Load config.
// 2) Build app wiring (ports + adapters + use cases).
// 3) Read one JSON instruction per line from stdin, write one outcome per
//    line to stdout.
func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load failed", "error", err.Error())
		os.Exit(1)
	}

	app, err := bootstrap.BuildNode(cfg, logger)
	if err != nil {
		logger.Error("node wiring failed", "error", err.Error())
		os.Exit(1)
	}
	defer app.Close()

	logger.Info("poll engine node starting",
		"service", cfg.ServiceName,
		"registry_capacity", cfg.RegistryCapacity,
	)

	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	encoder := json.NewEncoder(os.Stdout)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		outcome := app.Module.Dispatcher.Dispatch(ctx, []byte(line))
		if err := encoder.Encode(outcome); err != nil {
			logger.Error("outcome write failed", "error", err.Error())
			os.Exit(1)
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error("instruction read failed", "error", err.Error())
		os.Exit(1)
	}
}
