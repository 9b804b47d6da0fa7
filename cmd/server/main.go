// Package main is the entry point for the xm2live API server
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/xm2live/xm2live/pkg/api"
	"github.com/xm2live/xm2live/pkg/logging"
)

func main() {
	// Optional .env for deployments; flags still win.
	_ = godotenv.Load()

	defaultPort := 8080
	if v := os.Getenv("XM2LIVE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			defaultPort = p
		}
	}

	port := flag.Int("port", defaultPort, "Server port")
	logLevel := flag.String("log-level", envOr("XM2LIVE_LOG_LEVEL", "info"), "Log level")
	logFile := flag.String("log-file", os.Getenv("XM2LIVE_LOG_FILE"), "Rotated log file path")
	flag.Parse()

	cfg := logging.DefaultConfig()
	cfg.Level = *logLevel
	cfg.OutputPath = *logFile
	cfg.Console = false
	log, err := logging.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	fmt.Printf("Starting xm2live API server on port %d...\n", *port)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", *port)

	if err := api.StartServer(*port, log); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
