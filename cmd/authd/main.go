// Command authd serves the authcore session API over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "authd:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	cfg, err := Load(*configPath)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("authd starting", "store", cfg.Store, "env", cfg.Env)
	return a.serve(ctx, time.Duration(cfg.ShutdownWait))
}
