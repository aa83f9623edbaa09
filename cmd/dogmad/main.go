// Package main provides the entrypoint for the dogma replica binary
// (dogmad): it loads configuration, wires every component via
// internal/server, and runs until interrupted. There is no HTTP/REST
// surface here — spec.md's Non-goals exclude one; this binary is meant
// to be embedded behind a transport of the deployer's choosing.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/dogmahub/dogma/internal/config"
	"github.com/dogmahub/dogma/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to a dogma.yaml config file; defaults are used if empty")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.ReadFile(*configPath)
		if err != nil {
			logrus.WithError(err).Fatal("failed to read config file")
		}
		cfg = loaded
	}

	srv, err := server.New(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("failed to build server")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logrus.WithField("dataDir", cfg.DataDir).Info("starting dogma replica")
	if err := srv.Run(ctx); err != nil {
		logrus.WithError(err).Fatal("replica stopped with error")
	}
}
