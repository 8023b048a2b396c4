// upub-fed/core is an ActivityPub federation engine.
// Copyright (C) 2026 The upub-fed/core authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Command upubd runs the job dispatcher against a configured instance.
// Request handling (inbox/outbox HTTP endpoints, webfinger, NodeInfo) is a
// separate process concern layered on top of internal/bootstrap.Engine;
// this binary is the federation engine's own heartbeat.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/upub-fed/core/internal/bootstrap"
	"github.com/upub-fed/core/internal/config"
	"github.com/upub-fed/core/internal/logging"
)

var (
	configFlag = flag.String("config", "config.toml", "Path to the configuration file")
	syslogFlag = flag.Bool("syslog", false, "Also log to the system log")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadEnvOverride(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	logging.ToWriter(*syslogFlag, os.Stdout)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	engine, err := bootstrap.New(ctx, cfg)
	if err != nil {
		logging.Error.Errorf("bootstrap: %v", err)
		os.Exit(1)
	}
	defer engine.Close()

	logging.Info.Infof("dispatcher running for %s", cfg.Instance.Domain)
	if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
		logging.Error.Errorf("dispatcher exited: %v", err)
		os.Exit(1)
	}
}
