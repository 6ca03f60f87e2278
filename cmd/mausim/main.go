// SPDX-License-Identifier: Apache-2.0
// Copyright 2026-present Open Networking Foundation

// Command mausim drives generated traffic through a simulated match-action
// pipeline.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/omec-project/mausim/internal/sim"
	"github.com/omec-project/mausim/logger"
	"github.com/omec-project/mausim/mau"
)

var (
	configPath  string
	opts        sim.Options
	count       int
	metricsAddr string
	hold        bool
)

var app = &cli.App{
	Name:  "mausim",
	Usage: "Simulate a match-action unit pipeline.",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "simulator config `file`",
			Value:       "conf/mausim.json",
			Destination: &configPath,
		},
		&cli.StringFlag{
			Name:        "p4info",
			Usage:       "P4Info text `file` naming the pipeline tables",
			Destination: &opts.P4InfoPath,
		},
		&cli.StringFlag{
			Name:        "entries",
			Usage:       "WriteRequest text `file` applied before the run",
			Destination: &opts.EntriesPath,
		},
		&cli.IntFlag{
			Name:        "count",
			Usage:       "packets to generate, 0 runs until interrupted (overrides config)",
			Value:       -1,
			Destination: &count,
		},
		&cli.StringFlag{
			Name:        "metrics-addr",
			Usage:       "metrics listen `address` (overrides config)",
			Destination: &metricsAddr,
		},
		&cli.BoolFlag{
			Name:        "hold",
			Usage:       "keep serving metrics after the run until interrupted",
			Destination: &hold,
		},
	},
	Action: func(c *cli.Context) error {
		conf, err := mau.LoadConfigFile(configPath)
		if err != nil {
			return err
		}

		logger.SetLogLevel(conf.LogLevel)

		if count >= 0 {
			conf.PktGen.Count = count
		}

		if metricsAddr != "" {
			conf.Metrics.Enable = true
			conf.Metrics.Addr = metricsAddr
		}

		logger.AppLog.Infof("%+v", conf)

		s, err := sim.New(conf, opts)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		if conf.Metrics.Enable {
			serveErr := make(chan error, 1)

			ln, err := s.ListenMetrics(conf.Metrics.Addr)
			if err != nil {
				return err
			}

			metricsCtx, cancel := context.WithCancel(ctx)
			defer func() {
				cancel()

				if err := <-serveErr; err != nil {
					logger.MetricsLog.Errorln("metrics server:", err)
				}
			}()

			go func() {
				serveErr <- s.ServeMetrics(metricsCtx, ln)
			}()
		}

		sum, err := s.Run(ctx)
		if err != nil {
			return err
		}

		logger.AppLog.With(
			"packets", sum.Packets,
			"dropped", sum.Dropped,
			"parse_errors", sum.ParseErrors,
			"expired", sum.Expired,
			"cycles", sum.Cycles,
		).Infoln("simulation complete")

		if hold && conf.Metrics.Enable {
			logger.AppLog.Infoln("holding for metrics scrape, interrupt to exit")
			<-ctx.Done()
		}

		return nil
	},
}

func main() {
	if err := app.Run(os.Args); err != nil {
		logger.AppLog.Fatalln("mausim exit:", err)
	}
}
