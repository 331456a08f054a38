// Copyright (c) 2024, The OTNS Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

// Package uansim_main parses the command line, builds the simulation and runs it either in batch
// mode or under the interactive CLI.
package uansim_main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"

	"github.com/uwsn/uansim/cli"
	"github.com/uwsn/uansim/logger"
	"github.com/uwsn/uansim/mac"
	"github.com/uwsn/uansim/progctx"
	"github.com/uwsn/uansim/simulation"
)

type MainArgs struct {
	ConfigFile string
	LogLevel   string
	WatchLevel string
	Seed       int64
	Protocol   string
	Duration   float64
	Batch      bool
	OutputDir  string
	Pcap       string
	NodeLog    bool
	LogFile    string
}

func parseArgs(fs *flag.FlagSet, argv []string) (*MainArgs, error) {
	args := &MainArgs{}
	fs.StringVar(&args.ConfigFile, "config", "", "load the simulation config from a YAML file")
	fs.StringVar(&args.LogLevel, "log", "warn", "set logging level: trace, debug, info, note, warn, error.")
	fs.StringVar(&args.WatchLevel, "watch", "off", "set watch level for all nodes: off, trace, debug, info, note, warn, error.")
	fs.Int64Var(&args.Seed, "seed", 0, "random seed of the run (0 keeps the configured seed)")
	fs.StringVar(&args.Protocol, "protocol", "", "MAC protocol: fama, tlohi, maca, aloha-cs, cw (empty keeps the configured one)")
	fs.Float64Var(&args.Duration, "duration", 0, "simulated time in seconds (0 keeps the configured duration)")
	fs.BoolVar(&args.Batch, "batch", false, "run the configured duration without CLI, then exit")
	fs.StringVar(&args.OutputDir, "output", "", "directory for KPI, energy, log and pcap files")
	fs.StringVar(&args.Pcap, "pcap", "", "pcap capture type: off, mac, meta")
	fs.BoolVar(&args.NodeLog, "node-log", false, "write a log file per node")
	fs.StringVar(&args.LogFile, "log-file", "", "also write the log to this file")

	if err := fs.Parse(argv); err != nil {
		return nil, err
	}
	return args, nil
}

// buildConfig loads the config file, if any, and applies the command line overrides.
func buildConfig(args *MainArgs) (*simulation.Config, error) {
	cfg := simulation.DefaultConfig()
	if args.ConfigFile != "" {
		var err error
		if cfg, err = simulation.LoadConfigFile(args.ConfigFile); err != nil {
			return nil, err
		}
	}

	if args.Seed != 0 {
		cfg.Seed = args.Seed
	}
	if args.Protocol != "" {
		p, err := mac.ParseProtocol(args.Protocol)
		if err != nil {
			return nil, err
		}
		if p != cfg.Mac.Protocol {
			cfg.Mac = mac.DefaultConfig(p)
		}
	}
	if args.Duration > 0 {
		cfg.Duration = args.Duration
	}
	if args.OutputDir != "" {
		cfg.OutputDir = args.OutputDir
	}
	if args.Pcap != "" {
		cfg.Pcap = args.Pcap
	}
	if args.NodeLog {
		cfg.NodeLogFile = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config")
	}
	return cfg, nil
}

// Main runs uansim with the process arguments. The cliOptions are only used in interactive mode.
func Main(ctx *progctx.ProgCtx, cliOptions *cli.CliOptions) {
	args, err := parseArgs(flag.CommandLine, os.Args[1:])
	logger.FatalIfError(err)
	logger.FatalIfError(run(ctx, args, cliOptions))
}

func run(ctx *progctx.ProgCtx, args *MainArgs, cliOptions *cli.CliOptions) error {
	level, err := logger.ParseLevelString(args.LogLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	if args.LogFile != "" {
		if err := logger.SetOutput([]string{"stderr", args.LogFile}); err != nil {
			return err
		}
		defer func() {
			_ = logger.SetOutput([]string{"stderr"})
		}()
	}
	watchLevel, err := logger.ParseLevelString(args.WatchLevel)
	if err != nil {
		return err
	}

	cfg, err := buildConfig(args)
	if err != nil {
		return err
	}

	handleSignals(ctx)

	sim, err := simulation.NewSimulation(ctx, cfg)
	if err != nil {
		return err
	}
	defer sim.Stop()
	if watchLevel != logger.OffLevel {
		sim.VisitNodesInOrder(func(node *simulation.Node) {
			node.Logger.SetDisplayLevel(watchLevel)
		})
	}
	logger.Infof("run %s: %d nodes, mac %s, seed %d", cfg.RunId, len(sim.Nodes()), cfg.Mac.Protocol, cfg.Seed)

	if args.Batch {
		err = sim.Run()
		if errors.Is(err, simulation.ErrInterrupted) {
			logger.Warnf("simulation interrupted at %d us", sim.Now())
			return nil
		}
		if err == nil {
			printSummary(sim)
		}
		return err
	}

	rt := cli.NewCmdRunner(ctx, sim)
	logger.SetStdoutCallback(cli.Cli)
	ctx.WaitAdd("cli", 1)
	defer ctx.WaitDone("cli")
	go func() {
		<-ctx.Done()
		cli.Cli.Stop()
	}()
	err = cli.Cli.Run(rt, cliOptions)
	ctx.Cancel(errors.Wrapf(err, "console exit"))
	return nil
}

func printSummary(sim *simulation.Simulation) {
	st := sim.TrafficStats()
	fmt.Printf("generated=%d received=%d ratio=%.3f avgDelay=%.3fs throughput=%.1fbps\n",
		st.Generated, st.Received, st.DeliveryRatio, st.AvgDelaySec, st.ThroughputBps)
}

func handleSignals(ctx *progctx.ProgCtx) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGINT, syscall.SIGHUP)
	signal.Ignore(syscall.SIGALRM)

	ctx.WaitAdd("handleSignals", 1)
	go func() {
		defer logger.Debugf("handleSignals exit.")
		defer ctx.WaitDone("handleSignals")

		for {
			select {
			case sig := <-c:
				logger.Infof("signal received: %v", sig)
				ctx.Cancel(nil)
			case <-ctx.Done():
				signal.Stop(c)
				return
			}
		}
	}()
}
