/*
Copyright 2025 Intel Corporation

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// This application exercises the cpupm coordination engine on simulated
// hardware.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/intel/cpupm/pkg/cpupm"
	cpupmlog "github.com/intel/cpupm/pkg/log"
	"github.com/intel/cpupm/pkg/simhw"
	"github.com/intel/cpupm/pkg/utils"
)

var (
	// Global command line flags
	logLevel = cpupmlog.NewLevelFlag(slog.LevelInfo)
)

type subCmd struct {
	description string
	f           func([]string) error
}

var subCmds = map[string]subCmd{
	"help": subCmd{
		description: "Display this help",
		f:           subCmdHelp,
	},
	"validate": subCmd{
		description: "Validate a power mode configuration file",
		f:           subCmdValidate,
	},
	"run": subCmd{
		description: "Run the engine on simulated hardware",
		f:           subCmdRun,
	},
}

func main() {
	flag.CommandLine.SetOutput(os.Stdout)
	flag.Usage = usage

	// Define the main help flag manually
	help := flag.Bool("help", false, "Display this help")
	flag.Parse()

	if *help {
		flag.Usage()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	// Run sub-command
	cmd, ok := subCmds[args[0]]
	if !ok {
		fmt.Printf("unknown sub-command %q\n", args[0])
		flag.Usage()
		os.Exit(2)
	}

	if err := cmd.f(args[1:]); err != nil {
		fmt.Printf("sub-command %q failed: %v\n", args[0], err)
		os.Exit(1)
	}
}

// nolint:errcheck
func usage() {
	f := flag.CommandLine.Output()
	fmt.Fprint(f, `Usage: cpupm-sim <command> [options]

Available commands:`)

	for _, c := range slices.Sorted(maps.Keys(subCmds)) {
		fmt.Fprintf(f, "\n  %-12s %s", c, subCmds[c].description)
	}

	fmt.Fprint(f, `

Use "cpupm-sim <command> --help" for more information about a command.
`)

	fmt.Fprint(f, "\nGlobal options:\n")
	flag.PrintDefaults()
}

func addGlobalFlags(flagset *flag.FlagSet) {
	flagset.Var(logLevel, "log-level", "log level (debug, info, warn, error)")
}

func subCmdHelp(args []string) error {
	// Parse command line args
	flags := flag.NewFlagSet("help", flag.ExitOnError)
	if err := flags.Parse(args); err != nil {
		return err
	}

	// Run sub-command
	flag.Usage()
	return nil
}

func subCmdValidate(args []string) error {
	// Parse command line args
	flags := flag.NewFlagSet("validate", flag.ExitOnError)
	addGlobalFlags(flags)

	configFile := flags.String("config", "", "path to power mode configuration file")

	if err := flags.Parse(args); err != nil {
		return err
	}

	if *configFile == "" {
		return fmt.Errorf("-config must be specified")
	}

	// Run sub-command
	cfg, err := cpupm.LoadConfigFromFile(*configFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Println("Configuration OK")
	return nil
}

func subCmdRun(args []string) error {
	// Parse command line args
	flags := flag.NewFlagSet("run", flag.ExitOnError)
	addGlobalFlags(flags)

	configFile := flags.String("config", "", "path to power mode configuration file")
	duration := flags.Duration("duration", 10*time.Second, "how long to run the simulation")
	port := flags.Int("port", 0, "port to serve prometheus metrics on, 0 to disable")
	otelExporter := flags.String("otel-exporter", "none", "OpenTelemetry metrics exporter (none, stdout, otlp-grpc, otlp-http)")
	otelInterval := flags.Duration("otel-interval", 5*time.Second, "OpenTelemetry metrics export interval")
	grace := flags.Duration("grace", 0, "override the grace period of deferred power modes")
	traceTail := flags.Int("trace", 20, "number of trace records to print at exit")

	opts := defaultSimOptions()
	flags.BoolVar(&opts.pin, "pin", false, "pin each simulated CPU loop to a host CPU")
	flags.Uint64Var(&opts.seed, "seed", 1, "random seed of the simulation")
	flags.DurationVar(&opts.maxBusy, "max-busy", opts.maxBusy, "upper bound of a busy period")
	flags.DurationVar(&opts.maxIdle, "max-idle", opts.maxIdle, "upper bound of an idle period")
	flags.Float64Var(&opts.cancelRatio, "cancel-ratio", opts.cancelRatio, "share of idle periods cancelled before sleeping")
	flags.DurationVar(&opts.hotplugInterval, "hotplug", 0, "interval of simulated CPU hotplug, 0 to disable")
	flags.IntVar(&opts.idleStates, "idle-states", opts.idleStates, "number of idle states per CPU")

	if err := flags.Parse(args); err != nil {
		return err
	}

	if *configFile == "" {
		return fmt.Errorf("-config must be specified")
	}

	// Run sub-command
	log := cpupmlog.NewLogger("cpupm-sim", logLevel)
	opts.log = log

	cfg, err := cpupm.LoadConfigFromFile(*configFile)
	if err != nil {
		return err
	}
	cpus, err := utils.NewIDSetFromString(cfg.PossibleCPUs)
	if err != nil {
		return fmt.Errorf("invalid possibleCPUs: %w", err)
	}

	hw := simhw.New(cpus)
	hw.LimitCallLog(1024)
	engineOpts := []cpupm.Option{cpupm.WithLogger(cpupmlog.NewLogger("cpupm", logLevel))}
	if *grace > 0 {
		engineOpts = append(engineOpts, cpupm.WithDeferredGracePeriod(*grace))
	}
	e, err := cpupm.New(cfg, hw, hw, engineOpts...)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mp, err := setupOTel(ctx, *otelExporter, *otelInterval)
	if err != nil {
		return err
	}
	if mp != nil {
		reg, err := cpupm.RegisterOTelMetrics(otel.Meter("github.com/intel/cpupm"), e)
		if err != nil {
			return err
		}
		defer func() {
			if err := reg.Unregister(); err != nil {
				log.Warn("failed to unregister OpenTelemetry callback", "err", err)
			}
			if err := mp.Shutdown(context.Background()); err != nil {
				log.Warn("failed to shut down OpenTelemetry meter provider", "err", err)
			}
		}()
	}

	if *port != 0 {
		prometheusRegistry := prometheus.NewRegistry()
		prometheusRegistry.MustRegister(cpupm.NewCollector(e))
		prometheusRegistry.MustRegister(collectors.NewGoCollector())
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(prometheusRegistry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: fmt.Sprintf(":%d", *port), Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("error running HTTP server", "err", err)
			}
		}()
		defer srv.Close()
		fmt.Printf("Serving prometheus metrics at :%d/metrics\n", *port)
	}

	e.Start()
	defer e.Stop()

	sim := newSimulator(e, hw, cpus, opts)
	if err := e.StartProfiling(sim.now()); err != nil {
		return err
	}

	runCtx, stop := context.WithTimeout(ctx, *duration)
	defer stop()
	fmt.Printf("Simulating %d CPUs for %v...\n", cpus.Size(), *duration)
	sim.run(runCtx)

	profile, err := e.StopProfiling(sim.now())
	if err != nil {
		return err
	}

	fmt.Println("Power modes:")
	fmt.Println(utils.DumpJSON(e.PowerModes()))
	fmt.Printf("Profile (%v):\n", profile.Duration())
	fmt.Println(utils.DumpJSON(profile))

	if *traceTail > 0 {
		records := e.Trace()
		if len(records) > *traceTail {
			records = records[len(records)-*traceTail:]
		}
		fmt.Println("Trace:")
		for _, r := range records {
			fmt.Printf("  %12v cpu%-3d %-10s %-8s state=%d cancelled=%v\n", r.Time, r.CPU, r.Target, r.Action, r.State, r.Cancelled)
		}
	}

	fmt.Printf("Hardware calls: cpu-down=%d cluster-disable=%d domain-down=%d early-wakeup=%d\n",
		hw.CountCalls(simhw.OpCPUDown), hw.CountCalls(simhw.OpClusterDisable),
		hw.CountCalls(simhw.OpDomainDown), hw.CountCalls(simhw.OpEarlyWakeup))
	return nil
}
