// Command agent is the hostpulse host-monitoring agent: it connects to a
// central server, accepts task assignments, collects process- and
// system-level metrics from /proc, and streams reports back. See
// SPEC_FULL.md for the full design.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/hostpulse/agent/pkg/agent"
	"github.com/hostpulse/agent/pkg/agentcfg"
	"github.com/hostpulse/agent/pkg/collector/procfs"
	"github.com/hostpulse/agent/pkg/log"
	"github.com/hostpulse/agent/pkg/metrics"
	"github.com/hostpulse/agent/pkg/registry"
	"github.com/hostpulse/agent/pkg/reportqueue"
	"github.com/hostpulse/agent/pkg/stats"
	"github.com/hostpulse/agent/pkg/supervisor"
	"github.com/hostpulse/agent/pkg/worker"
)

// version is set via -ldflags at build time, the same mechanism the
// teacher's cmd/warren uses for its version info.
var version = "dev"

var (
	serverHost  string
	serverPort  int
	logLevel    string
	logJSON     bool
	configPath  string
	metricsAddr string
)

func main() {
	root := &cobra.Command{
		Use:     "agent",
		Short:   "hostpulse host-monitoring agent",
		Version: version,
		RunE:    run,
	}

	root.Flags().StringVarP(&serverHost, "server", "s", "", "server hostname (required)")
	root.Flags().IntVarP(&serverPort, "port", "p", 0, "server port (required)")
	root.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.Flags().BoolVar(&logJSON, "log-json", false, "emit JSON logs instead of console-formatted logs")
	root.Flags().StringVar(&configPath, "config", "", "optional YAML config file (report queue cap/drop policy)")
	root.Flags().StringVar(&metricsAddr, "metrics-addr", "", "optional address to serve Prometheus metrics on, e.g. :9090")

	_ = root.MarkFlagRequired("server")
	_ = root.MarkFlagRequired("port")

	if err := root.Execute(); err != nil {
		// cobra already printed a usage diagnostic for flag errors; match
		// §6's EINVAL exit code for CLI misuse.
		fmt.Fprintln(os.Stderr, err)
		os.Exit(int(exitInvalidArgument))
	}
}

// exitCode mirrors the process exit codes §6 names.
type exitCode int

const (
	exitOK              exitCode = 0
	exitInvalidArgument exitCode = 22 // EINVAL
	exitUnrecoverable   exitCode = 1  // EXIT_FAILURE
)

func run(cmd *cobra.Command, _ []string) error {
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})

	cfg, err := agentcfg.LoadFile(configPath)
	if err != nil {
		log.Logger.Error().Err(err).Msg("failed to load config file")
		os.Exit(int(exitUnrecoverable))
	}

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Logger.Error().Err(err).Msg("metrics listener failed")
			}
		}()
		log.Logger.Info().Str("addr", metricsAddr).Msg("metrics endpoint listening")
	}

	reg := registry.New()
	queue := reportqueue.New()
	if cfg.ReportQueue.Cap > 0 {
		queue.SetCap(cfg.ReportQueue.Cap)
	}

	deps := worker.Deps{
		Collector:  procfs.New(),
		Supervisor: supervisor.New(reg.Children),
		Queue:      queue,
		Stats:      stats.New(),
	}

	addr := fmt.Sprintf("%s:%d", serverHost, serverPort)
	a := agent.New(addr, deps, reg)

	if err := a.Run(); err != nil {
		log.Logger.Error().Err(err).Msg("agent exited with error")
		os.Exit(int(exitUnrecoverable))
	}
	return nil
}
