package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	quic "github.com/metaech/quix"
	"github.com/metaech/quix/metrics"
)

var (
	cfgFile     string
	metricsAddr string
	verbosity   int
)

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML configuration file")
	RootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (disabled if empty)")
	RootCmd.PersistentFlags().IntVarP(&verbosity, "v", "v", 2, "log verbose: 0=off 1=error 2=info 3=debug 4=trace")

	RootCmd.AddCommand(ClientCmd)
	RootCmd.AddCommand(ServerCmd)
}

// RootCmd is the main command for the 'quince' binary.
var RootCmd = &cobra.Command{
	Use:   "quince",
	Short: "`quince` is a command line client/server for the quix transport core",
	Run: func(cmd *cobra.Command, args []string) {
		// nolint:errcheck
		cmd.Usage()
	},
}

// loadConfig reads --config if given, otherwise returns process
// defaults; it never touches Listen/TLS fields the subcommand flags
// are meant to override.
func loadConfig() (*quic.Config, error) {
	if cfgFile == "" {
		return quic.NewConfig(), nil
	}
	return quic.LoadConfigFile(cfgFile)
}

// serveMetrics starts a background HTTP server exposing /metrics and
// returns the collector the caller should register connections with;
// it returns nil when metricsAddr was left empty.
func serveMetrics() *metrics.ConnCollector {
	if metricsAddr == "" {
		return nil
	}
	collector := metrics.NewConnCollector()
	prometheus.MustRegister(collector)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			fmt.Fprintf(os.Stderr, "quince: metrics server: %v\n", err)
		}
	}()
	return collector
}
