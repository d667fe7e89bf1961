package main

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"

	realtime "github.com/codewandler/realtime-go"
	"github.com/codewandler/realtime-go/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type globalFlags struct {
	configFile  string
	debug       bool
	retry       bool
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "rtchat",
		Short:         "Chat with a realtime model from the terminal",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "config file (yaml, toml or json)")
	rootCmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "enable debug logs")
	rootCmd.PersistentFlags().BoolVar(&flags.retry, "retry", true, "retry the connection with backoff")
	rootCmd.PersistentFlags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address, e.g. :9090")

	rootCmd.AddCommand(
		newChatCmd(flags),
		newSayCmd(flags),
	)

	return rootCmd
}

func (f *globalFlags) logger() *slog.Logger {
	level := slog.LevelWarn
	if f.debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newClient loads the configuration and builds a client with the demo tools.
func (f *globalFlags) newClient(opts ...realtime.ClientOption) (*realtime.Client, *config.Config, error) {
	cfg, err := config.Load(viper.New(), f.configFile)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := f.logger()
	tools, err := demoTools()
	if err != nil {
		return nil, nil, err
	}

	client := realtime.New(append([]realtime.ClientOption{
		realtime.WithLogger(logger),
		realtime.WithConfig(cfg),
		realtime.WithTools(tools...),
	}, opts...)...)

	if f.metricsAddr != "" {
		if _, err := serveMetrics(f.metricsAddr, client, logger); err != nil {
			return nil, nil, err
		}
	}

	return client, cfg, nil
}

// serveMetrics exposes the client's metrics at /metrics in the background.
func serveMetrics(addr string, client *realtime.Client, logger *slog.Logger) (net.Addr, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(client.Services().Metrics.Prometheus("rtchat")); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	go func() {
		if err := http.Serve(ln, mux); err != nil {
			logger.Error("metrics server stopped", slog.Any("err", err))
		}
	}()
	return ln.Addr(), nil
}
