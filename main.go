package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/btcpeer/btcpeer/lib/bootstrap"
	"github.com/btcpeer/btcpeer/lib/config"
	"github.com/btcpeer/btcpeer/lib/metrics"
	"github.com/btcpeer/btcpeer/lib/pool"
	"github.com/btcpeer/btcpeer/lib/util/signals"
	"github.com/go-i2p/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var log = logger.GetGoI2PLogger()

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var node *config.NodeConfig

	root := &cobra.Command{
		Use:           "btcpeer",
		Short:         "Keep a pool of Bitcoin peer sessions alive",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.InitConfig(); err != nil {
				return err
			}
			cfg, err := config.NewNodeConfigFromViper()
			if err != nil {
				return err
			}
			node = cfg
			return applyLogLevel(cfg.LogLevel)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), node)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&config.CfgFile, "config", "", "config file (default $HOME/.btcpeer/config.yaml)")
	flags.Int("peers", config.Defaults().Peers, "number of peer sessions to keep alive")
	flags.StringSlice("seed", config.Defaults().Seeds, "DNS seed hostname, repeatable")
	flags.StringSlice("connect", nil, "connect only to these IPv4 addresses, repeatable")
	flags.String("nameserver", "", "query this DNS server (host:port) instead of the system resolver")
	flags.String("log-level", config.Defaults().LogLevel, "log level (trace, debug, info, warn, error)")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")

	for key, flag := range map[string]string{
		"peers":        "peers",
		"seeds":        "seed",
		"connect":      "connect",
		"nameserver":   "nameserver",
		"log_level":    "log-level",
		"metrics_addr": "metrics-addr",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	root.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := node.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})
	return root
}

// applyLogLevel sends log output to stderr at the given level.
func applyLogLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return oops.Wrapf(err, "log level")
	}
	l := logger.GetGoI2PLogger()
	l.SetOutput(os.Stderr)
	l.SetLevel(logger.Level(lvl))
	return nil
}

// addressSource picks fixed addresses when --connect is given, DNS seeds otherwise.
func addressSource(cfg *config.NodeConfig) (*bootstrap.SeedSource, error) {
	if len(cfg.Connect) > 0 {
		static, err := bootstrap.ParseStaticResolver(cfg.Connect)
		if err != nil {
			return nil, err
		}
		return bootstrap.NewSeedSource(static, cfg.Connect...), nil
	}
	return bootstrap.NewSeedSource(bootstrap.NewDNSResolver(cfg.Nameserver), cfg.Seeds...), nil
}

func run(ctx context.Context, cfg *config.NodeConfig) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	signals.RegisterInterruptHandler(func() {
		log.Info("Interrupted, shutting down")
		cancel()
	})
	signals.RegisterReloadHandler(func() {
		if err := viper.ReadInConfig(); err != nil {
			log.WithError(err).Warn("Reload failed")
			return
		}
		if err := applyLogLevel(viper.GetString("log_level")); err != nil {
			log.WithError(err).Warn("Reload failed")
		}
	})
	go signals.Handle()
	defer signals.StopHandle()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := metrics.New(reg)
	if err != nil {
		return err
	}
	if cfg.MetricsAddr != "" {
		stop := serveMetrics(cfg.MetricsAddr, reg)
		defer stop()
	}

	source, err := addressSource(cfg)
	if err != nil {
		return err
	}
	poolCfg := cfg.PoolConfig()
	poolCfg.Metrics = collector
	poolCfg.Peer.Metrics = collector

	p := pool.New(source, poolCfg)
	defer func() {
		p.Stop()
		p.Wait()
	}()

	log.WithFields(logger.Fields{
		"at":    "main",
		"peers": cfg.Peers,
		"seeds": source.Seeds(),
	}).Info("Starting peer pool")
	if err := p.Init(ctx, cfg.Peers); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	<-ctx.Done()
	return nil
}

// serveMetrics starts the metrics endpoint and returns its shutdown function.
func serveMetrics(addr string, g prometheus.Gatherer) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.WithField("addr", addr).Info("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Metrics server failed")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
