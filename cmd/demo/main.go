// Command demo wires a config, pool, health monitor, strategy, proxy, and
// dispatcher together into a runnable reverse-proxy load balancer. It
// exists to exercise the library end to end; production deployments are
// expected to embed the internal packages directly.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/drsoft-oss/loadbalancer/internal/config"
	"github.com/drsoft-oss/loadbalancer/internal/dispatcher"
	"github.com/drsoft-oss/loadbalancer/internal/healthmonitor"
	"github.com/drsoft-oss/loadbalancer/internal/metrics"
	"github.com/drsoft-oss/loadbalancer/internal/pool"
	"github.com/drsoft-oss/loadbalancer/internal/proxy"
	"github.com/drsoft-oss/loadbalancer/internal/strategy"
)

var version = "dev"

var (
	flagServerFile string
	flagListen     string
	flagStrategy   string

	flagHealthInterval string
	flagMaxFailures    uint32
	flagDialTimeout    string
	flagIdleTimeout    string
	flagMaxWorkers     int64
)

var rootCmd = &cobra.Command{
	Use:          "demo",
	Short:        "Layer-4 reverse-proxy load balancer",
	Version:      version,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()

	f.StringVarP(&flagServerFile, "file", "f", "", "Path to backend server list file (one host:port per line). Omit to use the built-in defaults.")
	f.StringVarP(&flagListen, "listen", "l", "0.0.0.0:8080", "Local listen address (host:port)")
	f.StringVar(&flagStrategy, "strategy", "round_robin", "Selection strategy: round_robin, least_connections, health_score, weighted_round_robin, response_time, aura (alpha1), helios (beta1)")

	f.StringVar(&flagHealthInterval, "health-interval", "5s", "Interval between health-check passes")
	f.Uint32Var(&flagMaxFailures, "max-failures", 3, "Consecutive probe failures before a server is marked unhealthy")
	f.StringVar(&flagDialTimeout, "dial-timeout", "3s", "Timeout for dialling a backend server")
	f.StringVar(&flagIdleTimeout, "idle-timeout", "5s", "Idle timeout for an established proxy tunnel")
	f.Int64Var(&flagMaxWorkers, "max-workers", 100, "Maximum concurrent proxied connections")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) error {
	healthInterval, err := time.ParseDuration(flagHealthInterval)
	if err != nil {
		return fmt.Errorf("--health-interval: %w", err)
	}
	dialTimeout, err := time.ParseDuration(flagDialTimeout)
	if err != nil {
		return fmt.Errorf("--dial-timeout: %w", err)
	}
	idleTimeout, err := time.ParseDuration(flagIdleTimeout)
	if err != nil {
		return fmt.Errorf("--idle-timeout: %w", err)
	}

	cfg := config.Default()
	cfg.ListenAddr = flagListen
	cfg.Strategy = flagStrategy
	cfg.HealthCheckInterval = healthInterval
	cfg.MaxFailures = flagMaxFailures
	cfg.DialTimeout = dialTimeout
	cfg.IdleTimeout = idleTimeout
	cfg.MaxWorkers = int(flagMaxWorkers)

	if flagServerFile != "" {
		servers, err := config.LoadServerFile(flagServerFile)
		if err != nil {
			return fmt.Errorf("load server file: %w", err)
		}
		cfg.Servers = servers
	}

	p := pool.New(cfg.MaxFailures)
	for _, s := range cfg.Servers {
		p.AddServer(s.Host, s.Port)
	}
	log.Printf("[init] registered %d backend servers", p.Len())

	mon := healthmonitor.New(p, healthmonitor.Config{
		Interval: cfg.HealthCheckInterval,
		Timeout:  cfg.DialTimeout,
	})
	log.Printf("[init] running initial health check")
	mon.RunOnce()
	mon.Start()
	defer mon.Stop()

	strat := strategy.New(cfg.Strategy)

	px := proxy.New(proxy.Config{
		DialTimeout: cfg.DialTimeout,
		IdleTimeout: cfg.IdleTimeout,
		BufferSize:  cfg.BufferSize,
	})

	mx := metrics.New()

	d := dispatcher.New(dispatcher.Config{
		ListenAddr: cfg.ListenAddr,
		MaxWorkers: int64(cfg.MaxWorkers),
	}, p, px, mx, strat)

	printBanner(cfg)

	srvErr := make(chan error, 1)
	go func() { srvErr <- d.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("[init] received %s — shutting down", sig)
	case err := <-srvErr:
		if err != nil {
			log.Printf("[init] dispatcher error: %v", err)
		}
	}

	d.Stop()
	return nil
}

func printBanner(cfg config.Config) {
	fmt.Printf(`
╔══════════════════════════════════════════════════════════════╗
║                  loadbalancer %s
╠══════════════════════════════════════════════════════════════╣
║  Listen     : %s
║  Strategy   : %s
║  Backends   : %d configured
║  Max workers: %d
╚══════════════════════════════════════════════════════════════╝

`, padRight(version, 43),
		padRight(cfg.ListenAddr, 49),
		padRight(cfg.Strategy, 49),
		len(cfg.Servers),
		cfg.MaxWorkers,
	)
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}
