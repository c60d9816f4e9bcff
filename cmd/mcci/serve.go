package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/mcci/pkg/api"
	"github.com/cuemby/mcci/pkg/clock"
	"github.com/cuemby/mcci/pkg/config"
	"github.com/cuemby/mcci/pkg/dispatch"
	"github.com/cuemby/mcci/pkg/hub"
	"github.com/cuemby/mcci/pkg/log"
	"github.com/cuemby/mcci/pkg/metrics"
	"github.com/cuemby/mcci/pkg/revision"
	"github.com/cuemby/mcci/pkg/schema"
	"github.com/cuemby/mcci/pkg/server"
	"github.com/cuemby/mcci/pkg/types"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a node",
	Long: `Run a node: load the schema, open the revision database, and serve the
gRPC API and the HTTP metrics and health endpoints until interrupted.

Flags override values from the configuration file.

Examples:
  mcci serve --config /etc/mcci/mcci.yaml
  mcci serve --node-address 12 --schema schema.yaml --data-dir ./mcci-data`,
	RunE: runServe,
}

func init() {
	addServeFlags(serveCmd.Flags())
}

func addServeFlags(f *pflag.FlagSet) {
	f.StringP("config", "c", "", "YAML configuration file")
	f.Uint32("node-address", 0, "Address of this node")
	f.String("listen-addr", "", "Address for the gRPC API")
	f.String("metrics-addr", "", "Address for metrics and health endpoints (empty disables)")
	f.String("data-dir", "", "Directory holding the revision database")
	f.String("schema", "", "Schema file listing the variables")
	f.Bool("strict-fingerprint", true, "Refuse to start when the schema changed since the database was written")
	f.Duration("sweep-interval", 0, "How often expired subscriptions are removed")
	f.String("log-level", "", "Log level (trace, debug, info, warn, error)")
	f.Bool("log-json", false, "Log JSON instead of console output")
	f.Bool("read-only", false, "Refuse Produce and Data calls")
}

// loadServeConfig layers changed flags over the configuration file or the
// defaults.
func loadServeConfig(cmd *cobra.Command) (config.Config, error) {
	f := cmd.Flags()
	cfg := config.Default()
	if path, _ := f.GetString("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}

	if f.Changed("node-address") {
		v, _ := f.GetUint32("node-address")
		cfg.NodeAddress = types.NodeAddress(v)
	}
	if f.Changed("listen-addr") {
		cfg.ListenAddr, _ = f.GetString("listen-addr")
	}
	if f.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = f.GetString("metrics-addr")
	}
	if f.Changed("data-dir") {
		cfg.DataDir, _ = f.GetString("data-dir")
	}
	if f.Changed("schema") {
		cfg.SchemaFile, _ = f.GetString("schema")
	}
	if f.Changed("strict-fingerprint") {
		cfg.StrictFingerprint, _ = f.GetBool("strict-fingerprint")
	}
	if f.Changed("sweep-interval") {
		cfg.SweepInterval, _ = f.GetDuration("sweep-interval")
	}
	if f.Changed("log-level") {
		cfg.Log.Level, _ = f.GetString("log-level")
	}
	if f.Changed("log-json") {
		cfg.Log.JSON, _ = f.GetBool("log-json")
	}
	return cfg, cfg.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServeConfig(cmd)
	if err != nil {
		return err
	}
	readOnly, _ := cmd.Flags().GetBool("read-only")

	log.Init(log.Config{Level: log.ParseLevel(cfg.Log.Level), JSONOutput: cfg.Log.JSON})
	metrics.SetVersion(Version)
	logger := log.WithNode(cfg.NodeAddress)

	reg, err := schema.Load(cfg.SchemaFile)
	metrics.UpdateFromError(metrics.ComponentSchema, err)
	if err != nil {
		return fmt.Errorf("failed to load schema: %w", err)
	}
	logger.Info().
		Int("variables", reg.Cardinality()).
		Str("fingerprint", reg.Fingerprint()).
		Msg("Schema loaded")

	authority, err := revision.Open(cfg.DataDir, reg.Fingerprint(), cfg.StrictFingerprint)
	metrics.UpdateFromError(metrics.ComponentRevision, err)
	if err != nil {
		return fmt.Errorf("failed to open revision database: %w", err)
	}
	defer authority.Close()

	h := hub.New(cfg.SessionBuffer)
	defer h.Close()

	srv, err := server.New(cfg.ServerSettings(), authority, reg, h, server.WithLogger(log.WithComponent("router")))
	if err != nil {
		return err
	}

	d := dispatch.New(srv, clock.Real(), cfg.SweepInterval)
	d.Start()
	defer d.Stop()
	metrics.ExpectReports(metrics.ComponentSweeper, 3*cfg.SweepInterval)
	metrics.RegisterCheck(metrics.ComponentBanks, d.Validate)

	collector := metrics.NewCollector(d, 0)
	collector.Start()
	defer collector.Stop()

	var opts []api.Option
	if readOnly {
		opts = append(opts, api.WithReadOnly())
	}
	apiServer := api.NewServer(d, h, opts...)
	errCh := make(chan error, 2)
	go func() {
		if err := apiServer.Start(cfg.ListenAddr); err != nil {
			metrics.UpdateFromError(metrics.ComponentAPI, err)
			errCh <- fmt.Errorf("API server error: %w", err)
		}
	}()
	metrics.UpdateComponent(metrics.ComponentAPI, true, "")

	var healthServer *api.HealthServer
	if cfg.MetricsAddr != "" {
		healthServer = api.NewHealthServer(d)
		go func() {
			if err := healthServer.Start(cfg.MetricsAddr); err != nil {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	logger.Info().
		Str("api", cfg.ListenAddr).
		Str("metrics", cfg.MetricsAddr).
		Bool("read_only", readOnly).
		Msg("Node is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("Shutting down")
	case err = <-errCh:
		logger.Error().Err(err).Msg("Server failed, shutting down")
	}

	apiServer.Stop()
	if healthServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := healthServer.Shutdown(ctx); serr != nil {
			logger.Warn().Err(serr).Msg("Metrics server shutdown failed")
		}
	}
	return err
}
