package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/timeline-crawler/pkg/client"
	"github.com/Sternrassler/timeline-crawler/pkg/config"
	"github.com/Sternrassler/timeline-crawler/pkg/logging"
	"github.com/Sternrassler/timeline-crawler/pkg/metrics"
	"github.com/Sternrassler/timeline-crawler/pkg/ratelimit"
)

var version = "dev"

// app carries flag values and the resources opened for one invocation.
type app struct {
	configFile  string
	logLevel    string
	pretty      bool
	metricsAddr string
	redisAddr   string

	cfg     *config.Config
	logger  zerolog.Logger
	redis   *redis.Client
	store   *ratelimit.Store
	metrics *http.Server
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "crawler",
		Short: "Fetch timelines and profiles within the API rate limit",
		Long: `crawler fetches complete user timelines and user profiles from the
REST API, signing every request with OAuth1.

It pages backwards through timelines, backs off when the rate limit window
is nearly spent and retries throttled or failed requests. Records are
written to stdout as JSON; logs go to stderr.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "config file (default is ./.crawler.yaml or $HOME/.config/timeline-crawler/config.yaml)")
	flags.StringVar(&a.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.BoolVar(&a.pretty, "pretty", false, "human-readable console logs")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9100")
	flags.StringVar(&a.redisAddr, "redis-addr", "", "record rate limit state in Redis at this address")

	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(
		newTimelineCmd(a),
		newLookupCmd(a),
		newShowCmd(a),
		newStatusCmd(a),
	)

	return root
}

// setup loads configuration, applies explicit flags and opens the optional
// Redis store and metrics server.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level = a.logLevel
	}
	if flags.Changed("pretty") {
		cfg.Logging.Pretty = a.pretty
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = a.metricsAddr
	}
	if flags.Changed("redis-addr") {
		cfg.Redis.Addr = a.redisAddr
	}

	if err := logging.ValidateLevel(logging.LogLevel(cfg.Logging.Level)); err != nil {
		return err
	}
	logging.Setup(cfg.LoggerConfig())
	a.logger = logging.NewLogger("cli")
	a.cfg = cfg

	if opts := cfg.RedisOptions(); opts != nil {
		a.redis = redis.NewClient(opts)
		if err := a.redis.Ping(cmd.Context()).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
		}
		a.store = ratelimit.NewStore(a.redis, logging.NewLogger("ratelimit-store"))
		a.logger.Debug().Str("addr", opts.Addr).Msg("Connected to Redis")
	}

	if cfg.Metrics.Addr != "" {
		a.metrics = metrics.NewServer(cfg.Metrics.Addr)
		go func() {
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error().Err(err).Str("addr", cfg.Metrics.Addr).Msg("Metrics server failed")
			}
		}()
		a.logger.Info().Str("addr", cfg.Metrics.Addr).Msg("Serving metrics")
	}

	return nil
}

// newClient validates the full configuration and builds an API client.
func (a *app) newClient() (*client.Client, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return client.New(a.cfg.ClientConfig(a.store))
}

func (a *app) close() error {
	var errs []error

	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, a.metrics.Shutdown(ctx))
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}

	return errors.Join(errs...)
}
