/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Seednode/warroom/internal/logging"
)

const (
	remoteNone     = "none"
	remoteRedis    = "redis"
	remotePostgres = "postgres"
)

type Config struct {
	autosaveDir      string
	autosaveInterval time.Duration
	autosaveKeep     int
	bind             string
	dataDir          string
	localQuota       int64
	port             int
	postgresURL      string
	prefix           string
	profile          bool
	redisURL         string
	remote           string
	resyncInterval   time.Duration
	roleTimeout      time.Duration
	sessionTimeout   time.Duration
	tlsCert          string
	tlsKey           string
	verbose          bool
	version          bool

	logger *zap.Logger
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}

	switch c.remote {
	case remoteNone:
	case remoteRedis:
		if c.redisURL == "" {
			return errors.New("--redis-url is required when --remote=redis")
		}
	case remotePostgres:
		if c.postgresURL == "" {
			return errors.New("--postgres-url is required when --remote=postgres")
		}
	default:
		return fmt.Errorf("invalid remote (must be one of none, redis, postgres): %s", c.remote)
	}

	switch {
	case c.localQuota < 0:
		return fmt.Errorf("invalid local quota (must not be negative): %d", c.localQuota)
	case c.resyncInterval < 0:
		return fmt.Errorf("invalid resync interval (must not be negative): %s", c.resyncInterval)
	case c.autosaveInterval < 0:
		return fmt.Errorf("invalid autosave interval (must not be negative): %s", c.autosaveInterval)
	case c.autosaveKeep < 1:
		return fmt.Errorf("invalid autosave keep count (must be at least 1): %d", c.autosaveKeep)
	case c.sessionTimeout < 0:
		return fmt.Errorf("invalid session timeout (must not be negative): %s", c.sessionTimeout)
	}

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("WARROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "warroom",
		Short:         "Shared state for facilitated wargame exercises.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}

			logger, err := logging.New(cfg.verbose)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			cfg.logger = logger

			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVar(&cfg.autosaveDir, "autosave-dir", "", "directory to write auto-save snapshots to, instead of storage keys (env: WARROOM_AUTOSAVE_DIR)")
	fs.DurationVar(&cfg.autosaveInterval, "autosave-interval", 5*time.Minute, "time between auto-save snapshots, 0 to disable (env: WARROOM_AUTOSAVE_INTERVAL)")
	fs.IntVar(&cfg.autosaveKeep, "autosave-keep", 5, "auto-save files to keep per session and role (env: WARROOM_AUTOSAVE_KEEP)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: WARROOM_BIND)")
	fs.StringVar(&cfg.dataDir, "data-dir", "", "directory for the local sqlite store, in-memory if empty (env: WARROOM_DATA_DIR)")
	fs.Int64Var(&cfg.localQuota, "local-quota", 5*1000*1000, "maximum bytes held by the local store, 0 for unlimited (env: WARROOM_LOCAL_QUOTA)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: WARROOM_PORT)")
	fs.StringVar(&cfg.postgresURL, "postgres-url", "", "postgres connection string for --remote=postgres (env: WARROOM_POSTGRES_URL)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: WARROOM_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: WARROOM_PROFILE)")
	fs.StringVar(&cfg.redisURL, "redis-url", "", "redis url for --remote=redis (env: WARROOM_REDIS_URL)")
	fs.StringVar(&cfg.remote, "remote", remoteNone, "remote store: none, redis or postgres (env: WARROOM_REMOTE)")
	fs.DurationVar(&cfg.resyncInterval, "resync-interval", 30*time.Second, "time between pushes of locally saved changes to the remote store (env: WARROOM_RESYNC_INTERVAL)")
	fs.DurationVar(&cfg.roleTimeout, "role-timeout", 2*time.Minute, "time before roles of disconnected clients are released (env: WARROOM_ROLE_TIMEOUT)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle session hubs are closed (env: WARROOM_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: WARROOM_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: WARROOM_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: WARROOM_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: WARROOM_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("warroom v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
