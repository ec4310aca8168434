package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/good-yellow-bee/alertboard/internal/api"
	"github.com/good-yellow-bee/alertboard/internal/api/auth"
	"github.com/good-yellow-bee/alertboard/internal/feed"
	"github.com/good-yellow-bee/alertboard/internal/logging"
	"github.com/good-yellow-bee/alertboard/internal/metrics"
	"github.com/good-yellow-bee/alertboard/internal/session"
	"github.com/good-yellow-bee/alertboard/internal/storage"
	"github.com/good-yellow-bee/alertboard/internal/web"
	"github.com/good-yellow-bee/alertboard/internal/web/handlers"
	"github.com/good-yellow-bee/alertboard/pkg/config"
)

var (
	configFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "alertboard",
	Short: "alertboard - shared live alert feed",
	Long: `alertboard serves a live, newest-first feed of short text alerts.
Signed-in operators post alerts; every open screen sees them immediately.`,
	RunE:          runServer,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.VersionString("alertboard"))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (default ./alertboard.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging and request logs")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, v, err := LoadConfig(configFile)
	if err != nil {
		return err
	}
	cfg.Verbose = verbose

	logger, level, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	if cfg.Verbose {
		level.SetLevel(zap.DebugLevel)
	}
	watchLogLevel(v, level, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0750); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	store := storage.NewSQLiteStorage(cfg.Database.Path)
	if err := store.Open(); err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	if err := store.EnsureAdminUser(); err != nil {
		return fmt.Errorf("ensure admin user: %w", err)
	}
	logger.Info("database initialized", zap.String("path", cfg.Database.Path))

	backend, closeFeed, err := openFeed(ctx, cfg, store, logger)
	if err != nil {
		return err
	}
	defer closeFeed()

	sessions := session.NewStore(cfg.Web.SessionTTL)
	lockout := auth.NewLockoutTracker(cfg.Auth.LockoutThreshold, cfg.Auth.LockoutDuration)

	var webHandler http.Handler
	if cfg.Web.Enabled {
		loc, _ := cfg.Location()
		ws, err := web.NewServer(web.Config{
			CSRFKey:          []byte(cfg.Web.CSRFKey),
			UseSecureCookies: cfg.Web.SecureCookies || cfg.Server.TLS.Enabled,
			TrustedOrigins:   cfg.Web.TrustedOrigins,
			Pages: handlers.Config{
				SessionTTL:   cfg.Web.SessionTTL,
				RememberTTL:  cfg.Web.RememberTTL,
				ReadyTimeout: cfg.Web.ReadyTimeout,
				Location:     loc,
			},
		}, store, backend, sessions, lockout, logger.Named("web"))
		if err != nil {
			return fmt.Errorf("create web ui: %w", err)
		}
		webHandler = ws.Routes()
	}

	srv, err := api.New(&api.Config{
		Address:           cfg.Server.Address,
		JWTSecret:         []byte(cfg.Auth.JWTSecret),
		TrustedProxies:    cfg.Server.TrustedProxies,
		HTTPTLSEnabled:    cfg.Server.TLS.Enabled,
		HTTPTLSCertFile:   cfg.Server.TLS.CertFile,
		HTTPTLSKeyFile:    cfg.Server.TLS.KeyFile,
		AccessTokenTTL:    cfg.Auth.AccessTokenTTL,
		RefreshTokenTTL:   cfg.Auth.RefreshTokenTTL,
		RateLimitPerIP:    cfg.Auth.RateLimitPerIP,
		RateLimitPerUser:  cfg.Auth.RateLimitPerUser,
		LockoutThreshold:  cfg.Auth.LockoutThreshold,
		LockoutDuration:   cfg.Auth.LockoutDuration,
		QueryTimeout:      cfg.Stream.QueryTimeout,
		StreamMaxDuration: cfg.Stream.MaxDuration,
		HeartbeatInterval: cfg.Stream.HeartbeatInterval,
		PingInterval:      cfg.Stream.PingInterval,
		Verbose:           cfg.Verbose,
	}, api.Deps{
		Storage:  store,
		Feed:     backend,
		Sessions: sessions,
		Lockout:  lockout,
		Web:      webHandler,
		Logger:   logger.Named("api"),
	})
	if err != nil {
		return fmt.Errorf("create api server: %w", err)
	}

	metrics.SetBuildInfo(config.Version, config.Commit, config.BuildTime)
	logger.Info("starting alertboard",
		zap.String("version", config.Version),
		zap.String("feed", cfg.Feed.Backend),
		zap.Bool("web", cfg.Web.Enabled),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	if cfg.Server.MetricsAddress != "" {
		ms := metrics.NewServer(cfg.Server.MetricsAddress, logger.Named("metrics"))
		g.Go(func() error { return ms.Run(gctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run server: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// openFeed builds the configured feed backend. The returned func releases it.
func openFeed(ctx context.Context, cfg *Config, store storage.Storage, logger *zap.Logger) (feed.Backend, func(), error) {
	switch cfg.Feed.Backend {
	case BackendFirestore:
		var opts []option.ClientOption
		if cfg.Feed.Firestore.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.Feed.Firestore.CredentialsFile))
		}
		client, err := feed.DialFirestore(ctx, cfg.Feed.Firestore.ProjectID, opts...)
		if err != nil {
			return nil, nil, err
		}
		fs := feed.NewFirestore(client, logger.Named("firestore"))
		return fs, func() {
			if err := fs.Close(); err != nil {
				logger.Warn("close firestore", zap.Error(err))
			}
		}, nil
	default:
		hub := feed.NewHub(store.Alerts(), feed.WithHubLogger(logger.Named("hub")))
		return hub, hub.Close, nil
	}
}

// watchLogLevel applies logging.level changes from the config file without a
// restart.
func watchLogLevel(v *viper.Viper, level zap.AtomicLevel, logger *zap.Logger) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		next := logging.ParseLevel(v.GetString("logging.level"))
		if next == level.Level() {
			return
		}
		level.SetLevel(next)
		logger.Info("log level changed", zap.String("file", e.Name), zap.Stringer("level", next))
	})
	v.WatchConfig()
}
