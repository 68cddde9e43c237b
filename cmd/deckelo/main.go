package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/deckelo/internal/config"
	"github.com/MarcoPoloResearchLab/deckelo/internal/logging"
	"github.com/MarcoPoloResearchLab/deckelo/internal/server"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile  string
	envFiles []string
	openLink string
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "deckelo",
		Short: "Elo ratings for card game decks",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
		SilenceUsage: true,
	}

	setupFlags(rootCmd)
	rootCmd.Flags().StringVar(&openLink, "open-link", "", "Share or legacy link to load on startup")
	rootCmd.AddCommand(
		newExportCommand(),
		newImportCommand(),
		newShareCommand(),
		newOpenLinkCommand(),
	)
	return rootCmd
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Dotenv files to load before reading the environment")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().StringSlice("allowed-origins", nil, "Origins allowed by CORS (all when empty)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().Duration("autosave-delay", defaults.GetDuration("autosave.delay"), "Quiet period before changes are saved")
	cmd.PersistentFlags().String("share-base-url", defaults.GetString("share.base_url"), "Base URL of generated share links")
	cmd.PersistentFlags().Int("share-max-length", defaults.GetInt("share.max_length"), "Longest compressed share payload")
	cmd.PersistentFlags().String("id-scheme", defaults.GetString("ids.scheme"), "Identifier scheme (nanoid, uuid)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "autosave.delay", "autosave-delay")
	bindFlag(cmd, "share.base_url", "share-base-url")
	bindFlag(cmd, "share.max_length", "share-max-length")
	bindFlag(cmd, "ids.scheme", "id-scheme")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return err
		}
	} else {
		// A missing .env is the normal case.
		_ = godotenv.Load()
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func loadRuntime() (config.AppConfig, *zap.Logger, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	return appConfig, logger, nil
}

func runServer(ctx context.Context) error {
	appConfig, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	dispatcher := server.NewRealtimeDispatcher()
	app, err := openApplication(appConfig, logger, dispatcher)
	if err != nil {
		return err
	}

	result, err := app.session.Open(ctx, openLink)
	if err != nil {
		_ = app.shutdown(ctx)
		return err
	}
	if result.FragmentError != nil {
		logger.Warn("startup link ignored", zap.Error(result.FragmentError))
	}
	logger.Info("tracker ready",
		zap.String("source", string(result.Source)),
		zap.Int("decks", result.Decks),
		zap.Int("matches", result.Matches),
		zap.Bool("persistent", app.session.Persistent()))

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Session:        app.session,
		Realtime:       dispatcher,
		Logger:         logger,
		AllowedOrigins: appConfig.AllowedOrigins,
	})
	if err != nil {
		_ = app.shutdown(ctx)
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Event streams end with the request context once a signal arrives.
	httpServer := &http.Server{
		Addr:        appConfig.HTTPAddress,
		Handler:     handler,
		BaseContext: func(net.Listener) context.Context { return signalCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-signalCtx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	if err := app.shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}
