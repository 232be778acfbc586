package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openmatlab/rollflow/internal/auth"
	"github.com/openmatlab/rollflow/internal/cache"
	"github.com/openmatlab/rollflow/internal/config"
	"github.com/openmatlab/rollflow/internal/database"
	"github.com/openmatlab/rollflow/internal/flows"
	"github.com/openmatlab/rollflow/internal/groups"
	"github.com/openmatlab/rollflow/internal/logging"
	"github.com/openmatlab/rollflow/internal/media"
	"github.com/openmatlab/rollflow/internal/server"
	"github.com/openmatlab/rollflow/internal/sharing"
	"github.com/openmatlab/rollflow/internal/techniques"
	"github.com/openmatlab/rollflow/internal/training"
	"github.com/openmatlab/rollflow/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rollflow-api",
		Short: "RollFlow BJJ training backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("provider-audience", defaults.GetString("provider.audience"), "Identity provider token audience")
	cmd.PersistentFlags().String("provider-jwks-url", defaults.GetString("provider.jwks_url"), "Identity provider JWKS URL")
	cmd.PersistentFlags().StringSlice("provider-issuers", defaults.GetStringSlice("provider.issuers"), "Trusted identity provider issuers")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("cache-path", defaults.GetString("cache.path"), "Fallback cache database path")
	cmd.PersistentFlags().String("media-dir", defaults.GetString("media.dir"), "Media upload directory")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("token.ttl_minutes"), "Backend token TTL in minutes")
	cmd.PersistentFlags().Int("replay-interval-s", defaults.GetInt("sharing.replay_interval_s"), "Fallback replay interval in seconds")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Backend signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "provider.audience", "provider-audience")
	bindFlag(cmd, "provider.jwks_url", "provider-jwks-url")
	bindFlag(cmd, "provider.issuers", "provider-issuers")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "cache.path", "cache-path")
	bindFlag(cmd, "media.dir", "media-dir")
	bindFlag(cmd, "token.ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "sharing.replay_interval_s", "replay-interval-s")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
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

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	fallbackStore, err := cache.Open(appConfig.CachePath, logger)
	if err != nil {
		return err
	}
	defer fallbackStore.Close()

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "rollflow-auth",
		Audience:      "rollflow-api",
		TokenTTL:      time.Duration(appConfig.TokenTTLMinutes) * time.Minute,
	})

	providerVerifier, err := auth.NewProviderVerifier(auth.ProviderVerifierConfig{
		Audience:       appConfig.ProviderAudience,
		JWKSURL:        appConfig.ProviderJWKSURL,
		AllowedIssuers: appConfig.ProviderIssuers,
	})
	if err != nil {
		return err
	}

	usersService, err := users.NewService(users.ServiceConfig{Database: db, Clock: time.Now})
	if err != nil {
		return err
	}
	techniquesService, err := techniques.NewService(techniques.ServiceConfig{Database: db, Clock: time.Now, Logger: logger})
	if err != nil {
		return err
	}
	flowsService, err := flows.NewService(flows.ServiceConfig{Database: db, Clock: time.Now, Logger: logger})
	if err != nil {
		return err
	}
	trainingService, err := training.NewService(training.ServiceConfig{Database: db, Clock: time.Now, Logger: logger})
	if err != nil {
		return err
	}
	groupsService, err := groups.NewService(groups.ServiceConfig{Database: db, Clock: time.Now, Logger: logger})
	if err != nil {
		return err
	}
	sharingService, err := sharing.NewService(sharing.ServiceConfig{
		Database: db,
		Fallback: fallbackStore,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	mediaStore, err := media.NewStore(media.StoreConfig{
		Directory: appConfig.MediaDir,
		BaseURL:   appConfig.MediaBaseURL,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		ProviderVerifier:  providerVerifier,
		TokenManager:      tokenManager,
		UsersService:      usersService,
		TechniquesService: techniquesService,
		FlowsService:      flowsService,
		TrainingService:   trainingService,
		GroupsService:     groupsService,
		SharingService:    sharingService,
		MediaStore:        mediaStore,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	replayer := sharing.NewReplayer(db, fallbackStore, time.Duration(appConfig.ReplayIntervalS)*time.Second, logger)
	go replayer.Run(signalCtx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
