package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/webharbour/internal/authkit"
	"github.com/tyemirov/webharbour/internal/web"
	"github.com/tyemirov/webharbour/pkg/sessionvalidator"
	"go.uber.org/zap"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "webharbour",
		Short:   "Marketplace identity service with password login, JWT access tokens, and single-use refresh tokens",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	defaults := authkit.DefaultPasswordHashParams()
	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("jwt_signing_key", "", "HS256 signing secret for access JWT")
	rootCmd.Flags().String("jwt_issuer", defaultIssuer, "Issuer claim stamped into access tokens")
	rootCmd.Flags().Duration("access_ttl", 15*time.Minute, "Access token TTL")
	rootCmd.Flags().Duration("refresh_ttl", 7*24*time.Hour, "Refresh token TTL")
	rootCmd.Flags().Uint32("password_hash_time", defaults.Time, "argon2id iterations")
	rootCmd.Flags().Uint32("password_hash_memory_kib", defaults.MemoryKiB, "argon2id memory in KiB")
	rootCmd.Flags().Uint8("password_hash_threads", defaults.Threads, "argon2id parallelism")
	rootCmd.Flags().String("database_url", "", "Database URL (postgres:// or sqlite://; leave empty for in-memory stores)")
	rootCmd.Flags().String("database_engine", engineGORM, "Persistence engine for database_url: gorm or pgx")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled (required if enable_cors is true)")
	rootCmd.Flags().String("refresh_purge_schedule", "", "Cron schedule for purging spent refresh tokens; empty disables purging")
	rootCmd.Flags().Duration("refresh_purge_retention", 24*time.Hour, "How long spent refresh tokens are kept before purging")

	for _, name := range []string{
		"listen_addr",
		"jwt_signing_key",
		"jwt_issuer",
		"access_ttl",
		"refresh_ttl",
		"password_hash_time",
		"password_hash_memory_kib",
		"password_hash_threads",
		"database_url",
		"database_engine",
		"enable_cors",
		"cors_allowed_origins",
		"refresh_purge_schedule",
		"refresh_purge_retention",
	} {
		_ = viper.BindPFlag(name, rootCmd.Flags().Lookup(name))
	}

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	defaultIssuer = "webharbour"

	configCodeMissingJWTSigningKey    = "config.missing_jwt_signing_key"
	configCodeInvalidAccessTTL        = "config.invalid_access_ttl"
	configCodeInvalidRefreshTTL       = "config.invalid_refresh_ttl"
	configCodeInvalidPasswordHash     = "config.invalid_password_hash"
	configCodeInvalidDatabaseEngine   = "config.invalid_database_engine"
	configCodeInvalidCORS             = "config.invalid_cors"
	configCodeUninitializedServerConf = "config.uninitialized_server_config"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadServerConfig reads and validates the core configuration from viper.
func LoadServerConfig() (authkit.ServerConfig, error) {
	jwtSigningKey := viper.GetString("jwt_signing_key")
	if jwtSigningKey == "" {
		return authkit.ServerConfig{}, configError(configCodeMissingJWTSigningKey, "jwt_signing_key must be provided")
	}

	accessTTL := viper.GetDuration("access_ttl")
	if accessTTL <= 0 {
		return authkit.ServerConfig{}, configError(configCodeInvalidAccessTTL, "access_ttl must be greater than zero")
	}

	refreshTTL := viper.GetDuration("refresh_ttl")
	if refreshTTL <= 0 {
		return authkit.ServerConfig{}, configError(configCodeInvalidRefreshTTL, "refresh_ttl must be greater than zero")
	}

	issuer := strings.TrimSpace(viper.GetString("jwt_issuer"))
	if issuer == "" {
		issuer = defaultIssuer
	}

	hashing := authkit.DefaultPasswordHashParams()
	if viper.IsSet("password_hash_time") {
		hashing.Time = viper.GetUint32("password_hash_time")
	}
	if viper.IsSet("password_hash_memory_kib") {
		hashing.MemoryKiB = viper.GetUint32("password_hash_memory_kib")
	}
	if viper.IsSet("password_hash_threads") {
		threads := viper.GetUint("password_hash_threads")
		if threads > 255 {
			return authkit.ServerConfig{}, configError(configCodeInvalidPasswordHash, "password_hash_threads must be at most 255")
		}
		hashing.Threads = uint8(threads)
	}
	if _, hasherErr := authkit.NewPasswordHasher(hashing); hasherErr != nil {
		return authkit.ServerConfig{}, configError(configCodeInvalidPasswordHash, hasherErr.Error())
	}

	return authkit.ServerConfig{
		AppJWTSigningKey: []byte(jwtSigningKey),
		AppJWTIssuer:     issuer,
		AccessTTL:        accessTTL,
		RefreshTTL:       refreshTTL,
		PasswordHashing:  hashing,
	}, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(authkit.ServerConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	listenAddr := viper.GetString("listen_addr")

	stores, storesErr := openStores(commandContext, viper.GetString("database_engine"), viper.GetString("database_url"), logger)
	if storesErr != nil {
		return storesErr
	}
	defer stores.close()

	metricsRecorder := authkit.NewCounterMetrics()
	app, buildErr := buildApplication(serverConfig, stores, applicationOptions{
		EnableCORS:         viper.GetBool("enable_cors"),
		CORSAllowedOrigins: viper.GetStringSlice("cors_allowed_origins"),
		Metrics:            metricsRecorder,
		Logger:             logger,
	})
	if buildErr != nil {
		return buildErr
	}

	purgeSchedule := strings.TrimSpace(viper.GetString("refresh_purge_schedule"))
	if purgeSchedule != "" {
		purger, purgerErr := authkit.NewRefreshTokenPurger(app.Service.Ledger(), purgeSchedule, viper.GetDuration("refresh_purge_retention"), logger)
		if purgerErr != nil {
			return purgerErr
		}
		purger.Start()
		defer purger.Stop()
		logger.Info("refresh token purge scheduled", zap.String("schedule", purgeSchedule))
	}

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(stopSignals)
		select {
		case <-stopSignals:
		case <-shutdownCtx.Done():
			return
		}
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", listenAddr), zap.String("store", stores.label))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	logger.Info("server stopped", zap.Any("metrics", metricsRecorder.Snapshot()))
	return nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}

type applicationOptions struct {
	EnableCORS         bool
	CORSAllowedOrigins []string
	Clock              authkit.Clock
	Metrics            authkit.MetricsRecorder
	Logger             *zap.Logger
}

type application struct {
	Router  *gin.Engine
	Service *authkit.SessionService
}

// buildApplication wires the session service, validator, and routes onto a fresh gin engine.
func buildApplication(serverConfig authkit.ServerConfig, stores *storeBundle, options applicationOptions) (*application, error) {
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if options.EnableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, options.CORSAllowedOrigins)
		if corsErr != nil {
			return nil, fmt.Errorf("%s: %w", configCodeInvalidCORS, corsErr)
		}
		router.Use(corsMiddleware)
	}

	service, serviceErr := authkit.NewSessionService(serverConfig, authkit.SessionDependencies{
		Users:         stores.users,
		RefreshTokens: stores.refreshTokens,
		Clock:         options.Clock,
		Metrics:       options.Metrics,
		Logger:        logger,
	})
	if serviceErr != nil {
		return nil, serviceErr
	}

	var validatorClock sessionvalidator.Clock
	if options.Clock != nil {
		validatorClock = options.Clock
	}
	validator, validatorErr := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: serverConfig.AppJWTSigningKey,
		Issuer:     serverConfig.AppJWTIssuer,
		Clock:      validatorClock,
	})
	if validatorErr != nil {
		return nil, validatorErr
	}

	now := time.Now
	if options.Clock != nil {
		now = options.Clock.Now
	}
	router.GET("/health", web.HandleHealth(now))
	authkit.MountAuthRoutes(router, service, validator, logger)
	web.MountAccessGates(router.Group("/api"), validator, logger, web.DefaultAccessGates())
	router.NoRoute(web.HandleNotFound)

	return &application{Router: router, Service: service}, nil
}
