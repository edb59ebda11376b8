package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/quotia/backend/internal/auth"
	"github.com/quotia/backend/internal/config"
	"github.com/quotia/backend/internal/database"
	"github.com/quotia/backend/internal/devicetokens"
	"github.com/quotia/backend/internal/logging"
	"github.com/quotia/backend/internal/notify"
	"github.com/quotia/backend/internal/quotations"
	"github.com/quotia/backend/internal/quotations/gemini"
	"github.com/quotia/backend/internal/report"
	"github.com/quotia/backend/internal/server"
	"github.com/quotia/backend/internal/users"
)

var (
	cfgFile string
)

func main() {
	// A local .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "quotia-api",
		Short: "Quotia quotation backend service",
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
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite or postgres)")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "Database DSN or file path")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("token.ttl_minutes"), "Access token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log encoding (json or console)")
	cmd.PersistentFlags().String("signing-secret", "", "JWT signing secret (overrides env)")
	cmd.PersistentFlags().String("gemini-model", defaults.GetString("gemini.model"), "Gemini model name")
	cmd.PersistentFlags().String("firebase-project-id", defaults.GetString("firebase.project_id"), "Firebase project ID for push delivery")
	cmd.PersistentFlags().String("firebase-credentials-file", defaults.GetString("firebase.credentials_file"), "Firebase service account credentials file")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "token.ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "gemini.model", "gemini-model")
	bindFlag(cmd, "firebase.project_id", "firebase-project-id")
	bindFlag(cmd, "firebase.credentials_file", "firebase-credentials-file")
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

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(appConfig.DatabaseDriver, appConfig.DatabaseDSN, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.JWTSigningSecret),
		Issuer:        "quotia-auth",
		Audience:      "quotia-api",
		TokenTTL:      appConfig.TokenTTL,
	})

	usersService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		Hasher:     auth.NewPasswordHasher(),
		IDProvider: users.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	deviceTokensService, err := devicetokens.NewService(devicetokens.ServiceConfig{
		Database: db,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	generator, err := gemini.NewGenerator(ctx, gemini.GeneratorConfig{
		APIKey: appConfig.GeminiAPIKey,
		Model:  appConfig.GeminiModel,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer generator.Close() //nolint:errcheck

	var notifier quotations.Notifier
	if appConfig.FirebaseProjectID != "" {
		sender, err := notify.NewFCMSender(ctx, notify.FCMSenderConfig{
			ProjectID:       appConfig.FirebaseProjectID,
			CredentialsFile: appConfig.FirebaseCredentials,
		})
		if err != nil {
			return err
		}
		dispatcher, err := notify.NewDispatcher(notify.DispatcherConfig{
			Registry: deviceTokensService,
			Sender:   sender,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		notifier = dispatcher
	} else {
		logger.Warn("firebase project not configured, push notifications disabled")
	}

	quotationsService, err := quotations.NewService(quotations.ServiceConfig{
		Database:         db,
		Generator:        generator,
		Renderer:         report.NewRenderer(logger),
		Notifier:         notifier,
		IDProvider:       quotations.NewUUIDProvider(),
		Logger:           logger,
		DocumentMIMEType: report.MIMEType,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager:        tokenManager,
		UsersService:        usersService,
		QuotationsService:   quotationsService,
		DeviceTokensService: deviceTokensService,
		Logger:              logger,
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
