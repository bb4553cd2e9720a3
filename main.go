package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collabnote/config"
	"collabnote/config/database"
	"collabnote/internal/document/repository"
	"collabnote/pkg/logger"
	"collabnote/router"
	"collabnote/socket"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "collabnote",
		Short: "Realtime collaboration server for shared documents",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
		SilenceUsage: true,
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
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL")
	cmd.PersistentFlags().String("socket-path", defaults.GetString("socket.path"), "WebSocket endpoint path")
	cmd.PersistentFlags().Duration("typing-ttl", defaults.GetDuration("socket.typing_ttl"), "How long a typing indicator lives without a refresh")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.url", "database-url")
	bindFlag(cmd, "socket.path", "socket-path")
	bindFlag(cmd, "socket.typing_ttl", "typing-ttl")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	// A missing .env is fine, the OS environment is used as is.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
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

	logger.Init(appConfig.LogLevel)
	defer logger.Sync()

	db, err := database.Connect(ctx, appConfig.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repository.NewDocumentRepository(db).EnsureSchema(ctx); err != nil {
		return err
	}

	hub := socket.NewHub(socket.Options{
		TypingTTL:       appConfig.Socket.TypingTTL,
		SendBuffer:      appConfig.Socket.SendBuffer,
		PingInterval:    appConfig.Socket.PingInterval,
		PongWait:        appConfig.Socket.PongWait,
		WriteWait:       appConfig.Socket.WriteWait,
		MaxMessageBytes: appConfig.Socket.MaxMessageBytes,
		AllowedOrigins:  appConfig.AllowedOrigins,
		Registerer:      prometheus.DefaultRegisterer,
	})

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: router.Setup(db, hub, appConfig, prometheus.DefaultGatherer),
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("socket_path", appConfig.Socket.Path))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		logger.Log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Hijacked websocket connections are not tracked by the http server.
		hub.Shutdown()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
