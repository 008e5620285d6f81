package main

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleettrack/relay/impl"
	"fleettrack/relay/internal"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/ksuid"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/exp/slog"
)

type Env struct {
	Port             int                   `env:"PORT,default=4000"`
	InstanceID       string                `env:"INSTANCE_ID"`
	ServiceDomain    string                `env:"SERVICE_DOMAIN"`
	RedisURL         string                `env:"REDIS_URL"`
	CORSOrigins      []string              `env:"CORS_ORIGINS,default=http://localhost:3000"`
	PublisherKey     envconfig.Base64Bytes `env:"PUBLISHER_PUBLIC_KEY"`
	StrictPayloads   bool                  `env:"STRICT_PAYLOADS,default=false"`
	MaxMessageBytes  int64                 `env:"MAX_MESSAGE_BYTES,default=32768"`
	PorkbunAPIKey    string                `env:"PORKBUN_API_KEY"`
	PorkbunAPISecret string                `env:"PORKBUN_API_SECRET"`
}

func doMain(logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to load .env", slog.String("error", err.Error()))
	}

	env := Env{}
	if err := envconfig.Process(ctx, &env); err != nil {
		return err
	}

	if env.InstanceID == "" {
		env.InstanceID = ksuid.New().String()
	}

	logger = logger.With(slog.String("instance", env.InstanceID))

	var rdb *redis.Client
	if env.RedisURL != "" {
		rOpts, err := redis.ParseURL(env.RedisURL)
		if err != nil {
			return err
		}

		rdb = redis.NewClient(rOpts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}

		//goland:noinspection GoUnhandledErrorResult
		defer rdb.Close()
	} else {
		logger.Info("no REDIS_URL, running standalone")
	}

	router, relay, err := internal.Main(logger, ctx, internal.Options{
		InstanceID:      env.InstanceID,
		Redis:           rdb,
		PublisherKey:    ed25519.PublicKey(env.PublisherKey),
		CORSOrigins:     env.CORSOrigins,
		StrictPayloads:  env.StrictPayloads,
		MaxMessageBytes: env.MaxMessageBytes,
	})
	if err != nil {
		return err
	}

	var tlsConfig *tls.Config
	if env.ServiceDomain != "" {
		if rdb == nil {
			return errors.New("SERVICE_DOMAIN requires REDIS_URL for certificate storage")
		}

		tlsConfig, err = impl.TLSConfig(env.ServiceDomain, env.PorkbunAPIKey, env.PorkbunAPISecret, rdb)
		if err != nil {
			return err
		}
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%v", env.Port),
		Handler:           router,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ec := make(chan error, 1)
	go func() {
		logger.Info("starting...", slog.String("address", server.Addr))

		var err error
		if server.TLSConfig != nil {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			ec <- err
		}
	}()

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sc:
		logger.Warn("shutdown signal", slog.String("signal", sig.String()))
	case err := <-ec:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()

	relay.Close()
	return server.Shutdown(shutdownCtx)
}

func main() {
	handler := slog.HandlerOptions{AddSource: true, Level: slog.LevelDebug}
	logger := slog.New(handler.NewTextHandler(os.Stdout))

	if err := doMain(logger); err != nil {
		logger.Error("failed to start", err)
		os.Exit(1)
	}
}
