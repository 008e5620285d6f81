package internal

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/exp/slog"
)

type Options struct {
	InstanceID      string
	Redis           *redis.Client
	PublisherKey    ed25519.PublicKey
	CORSOrigins     []string
	StrictPayloads  bool
	MaxMessageBytes int64
}

// Main wires the relay and its routes. Without redis the relay runs
// standalone; without a publisher key the signed API is not mounted.
func Main(logger *slog.Logger, ctx context.Context, opts Options) (chi.Router, *Relay, error) {
	metrics := NewMetrics()
	relayOpts := []Option{WithMetrics(metrics)}

	if opts.StrictPayloads {
		relayOpts = append(relayOpts, WithFilter(NewLocationFilter()))
	}

	var (
		presence Presence
		remote   RemoteDropper
		cluster  *RedisCluster
	)

	if opts.Redis != nil {
		cluster = NewRedisCluster(logger, opts.Redis, opts.InstanceID, metrics)
		presence = cluster
		remote = cluster
		relayOpts = append(relayOpts, WithCluster(cluster))
	}

	relay := NewRelay(logger, NewRegistry(), relayOpts...)

	if cluster != nil {
		sub, err := cluster.Subscribe(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("subscribe cluster events: %w", err)
		}

		go SubscribeEvents(ctx, logger, relay, sub, opts.InstanceID)
	}

	join := JoinRoute(relay, logger, presence, JoinOptions{
		OriginPatterns:  OriginPatterns(opts.CORSOrigins),
		MaxMessageBytes: opts.MaxMessageBytes,
	})

	router := chi.NewRouter()
	router.Use(mid(opts.InstanceID))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", AuthHeader},
	}))

	router.Get("/health", health())
	router.Get("/metrics", metrics.Handler().ServeHTTP)
	router.Get("/connections", ConnectionsHandler(relay, opts.InstanceID))
	router.Get("/", join)
	router.Get("/ws", join)

	if len(opts.PublisherKey) > 0 {
		if len(opts.PublisherKey) != ed25519.PublicKeySize {
			return nil, nil, fmt.Errorf("publisher key must be %v bytes, got %v", ed25519.PublicKeySize, len(opts.PublisherKey))
		}

		verifier := NewRequestVerifier(opts.PublisherKey)
		maxBytes := opts.MaxMessageBytes
		if maxBytes <= 0 {
			maxBytes = 32 << 10
		}

		router.Post("/publish", PublishHandler(relay, logger, verifier, maxBytes))
		router.Delete("/connections/{id}", DropHandler(relay, remote, verifier))
	}

	return router, relay, nil
}

// OriginPatterns turns CORS origins into the host patterns the websocket
// handshake checks against.
func OriginPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, origin := range origins {
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			patterns = append(patterns, origin)
			continue
		}

		patterns = append(patterns, u.Host)
	}

	return patterns
}

func health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

func mid(instanceID string) func(http.Handler) http.Handler {
	return func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Server", "fleet-relay")
			w.Header().Set("Instance-ID", instanceID)
			handler.ServeHTTP(w, r)
		})
	}
}
