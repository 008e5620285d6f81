package internal

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"golang.org/x/exp/slog"
)

// RemoteDropper closes connections owned by other instances.
type RemoteDropper interface {
	PublishDrop(ctx context.Context, id string) (bool, error)
}

func PublishHandler(relay *Relay, logger *slog.Logger, verifier RequestVerifier, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		publisher := verifier(r)
		if publisher == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
		if err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}

		if !json.Valid(b) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		logger.Debug("location published", slog.String("publisher", publisher))
		relay.Publish(r.Context(), b)

		w.WriteHeader(http.StatusAccepted)
	}
}

func DropHandler(relay *Relay, remote RemoteDropper, verifier RequestVerifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if verifier(r) == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		id := chi.URLParam(r, "id")
		if relay.Drop(id) {
			w.WriteHeader(http.StatusOK)
			return
		}

		if remote == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		found, err := remote.PublishDrop(r.Context(), id)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		if !found {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.WriteHeader(http.StatusAccepted)
	}
}

func ConnectionsHandler(relay *Relay, instanceID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := json.Marshal(map[string]any{
			"instance":    instanceID,
			"connections": relay.Len(),
		})
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(b)
	}
}

// Subscribe listens on the shared broadcast channel and this instance's own
// channel, returning once redis has confirmed both.
func (c *RedisCluster) Subscribe(ctx context.Context) (*redis.PubSub, error) {
	channels := []string{BroadcastChannel, c.instanceID}
	sub := c.rdb.Subscribe(ctx, channels...)

	for range channels {
		if _, err := sub.Receive(ctx); err != nil {
			_ = sub.Close()
			return nil, err
		}
	}

	return sub, nil
}

func SubscribeEvents(ctx context.Context, logger *slog.Logger, relay *Relay, sub *redis.PubSub, instanceID string) {
	ch := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			_ = sub.Close()
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			event := Event{}
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.Error("failed to unmarshal cluster event", err)
				continue
			}

			HandleEvent(logger, relay, instanceID, event)
		}
	}
}

// HandleEvent applies one event received from another instance.
func HandleEvent(logger *slog.Logger, relay *Relay, instanceID string, event Event) {
	if event.Origin == instanceID && event.Type == EventTypeBroadcast {
		return
	}

	relay.Metrics().ClusterEvents.WithLabelValues(string(event.Type), "in").Inc()

	switch event.Type {
	case EventTypeBroadcast:
		b, err := base64.RawURLEncoding.DecodeString(event.Payload)
		if err != nil {
			logger.Warn("failed to decode payload", slog.String("origin", event.Origin))
			return
		}

		relay.Broadcast(b)
	case EventTypeDrop:
		if !relay.Drop(event.ID) {
			logger.Warn("no such connection", slog.String("connection", event.ID))
		}
	default:
		logger.Warn("unknown event type", slog.String("event", string(event.Type)))
	}
}
