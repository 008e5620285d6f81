package internal

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/segmentio/ksuid"
	"golang.org/x/exp/slog"
	"nhooyr.io/websocket"
)

const pingInterval = 45 * time.Second

type JoinOptions struct {
	OriginPatterns  []string
	MaxMessageBytes int64
}

// JoinRoute upgrades the request and keeps the socket in the relay's live
// set until either side goes away.
func JoinRoute(relay *Relay, logger *slog.Logger, presence Presence, opts JoinOptions) http.HandlerFunc {
	if presence == nil {
		presence = standalonePresence{}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		kid, err := ksuid.NewRandom()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		id := kid.String()
		log := logger.With(slog.String("id", id))

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Debug("failed to accept", slog.String("error", err.Error()))
			return
		}

		if opts.MaxMessageBytes > 0 {
			conn.SetReadLimit(opts.MaxMessageBytes)
		}

		if err := presence.Join(ctx, id); err != nil {
			log.Error("failed to register presence", err)
			_ = conn.Close(websocket.StatusInternalError, "unavailable")
			return
		}

		connection := NewConnection(id, conn)
		relay.OnConnect(connection)

		defer func() {
			relay.OnDisconnect(connection)
			connection.Drop()

			if err := presence.Leave(context.Background(), id); err != nil {
				log.Error("failed to cleanup", err)
			}
		}()

		go func() {
			defer cancel()
			for {
				_, b, err := conn.Read(ctx)
				if err != nil {
					return
				}

				if err := presence.Received(ctx, id); err != nil {
					log.Error("failed to update received messages stats", err)
				}

				relay.HandleFrame(ctx, connection, b)
			}
		}()

		go func() {
			ticker := time.NewTicker(pingInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := conn.Ping(ctx); err != nil {
						log.Debug("failed to ping", slog.String("error", err.Error()))
						_ = conn.Close(websocket.StatusGoingAway, "hello?")
						cancel()
						return
					}

					if err := presence.Refresh(ctx, id); err != nil {
						log.Error("failed to extend presence", err)
					}
				}
			}
		}()

		err = connection.WriteLoop(ctx, func() {
			if err := presence.Sent(ctx, id); err != nil {
				log.Error("failed to update sent messages stats", err)
			}
		})

		switch {
		case errors.Is(err, ErrConnectionClosed):
			_ = conn.Close(websocket.StatusNormalClosure, "dropped")
		case errors.Is(err, context.Canceled):
			_ = conn.Close(websocket.StatusNormalClosure, "bye")
		default:
			log.Debug("failed to write message", slog.String("error", err.Error()))
			_ = conn.Close(websocket.StatusInternalError, "write failed")
		}
	}
}
