// Command fleetsim drives fake vehicles against a relay and watches what it
// broadcasts.
package main

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	mrand "math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleettrack/relay/internal"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"
	"golang.org/x/exp/slog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func main() {
	handler := slog.HandlerOptions{Level: slog.LevelInfo}
	logger := slog.New(handler.NewTextHandler(os.Stderr))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := &cli.Command{
		Name:  "fleetsim",
		Usage: "simulate drivers and dashboards against a fleet relay",
		Commands: []*cli.Command{
			{
				Name:   "drive",
				Usage:  "stream a random walk of positions for one driver",
				Flags:  append(positionFlags(), socketFlag(), &cli.DurationFlag{Name: "interval", Value: time.Second}, &cli.FloatFlag{Name: "step", Value: 0.0005, Usage: "max degrees moved per tick"}),
				Action: drive(logger),
			},
			{
				Name:   "watch",
				Usage:  "print every locationUpdate the relay broadcasts",
				Flags:  []cli.Flag{socketFlag()},
				Action: watch(logger),
			},
			{
				Name:  "publish",
				Usage: "inject one position through the signed publish API",
				Flags: append(positionFlags(),
					&cli.StringFlag{Name: "api", Value: "http://localhost:4000", Sources: cli.EnvVars("FLEET_RELAY_API")},
					&cli.StringFlag{Name: "key", Usage: "base64 ed25519 private key", Sources: cli.EnvVars("FLEET_PUBLISHER_KEY"), Required: true},
					&cli.StringFlag{Name: "publisher", Value: "fleetsim"},
				),
				Action: publish,
			},
			{
				Name:   "keygen",
				Usage:  "print a publisher key pair",
				Action: keygen,
			},
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		logger.Error("fleetsim failed", err)
		os.Exit(1)
	}
}

func socketFlag() cli.Flag {
	return &cli.StringFlag{Name: "url", Value: "ws://localhost:4000/ws", Sources: cli.EnvVars("FLEET_RELAY_URL")}
}

func positionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "user", Value: "D1"},
		&cli.StringFlag{Name: "name"},
		&cli.FloatFlag{Name: "lat", Value: 12.9716},
		&cli.FloatFlag{Name: "lng", Value: 77.5946},
	}
}

func position(cmd *cli.Command) internal.LocationUpdate {
	return internal.LocationUpdate{
		UserID: cmd.String("user"),
		Name:   cmd.String("name"),
		Lat:    cmd.Float("lat"),
		Lng:    cmd.Float("lng"),
	}
}

func drive(logger *slog.Logger) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		conn, _, err := websocket.Dial(ctx, cmd.String("url"), nil)
		if err != nil {
			return err
		}

		//goland:noinspection GoUnhandledErrorResult
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		// echoes of our own updates are not interesting here
		go func() {
			for {
				if _, _, err := conn.Read(ctx); err != nil {
					return
				}
			}
		}()

		update := position(cmd)
		step := cmd.Float("step")
		ticker := time.NewTicker(cmd.Duration("interval"))
		defer ticker.Stop()

		for {
			frame := internal.Frame{Event: internal.EventUpdateLocation}
			if frame.Data, err = json.Marshal(update); err != nil {
				return err
			}

			if err := wsjson.Write(ctx, conn, frame); err != nil {
				return err
			}

			logger.Debug("sent", slog.Float64("lat", update.Lat), slog.Float64("lng", update.Lng))

			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				update.Lat += (mrand.Float64()*2 - 1) * step
				update.Lng += (mrand.Float64()*2 - 1) * step
			}
		}
	}
}

func watch(logger *slog.Logger) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		conn, _, err := websocket.Dial(ctx, cmd.String("url"), nil)
		if err != nil {
			return err
		}

		//goland:noinspection GoUnhandledErrorResult
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		for {
			frame := internal.Frame{}
			if err := wsjson.Read(ctx, conn, &frame); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}

			if frame.Event != internal.EventLocationUpdate {
				logger.Debug("skipping event", slog.String("event", frame.Event))
				continue
			}

			fmt.Println(string(frame.Data))
		}
	}
}

func publish(ctx context.Context, cmd *cli.Command) error {
	key, err := base64.StdEncoding.DecodeString(cmd.String("key"))
	if err != nil {
		return fmt.Errorf("decode key: %w", err)
	}

	if len(key) != ed25519.PrivateKeySize {
		return fmt.Errorf("key must be %v bytes, got %v", ed25519.PrivateKeySize, len(key))
	}

	b, err := json.Marshal(position(cmd))
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cmd.String("api")+"/publish", bytes.NewReader(b))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	signer := internal.NewRequestSigner(ed25519.PrivateKey(key))
	if err := signer(req, cmd.String("publisher")); err != nil {
		return err
	}

	client := http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}

	//goland:noinspection GoUnhandledErrorResult
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("relay answered %v", resp.Status)
	}

	return nil
}

func keygen(ctx context.Context, cmd *cli.Command) error {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}

	fmt.Printf("PUBLISHER_PUBLIC_KEY=%v\n", base64.StdEncoding.EncodeToString(publicKey))
	fmt.Printf("FLEET_PUBLISHER_KEY=%v\n", base64.StdEncoding.EncodeToString(privateKey))
	return nil
}
