package internal

import (
	"context"

	"golang.org/x/exp/slog"
)

// Cluster carries relay traffic to the other instances. A relay without a
// cluster only reaches its own sockets.
type Cluster interface {
	PublishBroadcast(ctx context.Context, payload []byte) error
}

// PayloadFilter may reject a location update before it is fanned out.
type PayloadFilter func(payload []byte) error

type Option func(*Relay)

func WithCluster(cluster Cluster) Option {
	return func(r *Relay) { r.cluster = cluster }
}

func WithFilter(filter PayloadFilter) Option {
	return func(r *Relay) { r.filter = filter }
}

func WithMetrics(metrics *Metrics) Option {
	return func(r *Relay) { r.metrics = metrics }
}

// Relay fans every location update out to every live subscriber, the
// sender included.
type Relay struct {
	logger   *slog.Logger
	registry *Registry
	metrics  *Metrics
	cluster  Cluster
	filter   PayloadFilter
}

func NewRelay(logger *slog.Logger, registry *Registry, opts ...Option) *Relay {
	r := &Relay{
		logger:   logger,
		registry: registry,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.metrics == nil {
		r.metrics = NewMetrics()
	}

	return r
}

func (r *Relay) Metrics() *Metrics {
	return r.metrics
}

func (r *Relay) Len() int {
	return r.registry.Len()
}

func (r *Relay) OnConnect(sub Subscriber) {
	r.registry.Add(sub)
	r.metrics.Connections.Inc()
	r.metrics.ConnectionsTotal.Inc()
	r.logger.Info("client connected", slog.String("id", sub.ID()), slog.Int("clients", r.registry.Len()))
}

// OnDisconnect is safe to call more than once for the same subscriber.
func (r *Relay) OnDisconnect(sub Subscriber) {
	if !r.registry.Remove(sub) {
		return
	}

	r.metrics.Connections.Dec()
	r.logger.Info("client disconnected", slog.String("id", sub.ID()), slog.Int("clients", r.registry.Len()))
}

// HandleFrame routes one raw socket message from sender.
func (r *Relay) HandleFrame(ctx context.Context, sender Subscriber, raw []byte) {
	frame, err := DecodeFrame(raw)
	if err != nil {
		r.logger.Debug("dropping frame", slog.String("id", sender.ID()), slog.String("error", err.Error()))
		return
	}

	switch frame.Event {
	case EventUpdateLocation:
		r.OnMessage(ctx, sender, frame.Data)
	default:
		r.logger.Debug("ignoring event", slog.String("id", sender.ID()), slog.String("event", frame.Event))
	}
}

// OnMessage forwards payload unmodified to the live set and the cluster.
func (r *Relay) OnMessage(ctx context.Context, sender Subscriber, payload []byte) {
	r.metrics.Received.Inc()
	r.logger.Debug("location received", slog.String("id", sender.ID()), slog.String("payload", string(payload)))

	r.Publish(ctx, payload)
}

// Publish delivers a server originated update the same way a client one is.
func (r *Relay) Publish(ctx context.Context, payload []byte) {
	if r.filter != nil {
		if err := r.filter(payload); err != nil {
			r.metrics.Rejected.Inc()
			r.logger.Debug("location rejected", slog.String("error", err.Error()))
			return
		}
	}

	r.Broadcast(payload)

	if r.cluster == nil {
		return
	}

	if err := r.cluster.PublishBroadcast(ctx, payload); err != nil {
		r.logger.Error("failed to publish to cluster", err)
	}
}

// Broadcast delivers payload to every local subscriber and returns how many
// accepted it. One subscriber failing never stops the others.
func (r *Relay) Broadcast(payload []byte) int {
	frame := EncodeLocationUpdate(payload)

	delivered := 0
	for _, sub := range r.registry.Snapshot() {
		if err := sub.Deliver(frame); err != nil {
			r.metrics.DeliveryFailures.Inc()
			r.logger.Debug("delivery failed", slog.String("id", sub.ID()), slog.String("error", err.Error()))
			continue
		}

		delivered++
	}

	r.metrics.Deliveries.Add(float64(delivered))
	return delivered
}

// Drop closes the local connection with the given id.
func (r *Relay) Drop(id string) bool {
	sub, ok := r.registry.Get(id)
	if !ok {
		return false
	}

	if d, ok := sub.(interface{ Drop() }); ok {
		d.Drop()
	}

	r.OnDisconnect(sub)
	return true
}

// Close drops every local connection.
func (r *Relay) Close() {
	for _, sub := range r.registry.Snapshot() {
		r.Drop(sub.ID())
	}
}
