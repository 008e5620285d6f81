package internal

import (
	"errors"

	"github.com/goccy/go-json"
)

const (
	EventUpdateLocation = "updateLocation"
	EventLocationUpdate = "locationUpdate"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
	ErrMalformedFrame   = errors.New("malformed frame")
)

// Subscriber is anything the relay can fan a frame out to.
type Subscriber interface {
	ID() string
	Deliver(frame []byte) error
}

// Frame is one named event exchanged over a socket. Data is kept as raw
// bytes so payloads pass through the relay untouched.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// LocationUpdate is the payload shape dashboards expect. The relay itself
// never decodes it; see PayloadFilter.
type LocationUpdate struct {
	UserID string  `json:"userId" validate:"required"`
	Name   string  `json:"name,omitempty"`
	Lat    float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng    float64 `json:"lng" validate:"gte=-180,lte=180"`
}

type EventType string

const (
	EventTypeBroadcast EventType = "broadcast"
	EventTypeDrop      EventType = "drop"
)

// Event travels between relay instances over redis.
type Event struct {
	Type    EventType `json:"type"`
	ID      string    `json:"id,omitempty"`
	Origin  string    `json:"origin"`
	Payload string    `json:"payload,omitempty"`
}
