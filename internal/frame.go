package internal

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

var (
	locationUpdatePrefix = []byte(`{"event":"` + EventLocationUpdate + `","data":`)
	frameSuffix          = []byte(`}`)
)

// DecodeFrame parses one inbound socket message.
func DecodeFrame(raw []byte) (Frame, error) {
	frame := Frame{}
	if err := json.Unmarshal(raw, &frame); err != nil {
		return frame, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	if frame.Event == "" {
		return frame, fmt.Errorf("%w: missing event name", ErrMalformedFrame)
	}

	return frame, nil
}

// EncodeLocationUpdate wraps payload in a locationUpdate frame. The payload
// bytes are spliced in as-is so subscribers see exactly what was sent.
func EncodeLocationUpdate(payload []byte) []byte {
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = []byte("null")
	}

	b := make([]byte, 0, len(locationUpdatePrefix)+len(payload)+len(frameSuffix))
	b = append(b, locationUpdatePrefix...)
	b = append(b, payload...)
	return append(b, frameSuffix...)
}

// EncodeFrame marshals an arbitrary outbound frame.
func EncodeFrame(event string, data any) ([]byte, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return json.Marshal(Frame{Event: event, Data: b})
}
