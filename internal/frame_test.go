package internal

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		event string
		data  string
		err   error
	}{
		{"location", `{"event":"updateLocation","data":{"lat":1,"lng":2}}`, EventUpdateLocation, `{"lat":1,"lng":2}`, nil},
		{"keeps whitespace", `{"event":"updateLocation","data":{ "lat" : 1 }}`, EventUpdateLocation, `{ "lat" : 1 }`, nil},
		{"no data", `{"event":"updateLocation"}`, EventUpdateLocation, ``, nil},
		{"no event", `{"data":{}}`, "", "", ErrMalformedFrame},
		{"not json", `hello`, "", "", ErrMalformedFrame},
		{"not an object", `[1,2]`, "", "", ErrMalformedFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := DecodeFrame([]byte(tt.raw))
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("expected %v, got %v", tt.err, err)
				}
				return
			}

			if err != nil {
				t.Fatal(err)
			}

			if frame.Event != tt.event {
				t.Errorf("event = %q, want %q", frame.Event, tt.event)
			}

			if string(frame.Data) != tt.data {
				t.Errorf("data = %s, want %s", frame.Data, tt.data)
			}
		})
	}
}

func TestEncodeLocationUpdate(t *testing.T) {
	got := EncodeLocationUpdate([]byte(`{"userId":"D1", "lat":12.9,"lng":77.6}`))
	want := []byte(`{"event":"locationUpdate","data":{"userId":"D1", "lat":12.9,"lng":77.6}}`)
	if !bytes.Equal(got, want) {
		t.Errorf("got %s, want %s", got, want)
	}

	if got := EncodeLocationUpdate(nil); string(got) != `{"event":"locationUpdate","data":null}` {
		t.Errorf("empty payload encoded as %s", got)
	}
}

func TestEncodeFrame(t *testing.T) {
	b, err := EncodeFrame(EventUpdateLocation, LocationUpdate{UserID: "D1", Lat: 1.5, Lng: -2})
	if err != nil {
		t.Fatal(err)
	}

	frame, err := DecodeFrame(b)
	if err != nil {
		t.Fatal(err)
	}

	if frame.Event != EventUpdateLocation || string(frame.Data) != `{"userId":"D1","lat":1.5,"lng":-2}` {
		t.Errorf("unexpected frame %s", b)
	}
}
