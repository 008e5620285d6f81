package internal

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/segmentio/ksuid"
)

func TestHandleEvent(t *testing.T) {
	relay := NewRelay(testLogger(), NewRegistry())
	sub := newFakeSubscriber()
	relay.OnConnect(sub)

	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"userId":"D2","lat":1,"lng":2}`))

	HandleEvent(testLogger(), relay, "self", Event{Type: EventTypeBroadcast, Origin: "self", Payload: payload})
	if len(sub.received()) != 0 {
		t.Fatal("own broadcast was delivered twice")
	}

	HandleEvent(testLogger(), relay, "self", Event{Type: EventTypeBroadcast, Origin: "other", Payload: payload})
	frames := sub.received()
	if len(frames) != 1 {
		t.Fatalf("received %v frames, want 1", len(frames))
	}

	if want := EncodeLocationUpdate([]byte(`{"userId":"D2","lat":1,"lng":2}`)); !bytes.Equal(frames[0], want) {
		t.Errorf("received %s, want %s", frames[0], want)
	}

	HandleEvent(testLogger(), relay, "self", Event{Type: EventTypeBroadcast, Origin: "other", Payload: "%%%"})
	HandleEvent(testLogger(), relay, "self", Event{Type: "bogus", Origin: "other"})

	conn := NewConnection(ksuid.New().String(), nil)
	relay.OnConnect(conn)

	HandleEvent(testLogger(), relay, "self", Event{Type: EventTypeDrop, ID: conn.ID(), Origin: "other"})
	if relay.Len() != 1 {
		t.Errorf("live set has %v connections after drop, want 1", relay.Len())
	}
}

type fakeDropper struct {
	known map[string]bool
	asked []string
}

func (f *fakeDropper) PublishDrop(_ context.Context, id string) (bool, error) {
	f.asked = append(f.asked, id)
	return f.known[id], nil
}

func signedRequest(t *testing.T, key ed25519.PrivateKey, method, url string, body []byte) *http.Request {
	t.Helper()

	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}

	if key != nil {
		if err := NewRequestSigner(key)(req, "dispatcher"); err != nil {
			t.Fatal(err)
		}
	}

	return req
}

func TestPublishHandler(t *testing.T) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	relay := NewRelay(testLogger(), NewRegistry())
	sub := newFakeSubscriber()
	relay.OnConnect(sub)

	handler := PublishHandler(relay, testLogger(), NewRequestVerifier(publicKey), 64)

	tests := []struct {
		name   string
		key    ed25519.PrivateKey
		body   string
		status int
	}{
		{"unsigned", nil, `{"lat":1}`, http.StatusUnauthorized},
		{"not json", privateKey, `{"lat":`, http.StatusBadRequest},
		{"too large", privateKey, `{"name":"` + string(bytes.Repeat([]byte("x"), 100)) + `"}`, http.StatusRequestEntityTooLarge},
		{"accepted", privateKey, `{"userId":"D1","lat":12.9,"lng":77.6}`, http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler(w, signedRequest(t, tt.key, http.MethodPost, "/publish", []byte(tt.body)))

			if w.Code != tt.status {
				t.Errorf("status = %v, want %v", w.Code, tt.status)
			}
		})
	}

	frames := sub.received()
	if len(frames) != 1 {
		t.Fatalf("received %v frames, want 1", len(frames))
	}

	if want := EncodeLocationUpdate([]byte(`{"userId":"D1","lat":12.9,"lng":77.6}`)); !bytes.Equal(frames[0], want) {
		t.Errorf("received %s, want %s", frames[0], want)
	}
}

func TestDropHandler(t *testing.T) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	relay := NewRelay(testLogger(), NewRegistry())
	local := NewConnection(ksuid.New().String(), nil)
	relay.OnConnect(local)

	remote := &fakeDropper{known: map[string]bool{"elsewhere": true}}

	router := chi.NewRouter()
	router.Delete("/connections/{id}", DropHandler(relay, remote, NewRequestVerifier(publicKey)))

	tests := []struct {
		name   string
		key    ed25519.PrivateKey
		id     string
		status int
	}{
		{"unsigned", nil, local.ID(), http.StatusUnauthorized},
		{"local", privateKey, local.ID(), http.StatusOK},
		{"remote", privateKey, "elsewhere", http.StatusAccepted},
		{"unknown", privateKey, "nowhere", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, signedRequest(t, tt.key, http.MethodDelete, "/connections/"+tt.id, nil))

			if w.Code != tt.status {
				t.Errorf("status = %v, want %v", w.Code, tt.status)
			}
		})
	}

	if relay.Len() != 0 {
		t.Error("local connection was not dropped")
	}

	if len(remote.asked) != 2 {
		t.Errorf("remote asked %v times, want 2", len(remote.asked))
	}
}
