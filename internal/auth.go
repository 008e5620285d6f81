package internal

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/segmentio/ksuid"
)

const AuthHeader = "Fleet-Relay-Auth"

// Signed requests are accepted for this long either side of their nonce time.
const authWindow = 1 * time.Minute

type (
	RequestSigner   = func(r *http.Request, id string) error
	RequestVerifier = func(r *http.Request) string
)

func NewRequestSigner(privateKey ed25519.PrivateKey) RequestSigner {
	return func(r *http.Request, id string) error {
		nonce, err := ksuid.NewRandom()
		if err != nil {
			return err
		}

		msg := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf("%v_%v", nonce.String(), id)))
		sig := base64.RawURLEncoding.EncodeToString(ed25519.Sign(privateKey, []byte(msg)))

		r.Header.Set(AuthHeader, fmt.Sprintf("%v.%v", msg, sig))

		return nil
	}
}

// NewRequestVerifier returns the signer's id, or "" for anything unsigned,
// tampered with or stale.
func NewRequestVerifier(publicKey ed25519.PublicKey) RequestVerifier {
	return func(r *http.Request) string {
		parts := strings.Split(r.Header.Get(AuthHeader), ".")
		if len(parts) != 2 {
			return ""
		}

		sig, err := base64.RawURLEncoding.DecodeString(parts[1])
		if err != nil {
			return ""
		}

		if !ed25519.Verify(publicKey, []byte(parts[0]), sig) {
			return ""
		}

		msg, err := base64.RawURLEncoding.DecodeString(parts[0])
		if err != nil {
			return ""
		}

		parts = strings.SplitN(string(msg), "_", 2)
		if len(parts) != 2 || parts[1] == "" {
			return ""
		}

		nonce := ksuid.KSUID{}
		if err := nonce.UnmarshalText([]byte(parts[0])); err != nil {
			return ""
		}

		now := time.Now()
		nt := nonce.Time()
		if nt.Before(now.Add(-authWindow)) || nt.After(now.Add(authWindow)) {
			return ""
		}

		return parts[1]
	}
}
