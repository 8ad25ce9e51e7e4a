package bybit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Authentication headers required by the Bybit V5 API.
const (
	headerAPIKey     = "X-BAPI-API-KEY"
	headerSign       = "X-BAPI-SIGN"
	headerTimestamp  = "X-BAPI-TIMESTAMP"
	headerRecvWindow = "X-BAPI-RECV-WINDOW"
)

// Signer produces Bybit V5 request signatures. It is a pure function of its
// inputs and safe for concurrent use.
//
// The signature is the lowercase hex HMAC-SHA256 digest of the canonical
// concatenation timestamp + apiKey + recvWindow + payload, keyed by the
// secret. The payload must be the exact bytes transmitted on the wire:
// the encoded query string for GET requests, the JSON body for POST.
type Signer struct {
	apiKey string
	secret string
}

// NewSigner creates a Signer for the given credentials.
func NewSigner(apiKey, secret string) *Signer {
	return &Signer{apiKey: apiKey, secret: secret}
}

// Sign computes the signature for the given timestamp, receive window, and
// payload. It fails fast on malformed inputs rather than signing garbage.
func (s *Signer) Sign(timestamp, recvWindow, payload string) (string, error) {
	if s.apiKey == "" || s.secret == "" {
		return "", fmt.Errorf("api key and secret required for signing")
	}
	if !isMillis(timestamp) {
		return "", fmt.Errorf("invalid timestamp %q: want milliseconds", timestamp)
	}
	if !isMillis(recvWindow) {
		return "", fmt.Errorf("invalid recv window %q: want milliseconds", recvWindow)
	}

	h := hmac.New(sha256.New, []byte(s.secret))
	h.Write([]byte(timestamp))
	h.Write([]byte(s.apiKey))
	h.Write([]byte(recvWindow))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Headers returns the four X-BAPI authentication headers for a request
// carrying the given payload.
func (s *Signer) Headers(timestamp, recvWindow, payload string) (map[string]string, error) {
	signature, err := s.Sign(timestamp, recvWindow, payload)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		headerAPIKey:     s.apiKey,
		headerSign:       signature,
		headerTimestamp:  timestamp,
		headerRecvWindow: recvWindow,
	}, nil
}

func isMillis(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
