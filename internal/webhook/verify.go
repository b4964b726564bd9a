// Package webhook verifies and normalises Meta (Instagram and WhatsApp
// Cloud API) webhook deliveries.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// SignatureHeader carries the HMAC of the raw request body.
const SignatureHeader = "X-Hub-Signature-256"

var (
	ErrForbidden        = errors.New("webhook verification failed")
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// VerifyChallenge answers the subscription handshake. It returns the
// challenge to echo when mode is subscribe and token matches expected.
func VerifyChallenge(mode, token, challenge, expected string) (string, error) {
	if mode != "subscribe" || expected == "" || !hmac.Equal([]byte(token), []byte(expected)) {
		return "", ErrForbidden
	}
	return challenge, nil
}

// VerifySignature checks header ("sha256=<hex>") against the HMAC-SHA256 of
// body keyed by the app secret.
func VerifySignature(secret, header string, body []byte) error {
	if header == "" || secret == "" {
		return ErrMissingSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(header)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the header value Meta would send for body. Used by tests and
// local tooling that replays deliveries.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
