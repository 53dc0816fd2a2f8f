package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Body returns the document a webhook with the given mode sends for payload.
// Envelope mode wraps it as {event, timestamp, data}.
func Body(mode, eventIdentifier string, payload map[string]any, now time.Time) map[string]any {
	if payload == nil {
		payload = map[string]any{}
	}

	if mode != PayloadModeEnvelope {
		return payload
	}

	return map[string]any{
		"event":     eventIdentifier,
		"timestamp": now.UTC().Format(time.RFC3339),
		"data":      payload,
	}
}

// Encode serializes a body exactly as it goes on the wire.
func Encode(body map[string]any) ([]byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook body: %w", err)
	}

	return encoded, nil
}

// Sign returns hex(HMAC-SHA256(secret, body)).
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body under secret.
func Verify(secret string, body []byte, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return hmac.Equal(mac.Sum(nil), expected)
}
