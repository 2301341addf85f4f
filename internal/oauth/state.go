package oauth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// encodeState composes sessionKey and shopKey into an opaque state parameter.
// The encoding is reversible so the callback can recover both keys, and the
// nonce makes every issued state distinct.
func encodeState(sessionKey, shopKey string) (string, error) {
	nonce, err := generateNonce()
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(authState{
		SessionKey: sessionKey,
		ShopKey:    shopKey,
		Nonce:      nonce,
	})
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(payload), nil
}

// decodeState recovers the session and shop keys from a state parameter.
func decodeState(encoded string) (*authState, error) {
	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}

	var state authState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return &state, nil
}
