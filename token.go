package cloudkit

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Token is the mutable credential pair rewritten after every successful
// code exchange or refresh.
type Token struct {
	AccessToken  string
	RefreshToken string
}

// tokenEnvelope is the portable serialization described in §6: base64 of a
// UTF-8 JSON object with short keys.
type tokenEnvelope struct {
	Provider string `json:"p"`
	Access   string `json:"t"`
	Refresh  string `json:"r"`
}

// EncodeTokenEnvelope serializes a Token with its owning provider label into
// the base64 envelope form used for on-disk persistence.
func EncodeTokenEnvelope(providerLabel string, tok Token) (string, error) {
	env := tokenEnvelope{Provider: providerLabel, Access: tok.AccessToken, Refresh: tok.RefreshToken}
	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("cloudkit: marshal token envelope: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeTokenEnvelope parses either a base64-wrapped envelope or, for
// backward compatibility, a raw unwrapped JSON object.
func DecodeTokenEnvelope(s string) (providerLabel string, tok Token, err error) {
	raw, decodeErr := base64.StdEncoding.DecodeString(s)
	if decodeErr != nil {
		// Not base64: accept as a raw JSON object (legacy on-disk format).
		raw = []byte(s)
	}
	var env tokenEnvelope
	if err = json.Unmarshal(raw, &env); err != nil {
		return "", Token{}, fmt.Errorf("cloudkit: unmarshal token envelope: %w", err)
	}
	return env.Provider, Token{AccessToken: env.Access, RefreshToken: env.Refresh}, nil
}
