package provider

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/cloudkit/cloudkit"
)

// CredentialsToString serializes a Hints map into the portable base64-JSON
// form used wherever credentials cross a process boundary (the
// tokenstore's *.hints sidecar file), mirroring
// the token envelope's own encoding in cloudkit.EncodeTokenEnvelope.
func CredentialsToString(hints cloudkit.Hints) (string, error) {
	raw, err := json.Marshal(hints)
	if err != nil {
		return "", fmt.Errorf("provider: marshal credentials: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// CredentialsFromString parses either a base64-wrapped Hints map or, for
// backward compatibility, a raw unwrapped JSON object.
func CredentialsFromString(s string) (cloudkit.Hints, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		raw = []byte(s)
	}
	var hints cloudkit.Hints
	if err := json.Unmarshal(raw, &hints); err != nil {
		return nil, fmt.Errorf("provider: unmarshal credentials: %w", err)
	}
	return hints, nil
}
