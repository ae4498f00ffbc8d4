// Package userstate holds the per-user values the tools and the pipeline
// share through Redis: preferences, cached search results, account values,
// payment info, KYC identity and short-lived session markers.
package userstate

import (
	"encoding/json"
	"fmt"
)

// CodecVersion is the schema version stamped on every stored value.
const CodecVersion = 1

type envelope struct {
	V    int             `json:"v"`
	Data json.RawMessage `json:"data"`
}

// Encode wraps v in a versioned envelope.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding value: %w", err)
	}
	return json.Marshal(envelope{V: CodecVersion, Data: data})
}

// Decode unwraps a versioned envelope into v. It reports false, without
// error, for values written under an unknown version or in a foreign format
// so callers can treat them as absent.
func Decode(raw []byte, v any) (bool, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.V != CodecVersion || len(env.Data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return false, fmt.Errorf("decoding value: %w", err)
	}
	return true, nil
}
