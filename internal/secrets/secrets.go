// Package secrets decodes obfuscated configuration values (endpoint URLs, API
// keys, connection strings) before they are handed to clients. Obfuscation is
// base64 over a repeating-key XOR; it keeps credentials out of casual
// plaintext, it is not encryption.
package secrets

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Prefix marks a config value as obfuscated. Values without it pass through
// MaybeDecode untouched.
const Prefix = "xor:"

// Encode obfuscates a plaintext value with the given key. Used by ops tooling
// and tests; the server only ever decodes.
func Encode(plaintext, key string) (string, error) {
	if key == "" {
		return "", errors.New("secrets: key is required")
	}
	mixed := xor([]byte(plaintext), []byte(key))
	return Prefix + base64.StdEncoding.EncodeToString(mixed), nil
}

// Decode reverses Encode. The value must carry the Prefix.
func Decode(value, key string) (string, error) {
	if key == "" {
		return "", errors.New("secrets: key is required")
	}
	raw, ok := strings.CutPrefix(value, Prefix)
	if !ok {
		return "", fmt.Errorf("secrets: value is not obfuscated (missing %q prefix)", Prefix)
	}
	mixed, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("secrets: decode base64: %w", err)
	}
	return string(xor(mixed, []byte(key))), nil
}

// MaybeDecode decodes value when it carries the obfuscation prefix and returns
// it unchanged otherwise, so plain env values keep working in development.
func MaybeDecode(value, key string) (string, error) {
	if !strings.HasPrefix(value, Prefix) {
		return value, nil
	}
	return Decode(value, key)
}

func xor(data, key []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return out
}
