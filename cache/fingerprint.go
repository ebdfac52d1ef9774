package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Fingerprint derives a deterministic cache key for an upstream call
// from its endpoint key and request parameters, for callers that
// don't already compute one themselves.
//
// Format: <endpointKey>:<hash>, where hash is the first 16 hex
// characters of SHA-256 over the params rendered as canonical JSON
// (object keys sorted at every nesting level), so the same logical
// request always yields the same fingerprint regardless of map
// iteration order.
func Fingerprint(endpointKey string, params any) (string, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, params); err != nil {
		return "", fmt.Errorf("cache: failed to canonicalize params: %w", err)
	}
	sum := sha256.Sum256(buf.Bytes())
	return endpointKey + ":" + hex.EncodeToString(sum[:8]), nil
}

// writeCanonical streams v into buf as JSON with sorted object keys.
// Only maps and slices need the recursive treatment; scalars (and any
// struct a caller passes) go straight through encoding/json.
func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")

	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')

	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')

	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}
