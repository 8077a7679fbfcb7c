package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Mutable bookkeeping columns are excluded so that two payloads describing
// the same record state always produce the same digest, letting consumers
// drop replayed lifecycle events.
var excludedFields = map[string]bool{
	"updated_at": true,
	"created_at": true,
}

// FromJSON computes a stable digest of a record payload.
func FromJSON(data json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return "", err
	}
	return FromMap(m), nil
}

// FromMap computes a stable digest of a decoded record payload.
func FromMap(data map[string]any) string {
	sum := sha256.Sum256([]byte(canonicalize(data)))
	return hex.EncodeToString(sum[:])
}

// canonicalize renders a value deterministically: map keys sorted,
// excluded bookkeeping fields dropped at the top level.
func canonicalize(value any) string {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			if excludedFields[k] {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var sb strings.Builder
		sb.WriteString("{")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(k)
			sb.WriteString(":")
			sb.WriteString(canonicalizeNested(v[k]))
		}
		sb.WriteString("}")
		return sb.String()
	default:
		return canonicalizeNested(value)
	}
}

// canonicalizeNested is canonicalize without field exclusion; exclusions
// only apply to the payload's top level.
func canonicalizeNested(value any) string {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var sb strings.Builder
		sb.WriteString("{")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(k)
			sb.WriteString(":")
			sb.WriteString(canonicalizeNested(v[k]))
		}
		sb.WriteString("}")
		return sb.String()
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = canonicalizeNested(item)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
