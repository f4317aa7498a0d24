// Package flatten converts nested session records into flat string-valued
// rows suitable for CSV spooling and all-STRING warehouse tables.
//
// Nested objects contribute composite keys joined with underscores, array
// elements are keyed by positional index, and every leaf value is
// stringified. Keys are normalized to lowercase with spaces and hyphens
// replaced by underscores so they are valid, stable column names.
package flatten

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/datarmony/zukosync/pkg/errors"
)

// IDKey is the normalized uniqueness key every row must carry.
const IDKey = "id"

// FlatRow is a single-level mapping from normalized column name to string
// value, produced from one nested source record.
type FlatRow map[string]string

// Flatten converts one raw session into a FlatRow. It is pure and
// deterministic; keys at each level are walked in sorted order so that
// normalization collisions resolve the same way on every call
// (last write wins, a documented lossy edge case).
//
// A record whose flattened `id` is absent or empty cannot participate in
// keyed incremental loading and is rejected with a flatten error.
func Flatten(record map[string]interface{}) (FlatRow, error) {
	row := make(FlatRow, len(record))
	walk(row, "", record)

	if row[IDKey] == "" {
		return nil, errors.New(errors.ErrorTypeFlatten, "record has no usable id field")
	}
	return row, nil
}

// walk descends into value, emitting normalized leaf keys into row.
// prefix is the already-normalized composite path so far ("" at the root).
func walk(row FlatRow, prefix string, value interface{}) {
	switch v := value.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walk(row, join(prefix, NormalizeKey(k)), v[k])
		}
	case []interface{}:
		for i, elem := range v {
			walk(row, join(prefix, strconv.Itoa(i)), elem)
		}
	default:
		if prefix == "" {
			// Scalar root; nothing to key it by
			return
		}
		row[prefix] = valueToString(v)
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "_" + key
}

// NormalizeKey lowercases a field name and replaces spaces and hyphens
// with underscores, making it safe as a warehouse column name.
func NormalizeKey(key string) string {
	key = strings.ToLower(key)
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	return key
}

// valueToString converts leaf values to their textual representation.
// nil becomes the empty string, never the literal "null".
func valueToString(value interface{}) string {
	if value == nil {
		return ""
	}

	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		// JSON numbers decode as float64; keep integral values clean
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	default:
		return fmt.Sprintf("%v", v)
	}
}
