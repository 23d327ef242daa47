// Package env reads process configuration. Blank values count as unset so
// that `FOO=` in a compose file falls back to the default.
package env

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// String returns the raw value of key, or def when key is not set at all.
func String(key string, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

// Trimmed is String with surrounding whitespace removed; an all-blank value
// falls back to def.
func Trimmed(key string, def string) string {
	if v, ok := lookup(key); ok {
		return v
	}
	return def
}

func Duration(key string, def time.Duration) (time.Duration, error) {
	return parsed(key, def, time.ParseDuration)
}

func Bool(key string, def bool) (bool, error) {
	return parsed(key, def, strconv.ParseBool)
}

func Int(key string, def int) (int, error) {
	return parsed(key, def, strconv.Atoi)
}

func Float(key string, def float64) (float64, error) {
	return parsed(key, def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

// CSV splits a comma separated value, dropping blanks and duplicates while
// keeping the first-seen order.
func CSV(key string, def []string) []string {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		item := strings.TrimSpace(part)
		if item != "" && !slices.Contains(out, item) {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func parsed[T any](key string, def T, parse func(string) (T, error)) (T, error) {
	v, ok := lookup(key)
	if !ok {
		return def, nil
	}
	out, err := parse(v)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("parse %s=%q: %w", key, v, err)
	}
	return out, nil
}

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}
