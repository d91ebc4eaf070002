// Package keyvalue flattens an ordered string map into newline separated
// key=value lines and parses such text back into a map.
package keyvalue

import (
	"errors"
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	separator = "="
	delimiter = "\n"
)

var (
	ErrInvalidKey   = errors.New("keyvalue: invalid key")
	ErrInvalidValue = errors.New("keyvalue: invalid value")
)

// Map is the ordered input of Encode.
type Map = orderedmap.OrderedMap[string, string]

// NewMap returns an empty ordered map.
func NewMap() *Map {
	return orderedmap.New[string, string]()
}

// Encode joins the pairs in insertion order. There is no trailing delimiter.
func Encode(m *Map) (string, error) {
	if m == nil {
		return "", nil
	}
	var sb strings.Builder
	first := true
	for pair := m.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key == "" || strings.ContainsAny(pair.Key, separator+delimiter) {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, pair.Key)
		}
		// Decode drops a trailing '\r', so a value may not carry one either
		if strings.ContainsAny(pair.Value, delimiter+"\r") {
			return "", fmt.Errorf("%w: key %q contains a line break", ErrInvalidValue, pair.Key)
		}
		if !first {
			sb.WriteString(delimiter)
		}
		first = false
		sb.WriteString(pair.Key)
		sb.WriteString(separator)
		sb.WriteString(pair.Value)
	}
	return sb.String(), nil
}

// Decode splits each line on its first '='. Lines without '=' are skipped and
// repeated keys keep the last value. When known is non-empty, other keys are dropped.
func Decode(text string, known ...string) map[string]string {
	var filter map[string]struct{}
	if len(known) > 0 {
		filter = make(map[string]struct{}, len(known))
		for _, k := range known {
			filter[k] = struct{}{}
		}
	}

	out := make(map[string]string)
	for _, line := range strings.Split(text, delimiter) {
		line = strings.TrimSuffix(line, "\r")
		key, value, ok := strings.Cut(line, separator)
		if !ok {
			continue
		}
		if filter != nil {
			if _, wanted := filter[key]; !wanted {
				continue
			}
		}
		out[key] = value
	}
	return out
}
