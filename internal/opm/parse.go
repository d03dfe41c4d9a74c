package opm

import (
	"fmt"
	"strconv"
	"strings"

	"adam-batch/internal/params"
)

// Message is a parsed KEY = value block. Keys keep their original order.
type Message struct {
	keys   []string
	values map[string]string
}

// Parse reads a KEY = value block. Blank and COMMENT lines are skipped;
// repeated keys keep the last value.
func Parse(text string) (*Message, error) {
	m := &Message{values: make(map[string]string)}
	for n, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "COMMENT") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("opm line %d: missing '=' in %q", n+1, line)
		}
		k = strings.TrimSpace(k)
		if k == "" {
			return nil, fmt.Errorf("opm line %d: empty key", n+1)
		}
		if _, seen := m.values[k]; !seen {
			m.keys = append(m.keys, k)
		}
		m.values[k] = strings.TrimSpace(v)
	}
	return m, nil
}

// Keys returns the keys in the order they first appeared.
func (m *Message) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Value returns the raw value of key.
func (m *Message) Value(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Float parses the value of key, ignoring a trailing [unit] annotation.
func (m *Message) Float(key string) (float64, error) {
	v, ok := m.values[key]
	if !ok {
		return 0, fmt.Errorf("opm: key %s not present", key)
	}
	if i := strings.Index(v, "["); i >= 0 {
		v = strings.TrimSpace(v[:i])
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("opm: key %s: %w", key, err)
	}
	return f, nil
}

// StateVector reads X through Z_DOT.
func (m *Message) StateVector() (params.StateVector, error) {
	var sv params.StateVector
	for i, k := range StateKeys {
		f, err := m.Float(k)
		if err != nil {
			return params.StateVector{}, err
		}
		sv[i] = f
	}
	return sv, nil
}

// HasCovariance reports whether the covariance block is present.
func (m *Message) HasCovariance() bool {
	_, ok := m.values[CovarianceKeys[0]]
	return ok
}
