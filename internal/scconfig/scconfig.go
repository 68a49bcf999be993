// Package scconfig validates and normalizes the agent's container-options
// JSON (and, as an extension, YAML) configuration into typed settings.
// Parsing is stateless: Parse takes no receiver state and every call is
// independent of previous calls.
package scconfig

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultTmpfsSize = 100 * 1024 * 1024

// InvalidConfigError reports a structural or value violation in the input
// configuration.
type InvalidConfigError struct {
	Detail string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s", e.Detail)
}

func invalidConfig(detail string) error {
	return &InvalidConfigError{Detail: detail}
}

// Options is the normalized, typed form of one container-options element.
type Options struct {
	WriteBufferEnabled                    bool
	TemporaryFileSystemWriteBufferEnabled bool
	TemporaryFileSystemSize               int64
}

// rawElement mirrors the on-wire JSON object shape before validation.
type rawElement struct {
	WriteBufferEnabled                    *bool  `json:"writeBufferEnabled" yaml:"writeBufferEnabled"`
	TemporaryFileSystemWriteBufferEnabled *bool  `json:"temporaryFileSystemWriteBufferEnabled,omitempty" yaml:"temporaryFileSystemWriteBufferEnabled,omitempty"`
	TemporaryFileSystemSize               *int64 `json:"temporaryFileSystemSize,omitempty" yaml:"temporaryFileSystemSize,omitempty"`
}

// Parse validates the agent's top-level container-options configuration,
// a JSON array of objects, and returns the normalized Options for each
// element in order.
//
// An empty input string fails with InvalidConfigError{"empty"}. A
// non-empty array of zero elements ("[]") is not an error and yields no
// Options; only the empty string is rejected, not the empty array.
func Parse(config string) ([]Options, error) {
	if strings.TrimSpace(config) == "" {
		return nil, invalidConfig("empty")
	}

	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(config), &elements); err != nil {
		return nil, invalidConfig("root is not a JSON array: " + err.Error())
	}

	out := make([]Options, 0, len(elements))
	for _, raw := range elements {
		opts, err := parseElement(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, opts)
	}
	return out, nil
}

// ParseYAML is the YAML-document equivalent of Parse, for callers whose
// container-options document is authored as YAML rather than JSON.
func ParseYAML(config string) ([]Options, error) {
	if strings.TrimSpace(config) == "" {
		return nil, invalidConfig("empty")
	}

	var elements []yaml.Node
	if err := yaml.Unmarshal([]byte(config), &elements); err != nil {
		return nil, invalidConfig("root is not a YAML sequence: " + err.Error())
	}

	out := make([]Options, 0, len(elements))
	for _, node := range elements {
		var el rawElement
		if err := node.Decode(&el); err != nil {
			return nil, invalidConfig("entry is not a mapping: " + err.Error())
		}
		opts, err := normalize(el)
		if err != nil {
			return nil, err
		}
		out = append(out, opts)
	}
	return out, nil
}

func parseElement(raw json.RawMessage) (Options, error) {
	var probe any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Options{}, invalidConfig("malformed element: " + err.Error())
	}
	if _, ok := probe.(map[string]any); !ok {
		return Options{}, invalidConfig("element is not an object")
	}

	warnUnknownKeys(probe.(map[string]any))

	var el rawElement
	if err := json.Unmarshal(raw, &el); err != nil {
		return Options{}, invalidConfig("malformed element: " + err.Error())
	}
	return normalize(el)
}

var knownKeys = map[string]bool{
	"writeBufferEnabled":                    true,
	"temporaryFileSystemWriteBufferEnabled": true,
	"temporaryFileSystemSize":               true,
}

func warnUnknownKeys(obj map[string]any) {
	for k := range obj {
		if !knownKeys[k] {
			slog.Warn("scconfig: ignoring unknown key", "key", k)
		}
	}
}

func normalize(el rawElement) (Options, error) {
	if el.WriteBufferEnabled == nil {
		return Options{}, invalidConfig("missing:writeBufferEnabled")
	}

	opts := Options{
		WriteBufferEnabled:      *el.WriteBufferEnabled,
		TemporaryFileSystemSize: defaultTmpfsSize,
	}
	if !opts.WriteBufferEnabled {
		return opts, nil
	}

	if el.TemporaryFileSystemWriteBufferEnabled != nil {
		opts.TemporaryFileSystemWriteBufferEnabled = *el.TemporaryFileSystemWriteBufferEnabled
	}
	if !opts.TemporaryFileSystemWriteBufferEnabled {
		return opts, nil
	}

	if el.TemporaryFileSystemSize != nil {
		opts.TemporaryFileSystemSize = *el.TemporaryFileSystemSize
	}
	return opts, nil
}
