// Package capability expands named capability bundles into gateway
// configuration. The store is loaded once from a host-side JSON file at
// agent startup; hot reload is not required.
package capability

import (
	"encoding/json"
	"fmt"

	"scagent/internal/gatewayconfig"

	"gopkg.in/yaml.v3"
)

// UnknownCapabilityError is returned, atomically, when Resolve is asked for
// a capability name the store does not know.
type UnknownCapabilityError struct {
	Name string
}

func (e *UnknownCapabilityError) Error() string {
	return fmt.Sprintf("unknown capability %q", e.Name)
}

// gatewayFragment is one (gateway-id, JSON fragment) pair contributed by a
// capability, matching the capabilities file's on-disk shape:
//
//	{ "<capability>": [ { "id": "<gateway-id>", "config": <array> }, ... ] }
type gatewayFragment struct {
	ID     string            `json:"id"`
	Config []json.RawMessage `json:"config"`
}

// Store is an immutable, name-indexed set of capability bundles.
type Store struct {
	capabilities map[string][]gatewayFragment
}

// Load parses the capabilities file contents (JSON object of capability
// name to gateway-fragment arrays) into a Store.
func Load(data []byte) (*Store, error) {
	var doc map[string][]gatewayFragment
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse capabilities file: %w", err)
	}
	return &Store{capabilities: doc}, nil
}

// yamlGatewayFragment mirrors gatewayFragment but decodes Config as raw
// yaml.Node entries, since yaml.v3 has no notion of encoding/json.RawMessage
// (a []byte decodes against its !!binary tag, not an arbitrary mapping).
// Each node is re-encoded to JSON below so the rest of the package keeps
// working in terms of json.RawMessage regardless of the source format.
type yamlGatewayFragment struct {
	ID     string      `yaml:"id"`
	Config []yaml.Node `yaml:"config"`
}

// LoadYAML is the YAML-document equivalent of Load, used when the agent
// is started with --capabilities-format yaml. The document shape is the
// same capability-name-to-gateway-fragment-array mapping, just encoded as
// YAML rather than JSON.
func LoadYAML(data []byte) (*Store, error) {
	var parsed map[string][]yamlGatewayFragment
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse capabilities file: %w", err)
	}

	doc := make(map[string][]gatewayFragment, len(parsed))
	for name, fragments := range parsed {
		converted := make([]gatewayFragment, 0, len(fragments))
		for _, f := range fragments {
			frag := gatewayFragment{ID: f.ID, Config: make([]json.RawMessage, 0, len(f.Config))}
			for _, node := range f.Config {
				var v any
				if err := node.Decode(&v); err != nil {
					return nil, fmt.Errorf("capability %q gateway %q: decode config entry: %w", name, f.ID, err)
				}
				jsonBytes, err := json.Marshal(v)
				if err != nil {
					return nil, fmt.Errorf("capability %q gateway %q: re-encode config entry: %w", name, f.ID, err)
				}
				frag.Config = append(frag.Config, jsonBytes)
			}
			converted = append(converted, frag)
		}
		doc[name] = converted
	}
	return &Store{capabilities: doc}, nil
}

// Names returns every known capability name, for ListCapabilities.
func (s *Store) Names() []string {
	out := make([]string, 0, len(s.capabilities))
	for name := range s.capabilities {
		out = append(out, name)
	}
	return out
}

// Has reports whether name is a known capability.
func (s *Store) Has(name string) bool {
	_, ok := s.capabilities[name]
	return ok
}

// Resolve expands a set of capability names into a GatewayConfiguration.
// Resolution is atomic: if any name is unknown, no fragments from any
// capability in the request are applied and an *UnknownCapabilityError is
// returned naming the first unknown capability encountered.
//
// Capabilities are a set, not a stack: callers recompute Resolve from the
// full desired capability set on every change, rather than layering
// incremental adds/removes.
func (s *Store) Resolve(names []string) (*gatewayconfig.Configuration, error) {
	for _, name := range names {
		if !s.Has(name) {
			return nil, &UnknownCapabilityError{Name: name}
		}
	}

	cfg := gatewayconfig.New()
	for _, name := range names {
		for _, frag := range s.capabilities[name] {
			if err := cfg.AppendArray(frag.ID, frag.Config); err != nil {
				return nil, fmt.Errorf("apply capability %q gateway %q: %w", name, frag.ID, err)
			}
		}
	}
	return cfg, nil
}
