// Package envgw implements the EnvironmentGateway: a list of name/value
// pairs, optionally appended to an existing value with a ":" separator,
// exported into the container's environment on activate.
package envgw

import (
	"context"
	"encoding/json"

	"scagent/internal/gateway"
)

const ID = "environment"

type entry struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Append bool   `json:"append"`
}

// Gateway implements gateway.Gateway for environment variable exports.
type Gateway struct {
	gateway.Base
	entries []entry
}

// New creates an unconfigured EnvironmentGateway.
func New() *Gateway {
	return &Gateway{Base: gateway.NewBase(ID)}
}

func (g *Gateway) SetConfig(fragments []json.RawMessage) bool {
	var parsed []entry
	for _, frag := range fragments {
		var batch []entry
		if err := json.Unmarshal(frag, &batch); err != nil {
			return false
		}
		for _, e := range batch {
			if e.Name == "" {
				return false
			}
			parsed = append(parsed, e)
		}
	}
	g.entries = append(g.entries, parsed...)
	g.MarkConfigured()
	return true
}

func (g *Gateway) Activate(ctx context.Context) bool {
	if !g.CanActivate() {
		g.RefuseActivateWithoutConfig()
		g.Teardown(ctx)
		return false
	}

	rt := g.Container()
	existing := make(map[string]string, len(g.entries))
	for _, e := range g.entries {
		value := e.Value
		if e.Append {
			if prior, ok := existing[e.Name]; ok {
				value = prior + ":" + e.Value
			}
		}
		if err := rt.SetEnv(ctx, e.Name, value); err != nil {
			return false
		}
		existing[e.Name] = value
	}
	g.MarkActivated()
	return true
}

func (g *Gateway) Teardown(ctx context.Context) bool {
	if !g.WasActivated() {
		return g.TeardownNoop()
	}
	g.MarkTornDown()
	return true
}
