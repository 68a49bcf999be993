// Package pulsegw implements the PulseGateway: a single "audio" boolean
// that, when true, exposes the host's PulseAudio socket into the
// container.
package pulsegw

import (
	"context"
	"encoding/json"

	"scagent/internal/gateway"
)

const ID = "pulse"

const hostPulseSocket = "/run/pulse/native"
const containerPulseSocket = "/run/pulse/native"

type config struct {
	Audio bool `json:"audio"`
}

// Gateway implements gateway.Gateway for PulseAudio socket exposure.
type Gateway struct {
	gateway.Base
	audio bool
}

// New creates an unconfigured PulseGateway.
func New() *Gateway {
	return &Gateway{Base: gateway.NewBase(ID)}
}

func (g *Gateway) SetConfig(fragments []json.RawMessage) bool {
	var enabled bool
	for _, frag := range fragments {
		var cfg config
		if err := json.Unmarshal(frag, &cfg); err != nil {
			return false
		}
		enabled = enabled || cfg.Audio
	}
	g.audio = g.audio || enabled
	g.MarkConfigured()
	return true
}

func (g *Gateway) Activate(ctx context.Context) bool {
	if !g.CanActivate() {
		g.RefuseActivateWithoutConfig()
		g.Teardown(ctx)
		return false
	}
	if g.audio {
		rt := g.Container()
		if _, err := rt.BindMount(ctx, hostPulseSocket, containerPulseSocket, false); err != nil {
			return false
		}
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
