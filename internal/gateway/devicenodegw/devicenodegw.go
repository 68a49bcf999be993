// Package devicenodegw implements the DeviceNodeGateway:
// creates character device nodes inside the container via mknod+chmod.
package devicenodegw

import (
	"context"
	"encoding/json"

	"scagent/internal/containerruntime"
	"scagent/internal/gateway"
)

const ID = "devicenode"

type deviceNode struct {
	Name  string `json:"name"`
	Major string `json:"major"`
	Minor string `json:"minor"`
	Mode  string `json:"mode"`
}

func (d deviceNode) valid() bool {
	return d.Name != "" && d.Major != "" && d.Minor != "" && d.Mode != ""
}

type configFragment struct {
	Devices []deviceNode `json:"devices"`
}

// Gateway implements gateway.Gateway for character device node creation.
type Gateway struct {
	gateway.Base
	devices []deviceNode
}

// New creates an unconfigured DeviceNodeGateway.
func New() *Gateway {
	return &Gateway{Base: gateway.NewBase(ID)}
}

func (g *Gateway) SetConfig(fragments []json.RawMessage) bool {
	var parsed []deviceNode
	for _, frag := range fragments {
		var cfg configFragment
		if err := json.Unmarshal(frag, &cfg); err != nil {
			return false
		}
		for _, d := range cfg.Devices {
			if !d.valid() {
				return false
			}
			parsed = append(parsed, d)
		}
	}
	g.devices = append(g.devices, parsed...)
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
	for _, d := range g.devices {
		mknod := containerruntime.ExecConfig{Command: []string{
			"mknod", d.Name, "c", d.Major, d.Minor,
		}}
		if _, err := rt.Attach(ctx, mknod); err != nil {
			return false
		}
		chmod := containerruntime.ExecConfig{Command: []string{"chmod", d.Mode, d.Name}}
		if _, err := rt.Attach(ctx, chmod); err != nil {
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
