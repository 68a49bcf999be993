// Package cgroupgw implements the CgroupGateway: a list of
// {setting, value} pairs written to the container's cgroup. Rather than
// writing cgroupfs files directly, this targets the container's systemd
// scope unit via SetUnitProperties — the same transient-unit property API
// a systemd-nspawn-managed container already exposes for this purpose.
package cgroupgw

import (
	"context"
	"encoding/json"

	"scagent/internal/gateway"

	systemddbus "github.com/coreos/go-systemd/v22/dbus"
	godbus "github.com/godbus/dbus/v5"
)

const ID = "cgroup"

type setting struct {
	Setting string `json:"setting"`
	Value   string `json:"value"`
}

// SystemdConn is the subset of *systemddbus.Conn CgroupGateway needs,
// satisfied by the real connection and by fakes in tests.
type SystemdConn interface {
	SetUnitProperties(unit string, runtime bool, properties ...systemddbus.Property) error
}

// Gateway implements gateway.Gateway for cgroup settings applied through
// systemd's transient-unit property API.
type Gateway struct {
	gateway.Base
	settings []setting
	unit     string
	conn     SystemdConn
}

// New creates an unconfigured CgroupGateway targeting the systemd scope
// unit named unit, driven through conn.
func New(unit string, conn SystemdConn) *Gateway {
	return &Gateway{Base: gateway.NewBase(ID), unit: unit, conn: conn}
}

func (g *Gateway) SetConfig(fragments []json.RawMessage) bool {
	var parsed []setting
	for _, frag := range fragments {
		var batch []setting
		if err := json.Unmarshal(frag, &batch); err != nil {
			return false
		}
		for _, s := range batch {
			if s.Setting == "" {
				return false
			}
			parsed = append(parsed, s)
		}
	}
	g.settings = append(g.settings, parsed...)
	g.MarkConfigured()
	return true
}

func (g *Gateway) Activate(ctx context.Context) bool {
	if !g.CanActivate() {
		g.RefuseActivateWithoutConfig()
		g.Teardown(ctx)
		return false
	}

	var props []systemddbus.Property
	for _, s := range g.settings {
		props = append(props, systemddbus.Property{
			Name:  s.Setting,
			Value: godbus.MakeVariant(s.Value),
		})
	}
	if len(props) > 0 {
		if err := g.conn.SetUnitProperties(g.unit, true, props...); err != nil {
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
