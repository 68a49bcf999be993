// Package dbusgw implements the DBusGateway: two independent
// sub-instances, one per bus, each spawning and tearing down its own
// filtering proxy subprocess via internal/dbusproxy.
package dbusgw

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"scagent/internal/containerruntime"
	"scagent/internal/dbusproxy"
	"scagent/internal/gateway"
)

const ID = "dbus"

const (
	keySession = "dbus-gateway-config-session"
	keySystem  = "dbus-gateway-config-system"
)

type busState struct {
	rules      []json.RawMessage
	configured bool
	supervisor *dbusproxy.Supervisor
	activated  bool
}

// Gateway implements gateway.Gateway for D-Bus access mediation.
type Gateway struct {
	gateway.Base
	name        string
	gatewayDir  string
	proxyBinary string

	session busState
	system  busState
}

// New creates an unconfigured DBusGateway that will spawn proxyBinary for
// a container identified by name, with sockets rooted at gatewayDir.
func New(name, gatewayDir, proxyBinary string) *Gateway {
	return &Gateway{Base: gateway.NewBase(ID), name: name, gatewayDir: gatewayDir, proxyBinary: proxyBinary}
}

type rawConfig struct {
	Session []json.RawMessage `json:"dbus-gateway-config-session"`
	System  []json.RawMessage `json:"dbus-gateway-config-system"`
}

func (g *Gateway) SetConfig(fragments []json.RawMessage) bool {
	var session, system []json.RawMessage
	for _, frag := range fragments {
		var cfg rawConfig
		if err := json.Unmarshal(frag, &cfg); err != nil {
			return false
		}
		session = append(session, cfg.Session...)
		system = append(system, cfg.System...)
	}
	if len(session) > 0 {
		g.session.rules = append(g.session.rules, session...)
		g.session.configured = true
	}
	if len(system) > 0 {
		g.system.rules = append(g.system.rules, system...)
		g.system.configured = true
	}
	if !g.session.configured && !g.system.configured {
		return false
	}
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
	anyActivated := false

	if g.session.configured {
		if g.activateBus(ctx, rt, dbusproxy.BusSession, &g.session) {
			anyActivated = true
		}
	}
	if g.system.configured {
		if g.activateBus(ctx, rt, dbusproxy.BusSystem, &g.system) {
			anyActivated = true
		}
	}

	if !anyActivated {
		return false
	}
	g.MarkActivated()
	return true
}

func (g *Gateway) activateBus(ctx context.Context, rt containerruntime.Runtime, bus dbusproxy.Bus, st *busState) bool {
	sup := dbusproxy.New(bus, g.gatewayDir, g.name)
	if err := sup.Activate(ctx, g.proxyBinary, st.rules); err != nil {
		return false
	}
	envVar := "DBUS_SESSION_BUS_ADDRESS"
	if bus == dbusproxy.BusSystem {
		envVar = "DBUS_SYSTEM_BUS_ADDRESS"
	}
	addr := fmt.Sprintf("unix:path=/gateways/%s", filepath.Base(sup.SocketPath()))
	if err := rt.SetEnv(ctx, envVar, addr); err != nil {
		_ = sup.Teardown()
		return false
	}
	st.supervisor = sup
	st.activated = true
	return true
}

func (g *Gateway) Teardown(ctx context.Context) bool {
	if !g.WasActivated() {
		return g.TeardownNoop()
	}

	ok := true
	if g.session.activated {
		if err := g.session.supervisor.Teardown(); err != nil {
			ok = false
		}
	}
	if g.system.activated {
		if err := g.system.supervisor.Teardown(); err != nil {
			ok = false
		}
	}
	g.MarkTornDown()
	return ok
}
