// Package networkgw implements the NetworkGateway: verifies the host
// bridge, brings the container's interface up with a generated address,
// installs iptables policy inside the container, and sets the default
// route.
package networkgw

import (
	"context"
	"encoding/json"
	"net"

	"scagent/internal/containerruntime"
	"scagent/internal/gateway"
	"scagent/internal/scerrors"
)

const ID = "network"

const defaultBridgeName = "sc-bridge"

type ruleConfig struct {
	Chain     string   `json:"chain"`
	Host      string   `json:"host"`
	PortAny   bool     `json:"port-any"`
	PortMulti bool     `json:"port-multi"`
	PortValue string   `json:"port-value"`
	Protocols []string `json:"protocols"`
	Target    string   `json:"target"`
}

type config struct {
	InternetAccess bool         `json:"internet-access"`
	Gateway        string       `json:"gateway"`
	Rules          []ruleConfig `json:"rules"`
}

// Bridge is the subset of netlinkhelper.Helper NetworkGateway needs.
type Bridge interface {
	IsBridgeAvailable(name string, expectedAddr net.IP) bool
	Up(ifindex int, ipv4 net.IP, prefixLen int) error
	Down(ifindex int) error
	SetDefaultGateway(ipv4 net.IP) error
}

// Gateway implements gateway.Gateway for container networking.
type Gateway struct {
	gateway.Base
	netlink    Bridge
	bridgeName string
	ifindex    int
	prefixLen  int

	gatewayIP      net.IP
	internetAccess bool
	rules          []ruleConfig
	lastErr        error
}

// New creates an unconfigured NetworkGateway driving the network
// interface at ifindex (prefixLen applied to its address) over
// netlink implementation nl, checking for the bridge named bridgeName.
func New(nl Bridge, bridgeName string, ifindex, prefixLen int) *Gateway {
	if bridgeName == "" {
		bridgeName = defaultBridgeName
	}
	return &Gateway{
		Base:       gateway.NewBase(ID),
		netlink:    nl,
		bridgeName: bridgeName,
		ifindex:    ifindex,
		prefixLen:  prefixLen,
	}
}

func (g *Gateway) SetConfig(fragments []json.RawMessage) bool {
	var internet bool
	var gw string
	var rules []ruleConfig
	for _, frag := range fragments {
		var cfg config
		if err := json.Unmarshal(frag, &cfg); err != nil {
			return false
		}
		if cfg.Gateway == "" {
			return false
		}
		internet = internet || cfg.InternetAccess
		gw = cfg.Gateway
		rules = append(rules, cfg.Rules...)
	}

	ip := net.ParseIP(gw)
	if ip == nil {
		return false
	}
	g.internetAccess = internet
	g.gatewayIP = ip
	g.rules = append(g.rules, rules...)
	g.MarkConfigured()
	return true
}

func (g *Gateway) Activate(ctx context.Context) bool {
	if !g.CanActivate() {
		g.RefuseActivateWithoutConfig()
		g.Teardown(ctx)
		return false
	}

	if !g.netlink.IsBridgeAvailable(g.bridgeName, g.gatewayIP) {
		g.lastErr = &scerrors.BridgeMissingError{Bridge: g.bridgeName, Address: g.gatewayIP.String()}
		return false
	}

	if err := g.netlink.Up(g.ifindex, g.gatewayIP, g.prefixLen); err != nil {
		g.lastErr = &scerrors.NetworkSetupFailureError{Step: "bring interface up", Err: err}
		return false
	}

	rt := g.Container()
	if err := g.installRules(ctx, rt); err != nil {
		g.lastErr = &scerrors.NetworkSetupFailureError{Step: "install iptables rules", Err: err}
		return false
	}

	if err := g.netlink.SetDefaultGateway(g.gatewayIP); err != nil {
		g.lastErr = &scerrors.NetworkSetupFailureError{Step: "set default gateway", Err: err}
		return false
	}

	g.MarkActivated()
	return true
}

// LastError returns the error from the most recent failed Activate call
// (e.g. *scerrors.BridgeMissingError), without changing the
// bool-returning Gateway interface.
func (g *Gateway) LastError() error { return g.lastErr }

func (g *Gateway) installRules(ctx context.Context, rt containerruntime.Runtime) error {
	var lines []string
	for _, r := range g.rules {
		entry := IPTableEntry{
			Chain:     Chain(r.Chain),
			Host:      r.Host,
			Ports:     PortSpec{Any: r.PortAny, Multi: r.PortMulti, Value: r.PortValue},
			Protocols: r.Protocols,
			Target:    Target(r.Target),
		}
		lines = append(lines, entry.InterpretRule()...)
	}

	defaultTarget := TargetDrop
	if g.internetAccess {
		defaultTarget = TargetAccept
	}
	lines = append([]string{
		DefaultPolicyLine(ChainInput, defaultTarget),
		DefaultPolicyLine(ChainOutput, defaultTarget),
	}, lines...)

	for _, line := range lines {
		if _, err := rt.Attach(ctx, containerruntime.ExecConfig{Command: []string{"sh", "-c", line}}); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gateway) Teardown(ctx context.Context) bool {
	if !g.WasActivated() {
		return g.TeardownNoop()
	}
	ok := true
	if err := g.netlink.Down(g.ifindex); err != nil {
		ok = false
	}
	g.MarkTornDown()
	return ok
}
