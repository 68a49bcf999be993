package networkgw

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"

	"scagent/internal/containerruntime/fakert"
	"scagent/internal/scerrors"
)

type fakeBridge struct {
	available  bool
	upErr      error
	downErr    error
	defGwErr   error
	upCalls    int
	downCalls  int
}

func (b *fakeBridge) IsBridgeAvailable(name string, expectedAddr net.IP) bool { return b.available }
func (b *fakeBridge) Up(ifindex int, ipv4 net.IP, prefixLen int) error {
	b.upCalls++
	return b.upErr
}
func (b *fakeBridge) Down(ifindex int) error {
	b.downCalls++
	return b.downErr
}
func (b *fakeBridge) SetDefaultGateway(ipv4 net.IP) error { return b.defGwErr }

func TestIPTableEntry_InterpretRule_Scenarios(t *testing.T) {
	e1 := IPTableEntry{
		Chain: ChainInput, Host: "127.0.0.1/16",
		Ports: PortSpec{Multi: true, Value: "80,8080"}, Target: TargetAccept,
	}
	want1 := []string{"iptables -A INPUT -s 127.0.0.1/16 -p all --match multiport --sports 80,8080 -j ACCEPT"}
	if got := e1.InterpretRule(); !equalSlices(got, want1) {
		t.Errorf("scenario 1 = %v, want %v", got, want1)
	}

	e2 := IPTableEntry{
		Chain: ChainInput, Host: "127.0.0.1/16",
		Ports: PortSpec{Value: "80"}, Protocols: []string{"tcp"}, Target: TargetAccept,
	}
	want2 := []string{"iptables -A INPUT -s 127.0.0.1/16 -p tcp --sport 80 -j ACCEPT"}
	if got := e2.InterpretRule(); !equalSlices(got, want2) {
		t.Errorf("scenario 2 = %v, want %v", got, want2)
	}

	e3 := IPTableEntry{
		Chain: ChainOutput, Host: "127.0.0.1/16",
		Ports: PortSpec{Multi: true, Value: "80:85"}, Protocols: []string{"tcp"}, Target: TargetAccept,
	}
	want3 := []string{"iptables -A OUTPUT -d 127.0.0.1/16 -p tcp --match multiport --dports 80:85 -j ACCEPT"}
	if got := e3.InterpretRule(); !equalSlices(got, want3) {
		t.Errorf("scenario 3 = %v, want %v", got, want3)
	}
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDefaultPolicyLine(t *testing.T) {
	if got := DefaultPolicyLine(ChainInput, TargetDrop); got != "iptables -P INPUT DROP" {
		t.Errorf("DefaultPolicyLine = %q", got)
	}
}

func TestActivate_BridgeMissing_AbortsWithBridgeMissingError(t *testing.T) {
	bridge := &fakeBridge{available: false}
	g := New(bridge, "sc-bridge", 3, 24)

	frag, _ := json.Marshal(config{Gateway: "192.168.1.1"})
	if ok := g.SetConfig([]json.RawMessage{frag}); !ok {
		t.Fatal("SetConfig failed")
	}
	rt := fakert.New()
	g.SetContainer(rt)

	if ok := g.Activate(context.Background()); ok {
		t.Fatal("expected Activate to fail when bridge is missing")
	}
	var bridgeErr *scerrors.BridgeMissingError
	if !errors.As(g.LastError(), &bridgeErr) {
		t.Fatalf("expected BridgeMissingError, got %v", g.LastError())
	}
	if bridge.upCalls != 0 {
		t.Error("expected Up to not be called when bridge check fails")
	}
}

func TestActivate_NetlinkFailure_WrappedAsNetworkSetupFailure(t *testing.T) {
	upErr := errors.New("netlink error 19")
	bridge := &fakeBridge{available: true, upErr: upErr}
	g := New(bridge, "sc-bridge", 3, 24)

	frag, _ := json.Marshal(config{Gateway: "192.168.1.1"})
	if ok := g.SetConfig([]json.RawMessage{frag}); !ok {
		t.Fatal("SetConfig failed")
	}
	g.SetContainer(fakert.New())

	if ok := g.Activate(context.Background()); ok {
		t.Fatal("expected Activate to fail when Up fails")
	}
	var setupErr *scerrors.NetworkSetupFailureError
	if !errors.As(g.LastError(), &setupErr) {
		t.Fatalf("expected NetworkSetupFailureError, got %v", g.LastError())
	}
	if !errors.Is(g.LastError(), upErr) {
		t.Errorf("expected wrapped error to unwrap to the netlink error, got %v", g.LastError())
	}
}

func TestActivate_Success_BringsUpAndSetsRoute(t *testing.T) {
	bridge := &fakeBridge{available: true}
	g := New(bridge, "sc-bridge", 3, 24)

	frag, _ := json.Marshal(config{Gateway: "192.168.1.1", InternetAccess: true})
	if ok := g.SetConfig([]json.RawMessage{frag}); !ok {
		t.Fatal("SetConfig failed")
	}
	rt := fakert.New()
	// Gateways activate against a preloaded container: created and started.
	_ = rt.Create(context.Background())
	_, _ = rt.Start(context.Background())
	g.SetContainer(rt)

	if ok := g.Activate(context.Background()); !ok {
		t.Fatalf("Activate failed: %v", g.LastError())
	}
	if bridge.upCalls != 1 {
		t.Errorf("Up calls = %d, want 1", bridge.upCalls)
	}
}

func TestTeardown_BringsInterfaceDown(t *testing.T) {
	bridge := &fakeBridge{available: true}
	g := New(bridge, "sc-bridge", 3, 24)
	frag, _ := json.Marshal(config{Gateway: "192.168.1.1"})
	g.SetConfig([]json.RawMessage{frag})
	rt := fakert.New()
	_ = rt.Create(context.Background())
	_, _ = rt.Start(context.Background())
	g.SetContainer(rt)
	if ok := g.Activate(context.Background()); !ok {
		t.Fatalf("Activate failed: %v", g.LastError())
	}

	if ok := g.Teardown(context.Background()); !ok {
		t.Fatal("Teardown failed")
	}
	if bridge.downCalls != 1 {
		t.Errorf("Down calls = %d, want 1", bridge.downCalls)
	}
}
