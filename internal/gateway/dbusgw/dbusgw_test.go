package dbusgw

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"scagent/internal/containerruntime/fakert"
)

func fakeProxyScript(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-proxy.sh")
	script := "#!/bin/sh\ncat >/dev/null\ntouch \"$1\"\ntrap 'rm -f \"$1\"; exit 0' TERM\nwhile true; do sleep 1; done\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake proxy script: %v", err)
	}
	return path
}

func TestActivate_SystemBusOnly_Succeeds(t *testing.T) {
	gatewayDir := t.TempDir()
	g := New("c1", gatewayDir, fakeProxyScript(t))

	frag, _ := json.Marshal(rawConfig{System: []json.RawMessage{json.RawMessage(`{"rule":"allow"}`)}})
	if ok := g.SetConfig([]json.RawMessage{frag}); !ok {
		t.Fatal("SetConfig failed")
	}

	rt := fakert.New()
	g.SetContainer(rt)
	if ok := g.Activate(context.Background()); !ok {
		t.Fatal("Activate failed")
	}

	if got := rt.Env()["DBUS_SYSTEM_BUS_ADDRESS"]; got == "" {
		t.Error("expected DBUS_SYSTEM_BUS_ADDRESS to be set in container environment")
	}

	if ok := g.Teardown(context.Background()); !ok {
		t.Fatal("Teardown failed")
	}
}

func TestSetConfig_NeitherBusConfigured_Rejected(t *testing.T) {
	g := New("c1", t.TempDir(), "/bin/true")
	frag, _ := json.Marshal(rawConfig{})
	if ok := g.SetConfig([]json.RawMessage{frag}); ok {
		t.Fatal("expected SetConfig with no bus rules to be rejected")
	}
}

func TestTeardown_NeverActivated_Succeeds(t *testing.T) {
	g := New("c1", t.TempDir(), "/bin/true")
	if ok := g.Teardown(context.Background()); !ok {
		t.Fatal("expected Teardown on never-activated gateway to succeed")
	}
}
