package envgw

import (
	"context"
	"encoding/json"
	"testing"

	"scagent/internal/containerruntime/fakert"
)

func TestActivate_SetsAndAppendsEnv(t *testing.T) {
	g := New()
	frag, _ := json.Marshal([]entry{
		{Name: "PATH", Value: "/usr/bin"},
		{Name: "PATH", Value: "/opt/bin", Append: true},
	})
	if ok := g.SetConfig([]json.RawMessage{frag}); !ok {
		t.Fatal("SetConfig failed")
	}

	rt := fakert.New()
	g.SetContainer(rt)
	if ok := g.Activate(context.Background()); !ok {
		t.Fatal("Activate failed")
	}

	if got := rt.Env()["PATH"]; got != "/usr/bin:/opt/bin" {
		t.Errorf("PATH = %q, want /usr/bin:/opt/bin", got)
	}
}

func TestSetConfig_RejectsMissingName(t *testing.T) {
	g := New()
	frag, _ := json.Marshal([]entry{{Value: "no-name"}})
	if ok := g.SetConfig([]json.RawMessage{frag}); ok {
		t.Fatal("expected SetConfig to reject entry without a name")
	}
}

func TestActivate_WithoutConfig_ForcesTeardown(t *testing.T) {
	g := New()
	if ok := g.Activate(context.Background()); ok {
		t.Fatal("expected Activate without configuration to fail")
	}
	if g.State().String() != "TORN_DOWN" {
		t.Fatalf("state = %v, want TORN_DOWN", g.State())
	}
}

func TestTeardown_NeverActivated_Succeeds(t *testing.T) {
	g := New()
	if ok := g.Teardown(context.Background()); !ok {
		t.Fatal("expected Teardown on never-activated gateway to succeed")
	}
}
