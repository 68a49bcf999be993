package pulsegw

import (
	"context"
	"encoding/json"
	"testing"

	"scagent/internal/containerruntime/fakert"
)

func TestActivate_AudioEnabled_BindMounts(t *testing.T) {
	g := New()
	frag, _ := json.Marshal(config{Audio: true})
	if ok := g.SetConfig([]json.RawMessage{frag}); !ok {
		t.Fatal("SetConfig failed")
	}

	rt := fakert.New()
	g.SetContainer(rt)
	if ok := g.Activate(context.Background()); !ok {
		t.Fatal("Activate failed")
	}
	if len(rt.Calls("BindMount")) != 1 {
		t.Errorf("expected one BindMount call, got %d", len(rt.Calls("BindMount")))
	}
}

func TestActivate_AudioDisabled_NoBindMount(t *testing.T) {
	g := New()
	frag, _ := json.Marshal(config{Audio: false})
	if ok := g.SetConfig([]json.RawMessage{frag}); !ok {
		t.Fatal("SetConfig failed")
	}

	rt := fakert.New()
	g.SetContainer(rt)
	if ok := g.Activate(context.Background()); !ok {
		t.Fatal("Activate failed")
	}
	if len(rt.Calls("BindMount")) != 0 {
		t.Errorf("expected no BindMount calls, got %d", len(rt.Calls("BindMount")))
	}
}
