package filegw

import (
	"context"
	"encoding/json"
	"testing"

	"scagent/internal/containerruntime/fakert"
)

// TestStore_MergeScenario drives the merge rules through their accept
// and reject paths.
func TestStore_MergeScenario(t *testing.T) {
	st := newStore()

	if ok := st.add(setting{PathHost: "/a", PathContainer: "/x", ReadOnly: true}); !ok {
		t.Fatal("first add should succeed")
	}
	if ok := st.add(setting{PathHost: "/a", PathContainer: "/x", ReadOnly: false}); !ok {
		t.Fatal("merge add with same host path should succeed")
	}
	if st.size() != 1 {
		t.Fatalf("size after merge = %d, want 1", st.size())
	}
	if st.settings[0].ReadOnly != false {
		t.Fatalf("merged ReadOnly = %v, want false (AND of true, false)", st.settings[0].ReadOnly)
	}

	if ok := st.add(setting{PathHost: "/b", PathContainer: "/x", ReadOnly: false}); ok {
		t.Fatal("add with differing host path for same container path should be rejected")
	}
	if st.size() != 1 {
		t.Fatalf("size after rejected add = %d, want 1", st.size())
	}
}

func TestSetConfig_ConflictInBatchLeavesStoreUntouched(t *testing.T) {
	g := New()
	frag, _ := json.Marshal([]setting{{PathHost: "/a", PathContainer: "/x"}})
	if ok := g.SetConfig([]json.RawMessage{frag}); !ok {
		t.Fatal("SetConfig failed")
	}

	// /b conflicts with the already-stored /a for the same container
	// path; the valid /c setting in the same batch must not be committed.
	bad, _ := json.Marshal([]setting{
		{PathHost: "/c", PathContainer: "/y"},
		{PathHost: "/b", PathContainer: "/x"},
	})
	if ok := g.SetConfig([]json.RawMessage{bad}); ok {
		t.Fatal("expected SetConfig with a conflicting setting to be rejected")
	}
	if g.Size() != 1 {
		t.Fatalf("size after rejected batch = %d, want 1", g.Size())
	}
	if got := g.store.settings[0].PathHost; got != "/a" {
		t.Fatalf("surviving setting host path = %q, want /a", got)
	}
}

func TestSetConfig_RejectsEnvVarPrefixWithoutName(t *testing.T) {
	g := New()
	frag, _ := json.Marshal([]setting{{
		PathHost: "/a", PathContainer: "/x", EnvVarPrefix: "file://",
	}})
	if ok := g.SetConfig([]json.RawMessage{frag}); ok {
		t.Fatal("expected SetConfig to reject env-var-prefix without env-var-name")
	}
}

func TestActivate_BindMountsSetsEnvAndSymlinks(t *testing.T) {
	g := New()
	frag, _ := json.Marshal([]setting{{
		PathHost: "/host/data", PathContainer: "/data",
		EnvVarName: "DATA_DIR", EnvVarPrefix: "file://", CreateSymlink: true,
	}})
	if ok := g.SetConfig([]json.RawMessage{frag}); !ok {
		t.Fatal("SetConfig failed")
	}

	rt := fakert.New()
	g.SetContainer(rt)
	if ok := g.Activate(context.Background()); !ok {
		t.Fatal("Activate failed")
	}

	if got := rt.Env()["DATA_DIR"]; got != "file:///data" {
		t.Errorf("DATA_DIR = %q, want file:///data", got)
	}
	if len(rt.Calls("CreateSymlink")) != 1 {
		t.Errorf("expected 1 CreateSymlink call, got %d", len(rt.Calls("CreateSymlink")))
	}
}

func TestActivate_WithoutConfig_Fails(t *testing.T) {
	g := New()
	if ok := g.Activate(context.Background()); ok {
		t.Fatal("expected Activate without configuration to fail")
	}
}
