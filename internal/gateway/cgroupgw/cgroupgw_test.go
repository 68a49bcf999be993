package cgroupgw

import (
	"context"
	"encoding/json"
	"testing"

	systemddbus "github.com/coreos/go-systemd/v22/dbus"
)

type fakeConn struct {
	unit  string
	props []systemddbus.Property
	err   error
}

func (f *fakeConn) SetUnitProperties(unit string, runtime bool, properties ...systemddbus.Property) error {
	if f.err != nil {
		return f.err
	}
	f.unit = unit
	f.props = append(f.props, properties...)
	return nil
}

func TestActivate_WritesPropertiesToUnit(t *testing.T) {
	conn := &fakeConn{}
	g := New("scagent-c1.scope", conn)

	frag, _ := json.Marshal([]setting{
		{Setting: "MemoryMax", Value: "268435456"},
		{Setting: "CPUWeight", Value: "100"},
	})
	if ok := g.SetConfig([]json.RawMessage{frag}); !ok {
		t.Fatal("SetConfig failed")
	}
	if ok := g.Activate(context.Background()); !ok {
		t.Fatal("Activate failed")
	}

	if conn.unit != "scagent-c1.scope" {
		t.Errorf("unit = %q, want scagent-c1.scope", conn.unit)
	}
	if len(conn.props) != 2 {
		t.Fatalf("expected 2 properties written, got %d", len(conn.props))
	}
}

func TestSetConfig_RejectsMissingSetting(t *testing.T) {
	g := New("scagent-c1.scope", &fakeConn{})
	frag, _ := json.Marshal([]setting{{Value: "no-key"}})
	if ok := g.SetConfig([]json.RawMessage{frag}); ok {
		t.Fatal("expected SetConfig to reject entry without a setting name")
	}
}
