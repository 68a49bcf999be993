package gatewayconfig

import (
	"encoding/json"
	"reflect"
	"testing"
)

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func TestAppendArray_PreservesOrder(t *testing.T) {
	c := New()
	if err := c.AppendArray("file", []json.RawMessage{raw(`{"a":1}`), raw(`{"a":2}`)}); err != nil {
		t.Fatal(err)
	}
	got := c.Get("file")
	want := []json.RawMessage{raw(`{"a":1}`), raw(`{"a":2}`)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Get(file) = %s, want %s", got, want)
	}
}

func TestMerge_ConcatenatesPerID(t *testing.T) {
	a := New()
	_ = a.AppendArray("net", []json.RawMessage{raw(`1`)})
	_ = a.AppendArray("file", []json.RawMessage{raw(`"x"`)})

	b := New()
	_ = b.AppendArray("net", []json.RawMessage{raw(`2`)})
	_ = b.AppendArray("dbus", []json.RawMessage{raw(`3`)})

	if err := a.Merge(b); err != nil {
		t.Fatal(err)
	}

	got := a.Get("net")
	want := []json.RawMessage{raw(`1`), raw(`2`)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Get(net) = %s, want %s", got, want)
	}
	if got := a.Get("file"); !reflect.DeepEqual(got, []json.RawMessage{raw(`"x"`)}) {
		t.Errorf("Get(file) = %s", got)
	}
	if got := a.Get("dbus"); !reflect.DeepEqual(got, []json.RawMessage{raw(`3`)}) {
		t.Errorf("Get(dbus) = %s", got)
	}
}

func TestGet_ReturnsDeepCopy(t *testing.T) {
	c := New()
	_ = c.Append("net", raw(`{"k":"v"}`))

	got := c.Get("net")
	got[0] = raw(`"mutated"`)

	again := c.Get("net")
	if string(again[0]) != `{"k":"v"}` {
		t.Errorf("mutating Get() result leaked into Configuration: %s", again[0])
	}
}

func TestGet_UnknownID(t *testing.T) {
	c := New()
	if got := c.Get("nope"); got != nil {
		t.Errorf("Get(unknown) = %v, want nil", got)
	}
}

func TestEmpty(t *testing.T) {
	c := New()
	if !c.Empty() {
		t.Error("new Configuration should be empty")
	}
	_ = c.Append("net", raw(`1`))
	if c.Empty() {
		t.Error("Configuration with a fragment should not be empty")
	}
}

func TestClone_IsIndependent(t *testing.T) {
	c := New()
	_ = c.Append("net", raw(`1`))

	clone := c.Clone()
	_ = clone.Append("net", raw(`2`))

	if got := c.Get("net"); len(got) != 1 {
		t.Errorf("mutating clone leaked into original: %s", got)
	}
	if got := clone.Get("net"); len(got) != 2 {
		t.Errorf("clone missing appended fragment: %s", got)
	}
}

func TestIds(t *testing.T) {
	c := New()
	_ = c.Append("net", raw(`1`))
	_ = c.Append("file", raw(`1`))

	ids := c.Ids()
	seen := map[string]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen["net"] || !seen["file"] || len(ids) != 2 {
		t.Errorf("Ids() = %v", ids)
	}
}
