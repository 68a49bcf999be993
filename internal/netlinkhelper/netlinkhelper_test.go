package netlinkhelper

import (
	"net"
	"testing"
)

func TestNextSeq_StartsAtOneAndStrictlyIncreases(t *testing.T) {
	h := New()
	var last uint32
	for i := 0; i < 5; i++ {
		seq := h.nextSeq()
		if i == 0 && seq != 1 {
			t.Fatalf("first sequence number = %d, want 1", seq)
		}
		if seq <= last {
			t.Fatalf("sequence number %d did not strictly increase past %d", seq, last)
		}
		last = seq
	}
}

func TestNewRequest_CarriesOwnSeqAndPid(t *testing.T) {
	h := New()
	r1 := h.newRequest(0, 0)
	r2 := h.newRequest(0, 0)
	if r2.Seq <= r1.Seq {
		t.Errorf("second request seq %d did not exceed first %d", r2.Seq, r1.Seq)
	}
	if r1.Pid != h.pid || r2.Pid != h.pid {
		t.Errorf("request pid does not match helper pid")
	}
}

func TestBroadcastAddr(t *testing.T) {
	ip := net.ParseIP("10.0.3.100").To4()
	got := broadcastAddr(ip, 24)
	want := net.ParseIP("10.0.3.255").To4()
	if !got.Equal(want) {
		t.Errorf("broadcastAddr = %v, want %v", got, want)
	}
}

func TestIsBridgeAvailable(t *testing.T) {
	h := New()
	h.links = []LinkInfo{{Index: 3, Name: "sc-bridge"}}
	h.addrs = []AddrInfo{{LinkIndex: 3, Local: net.ParseIP("192.168.1.1")}}

	if !h.IsBridgeAvailable("sc-bridge", net.ParseIP("192.168.1.1")) {
		t.Error("expected bridge to be available")
	}
	if h.IsBridgeAvailable("sc-bridge", net.ParseIP("192.168.1.2")) {
		t.Error("expected bridge with wrong address to be unavailable")
	}
	if h.IsBridgeAvailable("missing", net.ParseIP("192.168.1.1")) {
		t.Error("expected unknown bridge name to be unavailable")
	}
}

func TestLinkByName(t *testing.T) {
	h := New()
	h.links = []LinkInfo{{Index: 1, Name: "lo", Type: arphrdLoopback}, {Index: 2, Name: "eth0"}}

	link, ok := h.LinkByName("lo")
	if !ok || !link.IsLoopback() {
		t.Errorf("expected loopback link, got %+v ok=%v", link, ok)
	}
	if _, ok := h.LinkByName("nope"); ok {
		t.Error("expected LinkByName to report missing link")
	}
}
