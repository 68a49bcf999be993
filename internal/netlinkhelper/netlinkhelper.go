// Package netlinkhelper is the host-side netlink client the NetworkGateway
// depends on: it enumerates links/addresses/routes, brings interfaces up
// and down, assigns addresses, and verifies the presence of the bridge the
// containers attach to.
//
// Requests are built directly on top of github.com/vishvananda/netlink/nl
// rather than that package's higher-level convenience wrappers, so that
// Helper can own and assert its own strictly-increasing per-socket
// sequence number. Every request is flagged NLM_F_REQUEST|NLM_F_ACK and
// waits synchronously for
// its ACK or NLMSG_DONE via (*nl.NetlinkRequest).Execute.
package netlinkhelper

import (
	"fmt"
	"net"
	"sync"

	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"
)

// NetlinkError reports a non-zero netlink error returned by the kernel.
type NetlinkError struct {
	Code int
}

func (e *NetlinkError) Error() string {
	return fmt.Sprintf("netlink error %d", e.Code)
}

// Helper is not safe for concurrent use from multiple goroutines — each
// container's network setup owns one Helper and drives it serially within
// its lifecycle task.
type Helper struct {
	mu  sync.Mutex
	seq uint32
	pid uint32

	links  []LinkInfo
	addrs  []AddrInfo
	routes []RouteInfo
}

// New creates a Helper. The sequence counter starts such that the first
// request sent carries sequence number 1.
func New() *Helper {
	return &Helper{pid: uint32(unix.Getpid())}
}

func (h *Helper) nextSeq() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	return h.seq
}

// newRequest builds a NetlinkRequest flagged NLM_F_REQUEST|NLM_F_ACK with
// our own monotonically increasing sequence number and process id rather
// than the nl package's own global counter.
func (h *Helper) newRequest(proto int, flags int) *nl.NetlinkRequest {
	req := nl.NewNetlinkRequest(proto, flags|unix.NLM_F_REQUEST|unix.NLM_F_ACK)
	req.Seq = h.nextSeq()
	req.Pid = h.pid
	return req
}

func (h *Helper) execute(req *nl.NetlinkRequest, resType uint16) ([][]byte, error) {
	msgs, err := req.Execute(unix.NETLINK_ROUTE, resType)
	if err != nil {
		if errno, ok := err.(unix.Errno); ok {
			return nil, &NetlinkError{Code: int(errno)}
		}
		return nil, err
	}
	return msgs, nil
}

// Links returns the cached link list populated by the last Dump.
func (h *Helper) Links() []LinkInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]LinkInfo, len(h.links))
	copy(out, h.links)
	return out
}

// Addrs returns the cached address list populated by the last Dump.
func (h *Helper) Addrs() []AddrInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]AddrInfo, len(h.addrs))
	copy(out, h.addrs)
	return out
}

// Routes returns the cached route list populated by the last Dump.
func (h *Helper) Routes() []RouteInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]RouteInfo, len(h.routes))
	copy(out, h.routes)
	return out
}

// LinkByName scans the cached link list for an interface with the given
// name. The second return value is false if no such link has been cached.
func (h *Helper) LinkByName(name string) (LinkInfo, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, l := range h.links {
		if l.Name == name {
			return l, true
		}
	}
	return LinkInfo{}, false
}

// IsBridgeAvailable scans the cached links for a link named name, then the
// cached addresses for any address on that link equal to expectedAddr.
func (h *Helper) IsBridgeAvailable(name string, expectedAddr net.IP) bool {
	link, ok := h.LinkByName(name)
	if !ok {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, a := range h.addrs {
		if a.LinkIndex != link.Index {
			continue
		}
		if a.Address.Equal(expectedAddr) || a.Local.Equal(expectedAddr) {
			return true
		}
	}
	return false
}
