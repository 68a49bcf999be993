package netlinkhelper

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"
)

// Up brings ifindex up and, unless it is the loopback device, assigns it
// ipv4/prefixLen with the matching broadcast address.
func (h *Helper) Up(ifindex int, ipv4 net.IP, prefixLen int) error {
	link, known := h.linkByIndex(ifindex)

	req := h.newRequest(unix.RTM_NEWLINK, unix.NLM_F_CREATE)
	msg := nl.NewIfInfomsg(unix.AF_UNSPEC)
	msg.Index = int32(ifindex)
	msg.Flags = unix.IFF_UP
	msg.Change = unix.IFF_UP
	req.AddData(msg)
	if _, err := h.execute(req, 0); err != nil {
		return fmt.Errorf("bring up link %d: %w", ifindex, err)
	}

	if known && link.IsLoopback() {
		return nil
	}

	addrReq := h.newRequest(unix.RTM_NEWADDR, unix.NLM_F_CREATE|unix.NLM_F_REPLACE)
	addrMsg := nl.NewIfAddrmsg(unix.AF_INET)
	addrMsg.Index = uint32(ifindex)
	addrMsg.Prefixlen = uint8(prefixLen)
	addrReq.AddData(addrMsg)

	ip4 := ipv4.To4()
	if ip4 == nil {
		return fmt.Errorf("up: %v is not an IPv4 address", ipv4)
	}
	bcast := broadcastAddr(ip4, prefixLen)

	addrReq.AddData(nl.NewRtAttr(unix.IFA_LOCAL, ip4))
	addrReq.AddData(nl.NewRtAttr(unix.IFA_BROADCAST, bcast))
	if _, err := h.execute(addrReq, 0); err != nil {
		return fmt.Errorf("set address on link %d: %w", ifindex, err)
	}
	return nil
}

// Down deletes every cached address belonging to ifindex, then deletes the
// link itself, so no address record outlives its link.
func (h *Helper) Down(ifindex int) error {
	for _, a := range h.Addrs() {
		if a.LinkIndex != ifindex {
			continue
		}
		req := h.newRequest(unix.RTM_DELADDR, 0)
		msg := nl.NewIfAddrmsg(unix.AF_INET)
		msg.Index = uint32(ifindex)
		msg.Prefixlen = uint8(a.PrefixLen)
		req.AddData(msg)
		if local := a.Local.To4(); local != nil {
			req.AddData(nl.NewRtAttr(unix.IFA_LOCAL, local))
		}
		if _, err := h.execute(req, 0); err != nil {
			return fmt.Errorf("delete address on link %d: %w", ifindex, err)
		}
	}

	req := h.newRequest(unix.RTM_DELLINK, 0)
	msg := nl.NewIfInfomsg(unix.AF_UNSPEC)
	msg.Index = int32(ifindex)
	req.AddData(msg)
	if _, err := h.execute(req, 0); err != nil {
		return fmt.Errorf("delete link %d: %w", ifindex, err)
	}
	return nil
}

// SetDefaultGateway installs the host's default route to ipv4 via an
// RTM_NEWROUTE in the main table, static protocol, universe scope,
// unicast type.
func (h *Helper) SetDefaultGateway(ipv4 net.IP) error {
	ip4 := ipv4.To4()
	if ip4 == nil {
		return fmt.Errorf("set default gateway: %v is not an IPv4 address", ipv4)
	}

	req := h.newRequest(unix.RTM_NEWROUTE, unix.NLM_F_CREATE|unix.NLM_F_REPLACE)
	msg := nl.NewRtMsg()
	msg.Family = unix.AF_INET
	msg.Table = unix.RT_TABLE_MAIN
	msg.Protocol = unix.RTPROT_STATIC
	msg.Scope = unix.RT_SCOPE_UNIVERSE
	msg.Type = unix.RTN_UNICAST
	req.AddData(msg)
	req.AddData(nl.NewRtAttr(unix.RTA_GATEWAY, ip4))

	if _, err := h.execute(req, 0); err != nil {
		return fmt.Errorf("set default gateway to %v: %w", ipv4, err)
	}
	return nil
}

func (h *Helper) linkByIndex(ifindex int) (LinkInfo, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, l := range h.links {
		if l.Index == ifindex {
			return l, true
		}
	}
	return LinkInfo{}, false
}

func broadcastAddr(ip net.IP, prefixLen int) net.IP {
	mask := net.CIDRMask(prefixLen, 32)
	bcast := make(net.IP, 4)
	for i := range bcast {
		bcast[i] = ip[i] | ^mask[i]
	}
	return bcast
}
