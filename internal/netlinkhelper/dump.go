package netlinkhelper

import (
	"net"

	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"
)

// Dump sends RTM_GETLINK, RTM_GETADDR and RTM_GETROUTE with NLM_F_DUMP and
// repopulates the local link/address/route caches.
func (h *Helper) Dump() error {
	links, err := h.dumpLinks()
	if err != nil {
		return err
	}
	addrs, err := h.dumpAddrs()
	if err != nil {
		return err
	}
	routes, err := h.dumpRoutes()
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.links = links
	h.addrs = addrs
	h.routes = routes
	h.mu.Unlock()
	return nil
}

func (h *Helper) dumpLinks() ([]LinkInfo, error) {
	req := h.newRequest(unix.RTM_GETLINK, unix.NLM_F_DUMP)
	req.AddData(nl.NewIfInfomsg(unix.AF_UNSPEC))

	msgs, err := h.execute(req, unix.RTM_NEWLINK)
	if err != nil {
		return nil, err
	}

	out := make([]LinkInfo, 0, len(msgs))
	for _, m := range msgs {
		info, ok := parseLink(m)
		if ok {
			out = append(out, info)
		}
	}
	return out, nil
}

func parseLink(data []byte) (LinkInfo, bool) {
	if len(data) < nl.SizeofIfInfomsg {
		return LinkInfo{}, false
	}
	msg := nl.DeserializeIfInfomsg(data)

	attrs, err := nl.ParseRouteAttr(data[nl.SizeofIfInfomsg:])
	if err != nil {
		return LinkInfo{}, false
	}

	info := LinkInfo{
		Index: int(msg.Index),
		Flags: msg.Flags,
		Type:  msg.Type,
	}
	for _, a := range attrs {
		switch int(a.Attr.Type) {
		case unix.IFLA_IFNAME:
			info.Name = nl.BytesToString(a.Value)
		case unix.IFLA_ADDRESS:
			info.HardwareAddr = net.HardwareAddr(a.Value)
		}
	}
	return info, true
}

func (h *Helper) dumpAddrs() ([]AddrInfo, error) {
	req := h.newRequest(unix.RTM_GETADDR, unix.NLM_F_DUMP)
	req.AddData(nl.NewIfAddrmsg(unix.AF_INET))

	msgs, err := h.execute(req, unix.RTM_NEWADDR)
	if err != nil {
		return nil, err
	}

	out := make([]AddrInfo, 0, len(msgs))
	for _, m := range msgs {
		info, ok := parseAddr(m)
		if ok {
			out = append(out, info)
		}
	}
	return out, nil
}

func parseAddr(data []byte) (AddrInfo, bool) {
	if len(data) < nl.SizeofIfAddrmsg {
		return AddrInfo{}, false
	}
	msg := nl.DeserializeIfAddrmsg(data)

	attrs, err := nl.ParseRouteAttr(data[nl.SizeofIfAddrmsg:])
	if err != nil {
		return AddrInfo{}, false
	}

	info := AddrInfo{
		LinkIndex: int(msg.Index),
		PrefixLen: int(msg.Prefixlen),
	}
	for _, a := range attrs {
		switch int(a.Attr.Type) {
		case unix.IFA_ADDRESS:
			info.Address = net.IP(a.Value)
		case unix.IFA_LOCAL:
			info.Local = net.IP(a.Value)
		}
	}
	return info, true
}

func (h *Helper) dumpRoutes() ([]RouteInfo, error) {
	req := h.newRequest(unix.RTM_GETROUTE, unix.NLM_F_DUMP)
	req.AddData(nl.NewRtMsg())

	msgs, err := h.execute(req, unix.RTM_NEWROUTE)
	if err != nil {
		return nil, err
	}

	out := make([]RouteInfo, 0, len(msgs))
	for _, m := range msgs {
		info, ok := parseRoute(m)
		if ok {
			out = append(out, info)
		}
	}
	return out, nil
}

func parseRoute(data []byte) (RouteInfo, bool) {
	if len(data) < nl.SizeofRtMsg {
		return RouteInfo{}, false
	}
	msg := nl.DeserializeRtMsg(data)

	attrs, err := nl.ParseRouteAttr(data[nl.SizeofRtMsg:])
	if err != nil {
		return RouteInfo{}, false
	}

	info := RouteInfo{Table: int(msg.Table)}
	for _, a := range attrs {
		switch int(a.Attr.Type) {
		case unix.RTA_OIF:
			info.LinkIndex = int(nl.NativeEndian().Uint32(a.Value))
		case unix.RTA_GATEWAY:
			info.Gateway = net.IP(a.Value)
		case unix.RTA_DST:
			info.Dst = &net.IPNet{IP: net.IP(a.Value), Mask: net.CIDRMask(int(msg.Dst_len), 32)}
		}
	}
	return info, true
}
