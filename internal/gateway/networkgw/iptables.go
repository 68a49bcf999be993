package networkgw

import (
	"fmt"
)

// Chain identifies which iptables chain a rule targets.
type Chain string

const (
	ChainInput  Chain = "INPUT"
	ChainOutput Chain = "OUTPUT"
)

// Target is the terminal action of a rule or chain default policy.
type Target string

const (
	TargetAccept Target = "ACCEPT"
	TargetDrop   Target = "DROP"
	TargetReject Target = "REJECT"
)

// PortSpec describes a rule's port clause.
type PortSpec struct {
	Any   bool
	Multi bool
	Value string
}

// IPTableEntry is one iptables rule, rendered into the literal command
// line the host issues.
type IPTableEntry struct {
	Chain     Chain
	Host      string
	Ports     PortSpec
	Protocols []string
	Target    Target
}

// InterpretRule renders e into one `iptables -A ...` line per protocol
// (or a single "-p all" line when no protocol is specified)
// and a --sport/--dport or multiport clause per the entry's port spec.
func (e IPTableEntry) InterpretRule() []string {
	hostFlag := "-s"
	portFlag := "--sport"
	multiFlag := "--sports"
	if e.Chain == ChainOutput {
		hostFlag = "-d"
		portFlag = "--dport"
		multiFlag = "--dports"
	}

	portsClause := e.portsClause(portFlag, multiFlag)

	protocols := e.Protocols
	if len(protocols) == 0 {
		line := fmt.Sprintf("iptables -A %s %s %s -p all", e.Chain, hostFlag, e.Host)
		if portsClause != "" {
			line += " " + portsClause
		}
		line += fmt.Sprintf(" -j %s", e.Target)
		return []string{line}
	}

	lines := make([]string, 0, len(protocols))
	for _, proto := range protocols {
		line := fmt.Sprintf("iptables -A %s %s %s -p %s", e.Chain, hostFlag, e.Host, proto)
		if portsClause != "" {
			line += " " + portsClause
		}
		line += fmt.Sprintf(" -j %s", e.Target)
		lines = append(lines, line)
	}
	return lines
}

func (e IPTableEntry) portsClause(single, multi string) string {
	if e.Ports.Any || e.Ports.Value == "" {
		return ""
	}
	if e.Ports.Multi {
		return fmt.Sprintf("--match multiport %s %s", multi, e.Ports.Value)
	}
	return fmt.Sprintf("%s %s", single, e.Ports.Value)
}

// DefaultPolicyLine renders a chain's default-target policy line.
func DefaultPolicyLine(chain Chain, target Target) string {
	return fmt.Sprintf("iptables -P %s %s", chain, target)
}
