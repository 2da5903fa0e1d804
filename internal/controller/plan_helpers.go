package controller

import (
	"fmt"
	"strings"
)

// FormatPlan returns a human-readable string representation of a Plan.
func FormatPlan(p *Plan) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Zone %s (%s)\n", p.Zone, p.Name)

	if len(p.Survivors) > 0 {
		fmt.Fprintf(&b, "  Keep:\n")
		for _, id := range p.SurvivorIDs() {
			fmt.Fprintf(&b, "    = %s (%s)\n", p.Survivors[id], id)
		}
	}

	if len(p.Removals) > 0 {
		fmt.Fprintf(&b, "  Remove:\n")
		for _, id := range p.RemovalIDs() {
			fmt.Fprintf(&b, "    - %s (%s)\n", p.Removals[id], id)
		}
	}

	if len(p.Additions) > 0 {
		fmt.Fprintf(&b, "  Add:\n")
		for _, addr := range p.Additions {
			fmt.Fprintf(&b, "    + %s\n", addr)
		}
	}

	if len(p.Rejections) > 0 {
		fmt.Fprintf(&b, "  Ignored:\n")
		for _, r := range p.Rejections {
			fmt.Fprintf(&b, "    ! %s:%d state=%s reason=%s\n", r.Address, r.Port, r.State, r.Reason)
		}
	}

	if p.DaemonErr != nil {
		fmt.Fprintf(&b, "  Daemon: unavailable (%v)\n", p.DaemonErr)
	}

	fmt.Fprintf(&b, "  Total: %d\n", p.Total())
	return b.String()
}
