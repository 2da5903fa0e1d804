package controller

import (
	"sort"
)

// Reasons a peer connection is not published.
const (
	ReasonPublished   = "published"
	ReasonState       = "state"
	ReasonPort        = "port"
	ReasonNotIPv4     = "not-ipv4"
	ReasonDuplicate   = "duplicate"
	ReasonUnreachable = "unreachable"
)

// Rejection records why a peer connection was not added.
type Rejection struct {
	Address string
	Port    int
	State   string
	Reason  string
}

// Plan is the record diff for one zone and one cycle.
type Plan struct {
	Zone   string
	ZoneID string
	Name   string

	// Current is every published record, keyed by record id.
	Current map[string]string
	// Survivors are current records whose address is reachable.
	Survivors map[string]string
	// Removals are current records that are not survivors.
	Removals map[string]string
	// Additions are addresses of validated peers that are not yet published.
	Additions []string
	// Rejections lists every peer connection that was filtered out.
	Rejections []Rejection
	// DaemonErr is set when the peer snapshot could not be fetched; the plan
	// then only prunes.
	DaemonErr error
}

func newPlan(zone, zoneID, name string, current map[string]string) *Plan {
	return &Plan{
		Zone:      zone,
		ZoneID:    zoneID,
		Name:      name,
		Current:   current,
		Survivors: make(map[string]string),
		Removals:  make(map[string]string),
	}
}

// Total is the number of live entries once the plan is applied.
func (p *Plan) Total() int {
	return len(p.Survivors) + len(p.Additions)
}

// Empty reports whether applying the plan would change nothing.
func (p *Plan) Empty() bool {
	return len(p.Removals) == 0 && len(p.Additions) == 0
}

// RemovalIDs returns the ids to delete in a stable order.
func (p *Plan) RemovalIDs() []string {
	return sortedKeys(p.Removals)
}

// SurvivorIDs returns the surviving ids in a stable order.
func (p *Plan) SurvivorIDs() []string {
	return sortedKeys(p.Survivors)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
