package dns

import (
	"context"
	"errors"
)

// ErrZoneNotFound is returned by ResolveZone when no zone matches the domain.
var ErrZoneNotFound = errors.New("zone not found")

// DefaultTTL is the TTL applied to created records when a zone sets none.
const DefaultTTL = 300

// Record is an address record to be published under a name.
type Record struct {
	Name    string // FQDN, e.g. "seeds.example.org"
	Address string // IPv4 address
	TTL     int    // 0 = DefaultTTL
	Proxied bool   // always false for peer records
}

// Provider is the interface that DNS providers must implement.
//
// Records are addressed by the provider-assigned identifier returned from
// ListRecords; the address itself is not a stable handle.
type Provider interface {
	ResolveZone(ctx context.Context, domain string) (string, error)
	ListRecords(ctx context.Context, zoneID, fqdn string) (map[string]string, error)
	DeleteRecord(ctx context.Context, zoneID, recordID string) error
	CreateRecord(ctx context.Context, zoneID string, record Record) error
}
