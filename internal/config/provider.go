package config

import (
	"fmt"
	"os"
	"time"

	mdns "github.com/miekg/dns"

	"github.com/yuriy-kovalchuk/yk-seed-dns/internal/dns"
)

// Defaults for optional zone settings.
const (
	DefaultEligibleState = "state_normal"
	DefaultProbeWorkers  = 8
)

// ZoneConfig describes one DNS name kept in sync with one daemon.
type ZoneConfig struct {
	Name string `yaml:"-"`

	Provider     string `yaml:"provider"`
	Domain       string `yaml:"domain"`
	Subdomain    string `yaml:"subdomain"`
	RequiredPort int    `yaml:"required_port"`
	RPCHost      string `yaml:"rpc_host"`
	RPCPort      int    `yaml:"rpc_port"`
	Debug        bool   `yaml:"debug"`

	// Login and Password are the legacy credential keys; they are handed to
	// the provider as the "login" and "password" settings.
	Login    string            `yaml:"login"`
	Password string            `yaml:"password"`
	Settings map[string]string `yaml:"settings"`

	TTL           int           `yaml:"ttl"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
	RPCTimeout    time.Duration `yaml:"rpc_timeout"`
	ProbeWorkers  int           `yaml:"probe_workers"`
	EligibleState string        `yaml:"eligible_state"`
}

// expandEnv expands ${ENV_VAR} references in credentials and settings.
func (z *ZoneConfig) expandEnv() {
	z.Login = os.ExpandEnv(z.Login)
	z.Password = os.ExpandEnv(z.Password)
	for k, v := range z.Settings {
		z.Settings[k] = os.ExpandEnv(v)
	}
}

// FQDN is the name whose address records are managed.
func (z ZoneConfig) FQDN() string {
	return dns.JoinHostname(z.Subdomain, z.Domain)
}

// ProviderSettings returns the settings passed to the provider factory,
// including the legacy credentials when set.
func (z ZoneConfig) ProviderSettings() map[string]string {
	out := make(map[string]string, len(z.Settings)+2)
	for k, v := range z.Settings {
		out[k] = v
	}
	if z.Login != "" {
		out["login"] = z.Login
	}
	if z.Password != "" {
		out["password"] = z.Password
	}
	return out
}

// RecordTTL returns the TTL for created records.
func (z ZoneConfig) RecordTTL() int {
	if z.TTL > 0 {
		return z.TTL
	}
	return dns.DefaultTTL
}

// State returns the connection state that makes a peer eligible.
func (z ZoneConfig) State() string {
	if z.EligibleState != "" {
		return z.EligibleState
	}
	return DefaultEligibleState
}

// Workers returns the probe parallelism.
func (z ZoneConfig) Workers() int {
	if z.ProbeWorkers > 0 {
		return z.ProbeWorkers
	}
	return DefaultProbeWorkers
}

// Validate checks a single zone. Unknown provider kinds are rejected here so
// that the process exits before the run loop starts.
func (z ZoneConfig) Validate() error {
	if z.Provider == "" {
		return fmt.Errorf("missing required field 'provider'")
	}
	if !dns.IsRegistered(z.Provider) {
		return fmt.Errorf("%s is an invalid DNS provider (registered: %v)", z.Provider, dns.Registered())
	}
	if z.Domain == "" {
		return fmt.Errorf("missing required field 'domain'")
	}
	if _, ok := mdns.IsDomainName(z.Domain); !ok {
		return fmt.Errorf("invalid domain %q", z.Domain)
	}
	if _, ok := mdns.IsDomainName(z.FQDN()); !ok {
		return fmt.Errorf("invalid subdomain %q", z.Subdomain)
	}
	if z.RequiredPort < 1 || z.RequiredPort > 65535 {
		return fmt.Errorf("required_port %d out of range", z.RequiredPort)
	}
	if z.RPCHost == "" {
		return fmt.Errorf("missing required field 'rpc_host'")
	}
	if z.RPCPort < 1 || z.RPCPort > 65535 {
		return fmt.Errorf("rpc_port %d out of range", z.RPCPort)
	}
	if z.TTL < 0 {
		return fmt.Errorf("ttl must not be negative")
	}
	return nil
}
