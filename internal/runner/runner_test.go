package runner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/go-logr/logr"
	logrtesting "github.com/go-logr/logr/testing"

	"github.com/yuriy-kovalchuk/yk-seed-dns/internal/config"
	"github.com/yuriy-kovalchuk/yk-seed-dns/internal/controller"
	"github.com/yuriy-kovalchuk/yk-seed-dns/internal/daemon"
	"github.com/yuriy-kovalchuk/yk-seed-dns/internal/dns"
	_ "github.com/yuriy-kovalchuk/yk-seed-dns/internal/dns/providers"
	"github.com/yuriy-kovalchuk/yk-seed-dns/internal/probe"
)

type emptyDNS struct{}

func (emptyDNS) ResolveZone(context.Context, string) (string, error) { return "zone", nil }
func (emptyDNS) ListRecords(context.Context, string, string) (map[string]string, error) {
	return map[string]string{}, nil
}
func (emptyDNS) DeleteRecord(context.Context, string, string) error { return nil }
func (emptyDNS) CreateRecord(context.Context, string, dns.Record) error { return nil }

type noPeers struct{}

func (noPeers) GetConnections(context.Context) ([]daemon.Connection, error) { return nil, nil }

func zone(domain string) config.ZoneConfig {
	return config.ZoneConfig{
		Provider:     "cloudflare",
		Domain:       domain,
		Subdomain:    "seeds",
		RequiredPort: 18080,
		RPCHost:      "127.0.0.1",
		RPCPort:      18081,
	}
}

// recordingFactory hands out reconcilers over empty fakes and records which
// zones were reconciled. Zones listed in fail get a construction error.
type recordingFactory struct {
	mu    sync.Mutex
	zones []string
	debug []bool
	fail  map[string]error
}

func (f *recordingFactory) build(z config.ZoneConfig, log logr.Logger) (*controller.ZoneReconciler, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.zones = append(f.zones, z.Name)
	f.debug = append(f.debug, z.Debug)
	if err := f.fail[z.Name]; err != nil {
		return nil, err
	}
	return &controller.ZoneReconciler{
		Zone:   z,
		DNS:    emptyDNS{},
		Peers:  noPeers{},
		Prober: probe.Func(func(context.Context, string, int) bool { return true }),
		Log:    log,
	}, nil
}

func TestNew_UnknownZone(t *testing.T) {
	cfg := &config.Config{Zones: map[string]config.ZoneConfig{"monero": zone("example.org")}}
	if _, err := New(cfg, "wownero", logr.Discard()); !errors.Is(err, config.ErrUnknownZone) {
		t.Fatalf("expected ErrUnknownZone, got %v", err)
	}
	r, err := New(cfg, config.AllZones, logr.Discard())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Zones) != 1 || r.Zones[0] != "monero" {
		t.Errorf("unexpected selection %v", r.Zones)
	}
}

func TestRunOnce_ZoneFailureIsolated(t *testing.T) {
	cfg := &config.Config{Zones: map[string]config.ZoneConfig{
		"a": zone("a.example"),
		"b": zone("b.example"),
	}}
	f := &recordingFactory{fail: map[string]error{"a": errors.New("bad credentials")}}
	r, err := New(cfg, config.AllZones, logrtesting.NewTestLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	r.NewReconciler = f.build

	err = r.RunOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "zone a") || !strings.Contains(err.Error(), "bad credentials") {
		t.Fatalf("expected zone a failure, got %v", err)
	}
	if strings.Contains(err.Error(), "zone b") {
		t.Errorf("zone b should have succeeded: %v", err)
	}
	if strings.Join(f.zones, ",") != "a,b" {
		t.Errorf("expected both zones to be attempted in order, got %v", f.zones)
	}
}

func TestRunOnce_DryRunAndDebugPropagate(t *testing.T) {
	cfg := &config.Config{Debug: true, Zones: map[string]config.ZoneConfig{"monero": zone("example.org")}}
	f := &recordingFactory{}
	r, err := New(cfg, "monero", logrtesting.NewTestLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	r.NewReconciler = f.build
	r.DryRun = true
	var plans []*controller.Plan
	r.OnPlan = func(p *controller.Plan) { plans = append(plans, p) }

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(plans) != 1 || plans[0].Zone != "monero" || plans[0].Name != "seeds.example.org" {
		t.Errorf("unexpected plans %+v", plans)
	}
	if len(f.debug) != 1 || !f.debug[0] {
		t.Errorf("expected config debug to reach the zone, got %v", f.debug)
	}
}

func TestRunOnce_DebugFlag(t *testing.T) {
	cfg := &config.Config{Zones: map[string]config.ZoneConfig{"monero": zone("example.org")}}
	f := &recordingFactory{}
	r, err := New(cfg, "monero", logrtesting.NewTestLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	r.NewReconciler = f.build

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	r.Debug = true
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(f.debug) != 2 || f.debug[0] || !f.debug[1] {
		t.Errorf("expected debug off then on, got %v", f.debug)
	}
}

func TestNewZoneReconciler_UnsupportedProvider(t *testing.T) {
	z := zone("example.org")
	z.Provider = "gandi"
	if _, err := NewZoneReconciler(z, logr.Discard()); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

func TestNewZoneReconciler_BadCredentials(t *testing.T) {
	if _, err := NewZoneReconciler(zone("example.org"), logr.Discard()); err == nil {
		t.Fatal("expected error for missing cloudflare credentials")
	}
}

func TestRun_SingleCycle(t *testing.T) {
	cfg := &config.Config{Zones: map[string]config.ZoneConfig{"monero": zone("example.org")}}
	f := &recordingFactory{}
	r, err := New(cfg, "monero", logr.Discard())
	if err != nil {
		t.Fatal(err)
	}
	r.NewReconciler = f.build

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.zones) != 1 {
		t.Errorf("expected exactly one cycle, got %d", len(f.zones))
	}
}

func TestRun_LoopUntilCancelled(t *testing.T) {
	cfg := &config.Config{Loop: true, Delay: 1, Zones: map[string]config.ZoneConfig{"monero": zone("example.org")}}
	f := &recordingFactory{fail: map[string]error{"monero": errors.New("provider down")}}
	r, err := New(cfg, "monero", logr.Discard())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cycles := 0
	r.NewReconciler = func(z config.ZoneConfig, log logr.Logger) (*controller.ZoneReconciler, error) {
		cycles++
		if cycles == 2 {
			cancel()
		}
		return f.build(z, log)
	}

	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if cycles != 2 {
		t.Errorf("expected the loop to survive a failing cycle and run twice, got %d", cycles)
	}
}
