// Package runner drives reconciliation cycles over the selected zones.
package runner

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/yuriy-kovalchuk/yk-seed-dns/internal/config"
	"github.com/yuriy-kovalchuk/yk-seed-dns/internal/controller"
	"github.com/yuriy-kovalchuk/yk-seed-dns/internal/daemon"
	"github.com/yuriy-kovalchuk/yk-seed-dns/internal/dns"
	"github.com/yuriy-kovalchuk/yk-seed-dns/internal/probe"
)

// ReconcilerFactory builds the reconciler for one zone and one cycle.
type ReconcilerFactory func(zone config.ZoneConfig, log logr.Logger) (*controller.ZoneReconciler, error)

// Runner reconciles the selected zones one after another, once or on a
// fixed delay.
type Runner struct {
	Config *config.Config
	Zones  []string
	Log    logr.Logger

	DryRun bool
	// Debug logs each computed plan, like 'debug: true' in the config.
	Debug  bool
	OnPlan func(*controller.Plan)

	// NewReconciler defaults to NewZoneReconciler.
	NewReconciler ReconcilerFactory
}

// New validates the selection against cfg and returns a runner for it.
func New(cfg *config.Config, selection string, log logr.Logger) (*Runner, error) {
	zones, err := cfg.Select(selection)
	if err != nil {
		return nil, err
	}
	return &Runner{
		Config:        cfg,
		Zones:         zones,
		Log:           log,
		NewReconciler: NewZoneReconciler,
	}, nil
}

// NewZoneReconciler wires the configured provider, daemon client and TCP
// prober for zone.
func NewZoneReconciler(zone config.ZoneConfig, log logr.Logger) (*controller.ZoneReconciler, error) {
	provider, err := dns.NewProvider(zone.Provider, log.WithName("dns-"+zone.Provider), zone.ProviderSettings())
	if err != nil {
		return nil, fmt.Errorf("creating %s provider: %w", zone.Provider, err)
	}
	return &controller.ZoneReconciler{
		Zone:   zone,
		DNS:    provider,
		Peers:  daemon.NewClient(log.WithName("daemon"), zone.RPCHost, zone.RPCPort, zone.RPCTimeout),
		Prober: probe.NewTCPProber(log.WithName("probe"), zone.ProbeTimeout),
		Log:    log,
	}, nil
}

// RunOnce runs one cycle. A failing zone is logged and does not stop the
// remaining zones; all failures are returned combined.
func (r *Runner) RunOnce(ctx context.Context) error {
	var errs error
	for _, name := range r.Zones {
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}
		if err := r.runZone(ctx, name); err != nil {
			r.Log.Error(err, "zone cycle failed", "zone", name)
			errs = multierr.Append(errs, fmt.Errorf("zone %s: %w", name, err))
		}
	}
	return errs
}

func (r *Runner) runZone(ctx context.Context, name string) error {
	zone, ok := r.Config.Zones[name]
	if !ok {
		return fmt.Errorf("%q: %w", name, config.ErrUnknownZone)
	}
	zone.Name = name
	if r.Config.Debug || r.Debug {
		zone.Debug = true
	}

	factory := r.NewReconciler
	if factory == nil {
		factory = NewZoneReconciler
	}
	rec, err := factory(zone, r.Log.WithName("zone-controller"))
	if err != nil {
		return err
	}
	rec.DryRun = r.DryRun
	rec.OnPlan = r.OnPlan

	_, err = rec.Reconcile(ctx)
	return err
}

// Run runs cycles until ctx is done when looping is enabled, waiting the
// configured delay after each cycle completes; otherwise it runs a single
// cycle and returns its error.
func (r *Runner) Run(ctx context.Context) error {
	if !r.Config.Loop {
		return r.RunOnce(ctx)
	}

	r.Log.Info("starting loop", "zones", r.Zones, "delay", r.Config.Interval())
	wait.UntilWithContext(ctx, func(ctx context.Context) {
		if err := r.RunOnce(ctx); err != nil {
			r.Log.Info("cycle finished with errors, retrying after delay", "delay", r.Config.Interval())
			return
		}
		r.Log.V(1).Info("cycle finished", "delay", r.Config.Interval())
	}, r.Config.Interval())
	return nil
}
