package controller

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/yuriy-kovalchuk/yk-seed-dns/internal/config"
	"github.com/yuriy-kovalchuk/yk-seed-dns/internal/daemon"
	"github.com/yuriy-kovalchuk/yk-seed-dns/internal/dns"
	"github.com/yuriy-kovalchuk/yk-seed-dns/internal/probe"
)

// Result summarises one applied cycle.
type Result struct {
	Survivors int
	Removed   int
	Added     int
	Rejected  int
	// Total is survivors plus successful additions: the live entry count
	// for the name.
	Total int
}

// ZoneReconciler keeps the address records of one zone in line with the
// reachable peers of its daemon.
type ZoneReconciler struct {
	Zone   config.ZoneConfig
	DNS    dns.Provider
	Peers  daemon.Source
	Prober probe.Prober
	Log    logr.Logger

	// DryRun computes and reports the plan without touching DNS.
	DryRun bool
	// OnPlan, when set, receives every computed plan before it is applied.
	OnPlan func(*Plan)
}

// Reconcile builds the plan for this cycle and applies it.
func (r *ZoneReconciler) Reconcile(ctx context.Context) (Result, error) {
	log := r.Log.WithValues("zone", r.Zone.Name, "name", r.Zone.FQDN())
	log.Info("starting run")

	plan, err := r.BuildPlan(ctx)
	if err != nil {
		cyclesTotal.WithLabelValues(r.Zone.Name, "error").Inc()
		return Result{}, err
	}

	if r.Zone.Debug {
		log.Info("computed plan", "plan", FormatPlan(plan))
	}
	if r.OnPlan != nil {
		r.OnPlan(plan)
	}
	if r.DryRun {
		log.Info("dry run, not applying", "removals", len(plan.Removals), "additions", len(plan.Additions), "total", plan.Total())
		return Result{Survivors: len(plan.Survivors), Rejected: len(plan.Rejections), Total: plan.Total()}, nil
	}

	res, err := r.Apply(ctx, plan)
	if err != nil {
		cyclesTotal.WithLabelValues(r.Zone.Name, "error").Inc()
		return res, err
	}

	cyclesTotal.WithLabelValues(r.Zone.Name, "success").Inc()
	log.Info("run complete", "survivors", res.Survivors, "removed", res.Removed, "added", res.Added, "rejected", res.Rejected, "total", res.Total)
	return res, nil
}

// BuildPlan computes the record diff without changing anything. Zone
// resolution and listing failures are fatal for the zone; a daemon failure
// only leaves the addition set empty.
func (r *ZoneReconciler) BuildPlan(ctx context.Context) (*Plan, error) {
	log := r.Log.WithValues("zone", r.Zone.Name)
	fqdn := r.Zone.FQDN()

	zoneID, err := r.DNS.ResolveZone(ctx, r.Zone.Domain)
	if err != nil {
		return nil, fmt.Errorf("resolving zone %s: %w", r.Zone.Domain, err)
	}

	current, err := r.DNS.ListRecords(ctx, zoneID, fqdn)
	if err != nil {
		return nil, fmt.Errorf("listing records for %s: %w", fqdn, err)
	}
	log.V(1).Info("current records", "records", current)

	plan := newPlan(r.Zone.Name, zoneID, fqdn, current)
	published := r.classifyCurrent(ctx, log, plan)

	conns, err := r.Peers.GetConnections(ctx)
	if err != nil {
		log.Error(err, "peer snapshot unavailable, pruning only")
		daemonErrorsTotal.WithLabelValues(r.Zone.Name).Inc()
		plan.DaemonErr = err
		conns = nil
	}

	r.selectAdditions(ctx, log, plan, published, conns)
	return plan, nil
}

// classifyCurrent probes every published address once and splits current
// records into survivors and removals. Every reachable record survives, even
// when another record holds the same address. It returns the surviving
// addresses.
func (r *ZoneReconciler) classifyCurrent(ctx context.Context, log logr.Logger, plan *Plan) map[string]bool {
	ids := sortedKeys(plan.Current)

	var addrs []string
	seen := make(map[string]bool)
	for _, id := range ids {
		if a := plan.Current[id]; !seen[a] {
			seen[a] = true
			addrs = append(addrs, a)
		}
	}
	reachable := r.probeAll(ctx, addrs)
	live := make(map[string]bool, len(addrs))
	for i, a := range addrs {
		live[a] = reachable[i]
	}

	published := make(map[string]bool)
	for _, id := range ids {
		addr := plan.Current[id]
		if !live[addr] {
			plan.Removals[id] = addr
			continue
		}
		if published[addr] {
			log.V(1).Info("address published by more than one record", "recordID", id, "address", addr)
		}
		published[addr] = true
		plan.Survivors[id] = addr
	}
	return published
}

// selectAdditions filters the peer snapshot. Cheap filters run first so that
// only candidates that could be published are probed.
func (r *ZoneReconciler) selectAdditions(ctx context.Context, log logr.Logger, plan *Plan, published map[string]bool, conns []daemon.Connection) {
	port := r.Zone.RequiredPort
	state := r.Zone.State()

	reject := func(c daemon.Connection, reason, msg string, kv ...interface{}) {
		plan.Rejections = append(plan.Rejections, Rejection{Address: c.Address, Port: int(c.Port), State: c.State, Reason: reason})
		peersRejectedTotal.WithLabelValues(r.Zone.Name, reason).Inc()
		log.Info("ignoring peer: "+msg, append([]interface{}{"address", c.Address, "port", int(c.Port)}, kv...)...)
	}

	var candidates []daemon.Connection
	queued := make(map[string]bool)
	for _, c := range conns {
		switch {
		case published[c.Address]:
			reject(c, ReasonPublished, "address is in the current list")
		case c.State != state:
			reject(c, ReasonState, "state is not eligible", "state", c.State)
		case int(c.Port) != port:
			reject(c, ReasonPort, "port does not match", "requiredPort", port)
		case !isIPv4(c.Address):
			reject(c, ReasonNotIPv4, "not an IPv4 address")
		case queued[c.Address]:
			reject(c, ReasonDuplicate, "address already queued")
		default:
			queued[c.Address] = true
			candidates = append(candidates, c)
		}
	}

	addrs := make([]string, len(candidates))
	for i, c := range candidates {
		addrs[i] = c.Address
	}
	reachable := r.probeAll(ctx, addrs)
	for i, c := range candidates {
		if !reachable[i] {
			reject(c, ReasonUnreachable, "unable to connect", "requiredPort", port)
			continue
		}
		plan.Additions = append(plan.Additions, c.Address)
	}
}

// probeAll probes addrs on the required port with bounded parallelism. The
// result is positional, so the outcome does not depend on scheduling.
func (r *ZoneReconciler) probeAll(ctx context.Context, addrs []string) []bool {
	out := make([]bool, len(addrs))
	if len(addrs) == 0 {
		return out
	}

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(r.Zone.Workers())
	for i, addr := range addrs {
		g.Go(func() error {
			ok := r.Prober.Probe(ctx, addr, r.Zone.RequiredPort)
			mu.Lock()
			out[i] = ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Apply deletes stale records and creates the new ones. Every operation is
// attempted; failures are combined into the returned error.
func (r *ZoneReconciler) Apply(ctx context.Context, plan *Plan) (Result, error) {
	log := r.Log.WithValues("zone", r.Zone.Name)
	res := Result{Survivors: len(plan.Survivors), Rejected: len(plan.Rejections)}

	var errs error
	for _, id := range plan.RemovalIDs() {
		addr := plan.Removals[id]
		log.Info("removing DNS entry", "recordID", id, "address", addr)
		if err := r.DNS.DeleteRecord(ctx, plan.ZoneID, id); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("deleting record %s (%s): %w", id, addr, err))
			continue
		}
		res.Removed++
	}
	recordsRemovedTotal.WithLabelValues(r.Zone.Name).Add(float64(res.Removed))

	for _, addr := range plan.Additions {
		log.Info("adding DNS entry", "address", addr)
		rec := dns.Record{
			Name:    plan.Name,
			Address: addr,
			TTL:     r.Zone.RecordTTL(),
			Proxied: false,
		}
		if err := r.DNS.CreateRecord(ctx, plan.ZoneID, rec); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("creating record for %s: %w", addr, err))
			continue
		}
		res.Added++
	}
	recordsAddedTotal.WithLabelValues(r.Zone.Name).Add(float64(res.Added))

	res.Total = res.Survivors + res.Added
	liveEntries.WithLabelValues(r.Zone.Name).Set(float64(res.Total))
	return res, errs
}

func isIPv4(addr string) bool {
	ip := net.ParseIP(addr)
	return ip != nil && ip.To4() != nil
}
