package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/yuriy-kovalchuk/yk-seed-dns/internal/config"
	"github.com/yuriy-kovalchuk/yk-seed-dns/internal/controller"
	"github.com/yuriy-kovalchuk/yk-seed-dns/internal/lookup"
	"github.com/yuriy-kovalchuk/yk-seed-dns/internal/probe"
)

func planAction(c *cli.Context) error {
	_, r, _, err := setup(c)
	if err != nil {
		return err
	}
	r.DryRun = true
	r.OnPlan = func(p *controller.Plan) { printPlan(os.Stdout, p) }
	return r.RunOnce(ctrl.SetupSignalHandler())
}

func checkAction(c *cli.Context) error {
	cfg, r, _, err := setup(c)
	if err != nil {
		return err
	}
	ctx := ctrl.SetupSignalHandler()
	resolver := lookup.NewResolver(c.String("server"), 0)

	for _, name := range r.Zones {
		zone := cfg.Zones[name]
		if err := checkZone(ctx, os.Stdout, resolver, zone); err != nil {
			return fmt.Errorf("zone %s: %w", name, err)
		}
	}
	return nil
}

func checkZone(ctx context.Context, w io.Writer, resolver *lookup.Resolver, zone config.ZoneConfig) error {
	answers, err := resolver.Resolve(ctx, zone.FQDN())
	if err != nil {
		return err
	}
	prober := probe.NewTCPProber(ctrl.Log.WithName("probe"), zone.ProbeTimeout)

	fmt.Fprintf(w, "%s via %s: %d record(s)\n", color.CyanString(zone.FQDN()), resolver.Server, len(answers))
	for _, a := range answers {
		status := color.GreenString("reachable")
		if !prober.Probe(ctx, a.Address, zone.RequiredPort) {
			status = color.RedString("unreachable")
		}
		fmt.Fprintf(w, "  %-15s ttl=%-6s %s\n", a.Address, a.TTL, status)
	}
	return nil
}

// printPlan writes a colored summary of p.
func printPlan(w io.Writer, p *controller.Plan) {
	fmt.Fprintf(w, "%s %s\n", color.CyanString(p.Zone), p.Name)
	for _, id := range p.SurvivorIDs() {
		fmt.Fprintf(w, "  %s %s (%s)\n", color.BlueString("="), p.Survivors[id], id)
	}
	for _, id := range p.RemovalIDs() {
		fmt.Fprintf(w, "  %s %s (%s)\n", color.RedString("-"), p.Removals[id], id)
	}
	for _, addr := range p.Additions {
		fmt.Fprintf(w, "  %s %s\n", color.GreenString("+"), addr)
	}
	for _, rj := range p.Rejections {
		fmt.Fprintf(w, "  %s %s:%d %s\n", color.YellowString("!"), rj.Address, rj.Port, rj.Reason)
	}
	if p.DaemonErr != nil {
		fmt.Fprintf(w, "  %s\n", color.RedString("daemon unavailable: %v", p.DaemonErr))
	}
	fmt.Fprintf(w, "  total after apply: %d\n", p.Total())
}

func printZones(w io.Writer, cfg *config.Config, providers []string) {
	fmt.Fprintf(w, "providers: %v\n", providers)
	for _, name := range cfg.ZoneNames() {
		z := cfg.Zones[name]
		fmt.Fprintf(w, "%s  %s  provider=%s port=%d daemon=%s:%d\n",
			color.CyanString(name), z.FQDN(), z.Provider, z.RequiredPort, z.RPCHost, z.RPCPort)
	}
}
