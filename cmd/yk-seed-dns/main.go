package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/go-logr/logr"
	"github.com/urfave/cli/v2"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/yuriy-kovalchuk/yk-seed-dns/internal/config"
	"github.com/yuriy-kovalchuk/yk-seed-dns/internal/dns"
	_ "github.com/yuriy-kovalchuk/yk-seed-dns/internal/dns/providers"
	"github.com/yuriy-kovalchuk/yk-seed-dns/internal/runner"
)

var Version = "dev"

func main() {
	app := &cli.App{
		Name:    "yk-seed-dns",
		Usage:   "keep a DNS name pointed at the reachable peers of a p2p daemon",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the configuration file",
				Value:   "configs/config.yaml",
				EnvVars: []string{"SEED_DNS_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "verbose logging (also enabled by 'debug: true' in the config)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Reconcile the selected zone (or all), looping when the config says so.",
				ArgsUsage: "<zone|all>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "dry-run", Usage: "compute and log plans without changing DNS"},
					&cli.BoolFlag{Name: "once", Usage: "run a single cycle even if loop is enabled"},
					&cli.StringFlag{Name: "metrics-addr", Usage: "address for /metrics, /healthz and /readyz (empty disables)", Value: ":9090"},
				},
				Action: runAction,
			},
			{
				Name:      "plan",
				Usage:     "Print the changes the next cycle would make, without applying them.",
				ArgsUsage: "<zone|all>",
				Action:    planAction,
			},
			{
				Name:      "check",
				Usage:     "Resolve the published records and probe each of them.",
				ArgsUsage: "<zone|all>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "server", Usage: "DNS server host:port (default: first resolv.conf nameserver)"},
				},
				Action: checkAction,
			},
			{
				Name:   "zones",
				Usage:  "List configured zones and available DNS providers.",
				Action: zonesAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads and validates the configuration, installs the logger and
// resolves the zone selection. Nothing touches the network before it returns.
func setup(c *cli.Context) (*config.Config, *runner.Runner, logr.Logger, error) {
	cfg, err := config.LoadFromPath(c.String("config"))
	if err != nil {
		return nil, nil, logr.Logger{}, fmt.Errorf("unable to load config: %w", err)
	}

	ctrl.SetLogger(zap.New(zap.UseDevMode(cfg.Debug || c.Bool("debug"))))
	log := ctrl.Log.WithName("setup")

	if err := cfg.Validate(); err != nil {
		return nil, nil, log, err
	}

	if c.NArg() != 1 {
		return nil, nil, log, errors.New("need to select a zone, or all")
	}
	r, err := runner.New(cfg, c.Args().First(), ctrl.Log.WithName("runner"))
	if err != nil {
		return nil, nil, log, fmt.Errorf("%w, not configured for DNS update", err)
	}
	r.Debug = c.Bool("debug")
	return cfg, r, log, nil
}

func runAction(c *cli.Context) error {
	cfg, r, log, err := setup(c)
	if err != nil {
		return err
	}
	log.Info("starting yk-seed-dns", "version", Version, "zones", r.Zones, "loop", cfg.Loop)

	ctx := ctrl.SetupSignalHandler()
	if addr := c.String("metrics-addr"); addr != "" && cfg.Loop && !c.Bool("once") {
		srv := newMetricsServer(addr)
		go func() {
			log.Info("serving metrics", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(err, "metrics server stopped")
			}
		}()
		defer srv.Shutdown(context.Background())
	}

	r.DryRun = c.Bool("dry-run")
	if c.Bool("once") {
		return r.RunOnce(ctx)
	}
	return r.Run(ctx)
}

func zonesAction(c *cli.Context) error {
	cfg, err := config.LoadFromPath(c.String("config"))
	if err != nil {
		return fmt.Errorf("unable to load config: %w", err)
	}
	printZones(os.Stdout, cfg, dns.Registered())
	return nil
}
