package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fleetmx/fleetmx/internal/alias"
	"github.com/fleetmx/fleetmx/internal/audit"
	"github.com/fleetmx/fleetmx/internal/config"
	"github.com/fleetmx/fleetmx/internal/gateway"
	"github.com/fleetmx/fleetmx/internal/httpserver"
	"github.com/fleetmx/fleetmx/internal/httpserver/deps"
	"github.com/fleetmx/fleetmx/internal/logger"
	"github.com/fleetmx/fleetmx/internal/metrics"
	"github.com/fleetmx/fleetmx/internal/pipeline"
	"github.com/fleetmx/fleetmx/internal/sources/domainlist"
	"github.com/fleetmx/fleetmx/internal/sources/namepool"
	"github.com/fleetmx/fleetmx/internal/store"
	"github.com/fleetmx/fleetmx/internal/version"
)

// App owns one fully wired run mode: provision, audit or version.
type App struct {
	mode     string
	cfg      *config.Config
	logger   logger.Logger
	domains  []string
	pipeline *pipeline.Pipeline
	auditor  *audit.Auditor
	server   *httpserver.Server
}

// New loads configuration and wires everything the requested mode needs.
func New(mode string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog, cfg.LogFile)

	a := &App{
		mode:   mode,
		cfg:    cfg,
		logger: loggerClient,
	}
	if mode == "version" {
		return a, nil
	}

	domains, err := loadDomains(cfg, loggerClient)
	if err != nil {
		return nil, err
	}
	a.domains = domains

	met := metrics.New(prometheus.DefaultRegisterer)
	forwarder, dnsHost := buildGateways(cfg, loggerClient, met)

	if mode == "audit" {
		auditor, err := audit.New(audit.Options{
			Forwarder:   forwarder,
			DNSHost:     dnsHost,
			Logger:      loggerClient,
			AliasTarget: cfg.AliasCount,
			Concurrency: cfg.AuditConcurrency,
		})
		if err != nil {
			return nil, err
		}
		a.auditor = auditor
		return a, nil
	}

	st, err := store.Open(cfg.StateFile, loggerClient)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	pools, err := namepool.NewLoader(cfg.NamePoolFile).Load()
	if err != nil {
		return nil, fmt.Errorf("load name pools: %w", err)
	}
	gen, err := alias.NewGenerator(pools, cfg.FirstNameRatio, nil)
	if err != nil {
		return nil, fmt.Errorf("build alias generator: %w", err)
	}

	p, err := pipeline.New(pipeline.Options{
		Config: pipeline.Config{
			AliasCount:      cfg.AliasCount,
			ForwardTo:       cfg.ForwardTo,
			PropagationWait: cfg.PropagationWait,
			RegisterPolicy:  cfg.RegisterPolicy(),
			DNSPolicy:       cfg.DNSPolicy(),
			VerifyPolicy:    cfg.VerifyPolicy(),
			AliasPolicy:     cfg.AliasPolicy(),
			DryRun:          cfg.DryRun,
		},
		Forwarder: forwarder,
		DNSHost:   dnsHost,
		Store:     st,
		Export:    store.NewAliasExport(cfg.ExportFile),
		Failures:  store.NewFailureLog(cfg.FailureFile),
		Generator: gen,
		Logger:    loggerClient,
		Metrics:   met,
	})
	if err != nil {
		return nil, err
	}
	a.pipeline = p

	if cfg.OpsEnabled {
		a.server = httpserver.New(cfg.OpsListen, loggerClient, deps.Deps{
			Logger:       loggerClient,
			Store:        st,
			StartTime:    time.Now(),
			Version:      version.Version,
			Commit:       version.Commit,
			BuildDate:    version.BuildDate,
			GoVersion:    version.GoVersion,
			AllowedCIDRS: cfg.CIDRList(),
		})
	}

	return a, nil
}

// Run executes the selected mode until it finishes or the process is told to
// stop.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch a.mode {
	case "version":
		fmt.Println(version.String())
		return nil
	case "audit":
		return a.runAudit(ctx)
	default:
		return a.runProvision(ctx)
	}
}

func (a *App) runProvision(ctx context.Context) error {
	a.logger.Infof("🚀 Starting fleetmx %s: provisioning %d domains", version.Version, len(a.domains))
	if a.cfg.DryRun {
		a.logger.Info("dry-run enabled, no external service will be touched")
	}

	errCh := make(chan error, 1)
	if a.server != nil {
		go func() {
			if err := a.server.Start(); err != nil {
				errCh <- fmt.Errorf("ops server error: %w", err)
			}
		}()
	}

	summary, runErr := a.pipeline.Run(ctx, a.domains)

	if a.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := a.server.Stop(shutdownCtx); err != nil {
			a.logger.Warnf("failed to stop ops server: %v", err)
		}
	}
	select {
	case err := <-errCh:
		a.logger.Warnf("ops server exited early: %v", err)
	default:
	}

	if runErr != nil {
		return runErr
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d domains failed; rerun to retry their failed phases",
			summary.Failed, summary.Domains)
	}

	a.logger.Info("✅ fleetmx finished cleanly",
		logger.Int("completed", summary.Completed),
		logger.Int("new_aliases", summary.NewAliases))
	return nil
}

func (a *App) runAudit(ctx context.Context) error {
	a.logger.Infof("🚀 Starting fleetmx %s: auditing %d domains", version.Version, len(a.domains))

	results, err := a.auditor.Audit(ctx, a.domains)
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}

	report := audit.NewReport(results)
	if err := report.WriteFile(a.cfg.ReportFile); err != nil {
		return err
	}

	a.logger.Info("✅ audit report written",
		logger.String("file", a.cfg.ReportFile),
		logger.Int("fully_configured", report.FullyConfigured),
		logger.Int("partially_configured", report.PartiallyConfigured),
		logger.Int("not_configured", report.NotConfigured))

	if report.FullyConfigured != report.Domains {
		a.logger.Warnf("%d of %d domains are not fully configured, see the report for details",
			report.Domains-report.FullyConfigured, report.Domains)
	}
	return nil
}

func loadDomains(cfg *config.Config, log logger.Logger) ([]string, error) {
	lines, err := domainlist.NewLoader(cfg.DomainsFile).Load()
	if err != nil {
		return nil, fmt.Errorf("load domain list: %w", err)
	}
	domains, err := domainlist.NewMapper(log).MapDomains(lines)
	if err != nil {
		return nil, fmt.Errorf("parse domain list: %w", err)
	}
	return domains, nil
}

func buildGateways(cfg *config.Config, log logger.Logger, met *metrics.Metrics) (gateway.Forwarder, gateway.DNSHost) {
	if cfg.DryRun {
		return gateway.NewDryRunForwarder(log), gateway.NewDryRunDNSHost(log)
	}

	forwarder := gateway.NewForwardEmailClient(gateway.ForwardEmailOptions{
		APIKey:  cfg.ForwardEmailAPIKey,
		BaseURL: cfg.ForwardEmailBaseURL,
		Timeout: cfg.HTTPTimeout,
		Logger:  log,
		Metrics: met,
	})
	dnsHost := gateway.NewCloudflareClient(gateway.CloudflareOptions{
		APIToken: cfg.CloudflareAPIToken,
		BaseURL:  cfg.CloudflareBaseURL,
		Timeout:  cfg.HTTPTimeout,
		Logger:   log,
		Metrics:  met,
	})
	return forwarder, dnsHost
}
