package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/keithlinneman/clubdesk-web/internal/cfg"
	"github.com/keithlinneman/clubdesk-web/internal/contact"
	"github.com/keithlinneman/clubdesk-web/internal/health"
	"github.com/keithlinneman/clubdesk-web/internal/httpmw"
	"github.com/keithlinneman/clubdesk-web/internal/httpserver"
	"github.com/keithlinneman/clubdesk-web/internal/i18n"
	"github.com/keithlinneman/clubdesk-web/internal/log"
	"github.com/keithlinneman/clubdesk-web/internal/metrics"
	"github.com/keithlinneman/clubdesk-web/internal/opshttp"
	"github.com/keithlinneman/clubdesk-web/internal/otelx"
	"github.com/keithlinneman/clubdesk-web/internal/prof"
	"github.com/keithlinneman/clubdesk-web/internal/ratelimit"
	"github.com/keithlinneman/clubdesk-web/internal/seo"
	"github.com/keithlinneman/clubdesk-web/internal/site"
	v "github.com/keithlinneman/clubdesk-web/internal/version"
	"github.com/keithlinneman/clubdesk-web/internal/webassets"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(vi.String())
		os.Exit(0)
	}

	// env fills anything not passed on the command line
	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	lvl, _ := log.ParseLevel(conf.LogLevel)
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		stackLvl = lvl
	}
	lg, err := log.New(log.Options{
		App:               v.AppName,
		Version:           vi.Version,
		Commit:            vi.Commit,
		BuildId:           vi.BuildId,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JsonFormat:        conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", v.Component)
	ctx = log.WithContext(ctx, L)

	// secrets (smtp password) are deliberately absent
	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"base_url", conf.BaseURL,
		"trusted_proxy_hops", conf.TrustedProxyHops,
		"analytics", conf.AnalyticsOrigin(),
		"ratelimit_requests", conf.RateLimitRequests,
		"ratelimit_interval", conf.RateLimitInterval.String(),
		"ratelimit_unique_tokens", conf.RateLimitUniqueTokens,
		"smtp_addr", conf.SMTPAddr,
		"smtp_recipients", len(conf.SMTPRecipients()),
		"archive_s3_bucket", conf.ArchiveS3Bucket,
		"enable_catalog_updates", conf.EnableCatalogUpdates,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"trace_sample", conf.TraceSample,
	)

	m := metrics.New()
	m.SetBuildInfo(vi)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName + "." + v.Component,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": v.Component,
			"version":   vi.Version,
			"commit":    vi.ShortCommit(),
			"build_id":  vi.BuildId,
		},
		OnActive: m.SetProfilingActive,
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer stopProf()

	// the collector runs on localhost, plaintext is fine
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: v.Component,
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed, tracing disabled")
		shutdownOTEL = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	// message catalogs: embedded seed first, S3 overlay on top when enabled
	seed, err := i18n.LoadFS(webassets.LocalesFS())
	if err != nil {
		L.Error(ctx, err, "embedded message catalogs are broken")
		os.Exit(1)
	}
	if err := i18n.ValidateCatalog(seed, i18n.DefaultValidationOptions()); err != nil {
		L.Error(ctx, err, "embedded message catalogs failed validation")
		os.Exit(1)
	}
	messages := i18n.NewManager(seed)
	negotiator := i18n.NewNegotiator(i18n.Supported...)
	reportCatalog(m, messages.Get())
	L.Info(ctx, "loaded embedded message catalogs",
		"locales", seed.Locales(),
		"catalog_hash", seed.Meta.Hash,
	)

	var awsCfg *aws.Config
	loadAWS := func() (*aws.Config, error) {
		if awsCfg != nil {
			return awsCfg, nil
		}
		c, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		awsCfg = &c
		return awsCfg, nil
	}

	if conf.EnableCatalogUpdates {
		if err := startCatalogWatcher(ctx, L, conf, loadAWS, messages, seed, m); err != nil {
			// the embedded catalogs keep serving
			L.Error(ctx, err, "catalog updates disabled")
		}
	}

	// one limiter for the whole process, shared by every instance of the contact route
	limiter, err := ratelimit.New(
		ratelimit.WithLimit(conf.RateLimitRequests),
		ratelimit.WithInterval(conf.RateLimitInterval),
		ratelimit.WithUniqueTokenPerInterval(conf.RateLimitUniqueTokens),
		ratelimit.WithOnDenied(func(string) { m.IncRateLimitDenied() }),
		// logged once per client per tracked period
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "contact rate limit triggered", "ip", ip)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "rate limiter at capacity, evicting least recently seen client")
		}),
	)
	if err != nil {
		L.Error(ctx, err, "invalid rate limiter settings")
		os.Exit(1)
	}
	if err := m.RegisterRateLimitTracked(limiter.Len); err != nil {
		L.Error(ctx, err, "register rate limiter gauge")
	}

	notifiers, err := buildNotifiers(ctx, conf, loadAWS)
	if err != nil {
		L.Error(ctx, err, "failed to configure contact delivery")
		os.Exit(1)
	}
	if len(notifiers) == 0 {
		L.Warn(ctx, "no contact notifiers configured, submissions are validated and logged only")
	}

	contactHandler, err := contact.New(contact.Options{
		Logger:          L,
		Limiter:         limiter,
		Notifiers:       notifiers,
		Locales:         negotiator,
		Metrics:         m,
		DeliveryTimeout: conf.ContactDeliveryTimeout,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create contact handler")
		os.Exit(1)
	}

	seoSite, err := seo.New(conf.BaseURL, negotiator.Locales(), seo.Pages...)
	if err != nil {
		L.Error(ctx, err, "invalid base url", "base_url", conf.BaseURL)
		os.Exit(1)
	}
	seoRoutes, err := seo.NewRoutes(seoSite)
	if err != nil {
		L.Error(ctx, err, "failed to build sitemap")
		os.Exit(1)
	}

	siteHandler, err := site.New(site.Options{
		Logger:          L,
		Messages:        messages,
		Negotiator:      negotiator,
		SEO:             seoSite,
		Templates:       webassets.TemplatesFS(),
		Static:          webassets.StaticFS(),
		AnalyticsScript: conf.AnalyticsScript,
		ContactEndpoint: contact.Route,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create site handler")
		os.Exit(1)
	}

	var gate health.ShutdownGate
	readiness := health.All(
		gate.Probe(),
		health.Named("i18n", health.CheckFunc(func(context.Context) error {
			return messages.ReadyErr()
		})),
	)

	siteHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		Catalog:      messages,
		ClientIP:     httpmw.ClientIPOptions{TrustedHops: conf.TrustedProxyHops},
		CSPOrigins:   []string{conf.AnalyticsOrigin()},
		// site goes last, it owns NotFound and MethodNotAllowed
		Routes: []httpserver.RouteRegistrar{contactHandler, seoRoutes, siteHandler},
	})
	if err != nil {
		L.Error(ctx, err, "failed to start site http listener")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// ops listener rejects public peers in middleware in case the security group is ever misconfigured
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		// systemd kills us after its start timeout if this really mattered
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	<-ctx.Done()
	stop()
	L.Info(context.Background(), "shutdown signal received")

	// fail readiness so the load balancer stops sending visitors, then let in-flight requests finish
	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed, draining for 60s")
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(60 * time.Second):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "site http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}
	stopProf()

	L.Info(context.Background(), "shutdown complete")
}

// buildNotifiers returns the configured delivery targets, mail and archive are both optional
func buildNotifiers(ctx context.Context, conf cfg.App, loadAWS func() (*aws.Config, error)) ([]contact.Notifier, error) {
	var out []contact.Notifier
	if conf.SMTPAddr != "" {
		mailer, err := contact.NewMailer(contact.MailerOptions{
			Addr:      conf.SMTPAddr,
			Username:  conf.SMTPUsername,
			Password:  conf.SMTPPassword,
			From:      conf.SMTPFrom,
			To:        conf.SMTPRecipients(),
			PerMinute: conf.SMTPPerMinute,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, mailer)
	}
	if conf.ArchiveS3Bucket != "" {
		awsCfg, err := loadAWS()
		if err != nil {
			return nil, err
		}
		archiver, err := contact.NewArchiver(ctx, contact.ArchiverOptions{
			Bucket:    conf.ArchiveS3Bucket,
			Prefix:    conf.ArchiveS3Prefix,
			AWSConfig: awsCfg,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, archiver)
	}
	return out, nil
}

// startCatalogWatcher installs the current S3 overlay, if any, and keeps polling for new ones
func startCatalogWatcher(ctx context.Context, L log.Logger, conf cfg.App, loadAWS func() (*aws.Config, error),
	messages *i18n.Manager, seed *i18n.Catalog, m *metrics.ServerMetrics) error {
	awsCfg, err := loadAWS()
	if err != nil {
		return err
	}
	loader, err := i18n.NewLoader(ctx, i18n.LoaderOptions{
		Logger:    L,
		SSMParam:  conf.CatalogSSMParam,
		S3Bucket:  conf.CatalogS3Bucket,
		S3Prefix:  conf.CatalogS3Prefix,
		AWSConfig: awsCfg,
	})
	if err != nil {
		return err
	}
	watcher := i18n.NewWatcher(i18n.WatcherOptions{
		Logger:       L,
		Fetcher:      loader,
		Manager:      messages,
		Base:         seed,
		PollInterval: conf.CatalogPollInterval,
		Metrics:      m,
		OnSwap: func(string) {
			reportCatalog(m, messages.Get())
		},
	})
	if err := watcher.Sync(ctx); err != nil {
		L.Error(ctx, err, "initial catalog sync failed, serving embedded catalogs until the next poll")
	}
	go func() {
		if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			L.Error(ctx, err, "catalog watcher stopped")
		}
	}()
	return nil
}

func reportCatalog(m *metrics.ServerMetrics, c *i18n.Catalog) {
	if c == nil {
		return
	}
	m.SetCatalog(string(c.Meta.Source), c.Meta.Version, c.Meta.Hash, c.Meta.LoadedAt)
}

func notifySystemd() error {
	// systemd sets NOTIFY_SOCKET for Type=notify units
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		_ = conn.Close()
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
