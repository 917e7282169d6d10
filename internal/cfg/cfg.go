package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/keithlinneman/clubdesk-web/internal/log"
)

// EnvPrefix is prepended to every flag name when reading the environment
const EnvPrefix = "CLUBDESK_"

type App struct {
	LogJSON           bool
	LogLevel          string
	HTTPPort          int
	AdminPort         int
	EnablePprof       bool
	EnablePyroscope   bool
	EnableTracing     bool
	PyroServer        string
	PyroTenantID      string
	OTLPEndpoint      string
	TraceSample       float64
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	BaseURL          string
	TrustedProxyHops int
	AnalyticsScript  string

	RateLimitInterval     time.Duration
	RateLimitRequests     int
	RateLimitUniqueTokens int

	ContactDeliveryTimeout time.Duration
	SMTPAddr               string
	SMTPUsername           string
	SMTPPassword           string
	SMTPFrom               string
	SMTPTo                 string
	SMTPPerMinute          float64
	ArchiveS3Bucket        string
	ArchiveS3Prefix        string

	EnableCatalogUpdates bool
	CatalogSSMParam      string
	CatalogS3Bucket      string
	CatalogS3Prefix      string
	CatalogPollInterval  time.Duration
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")

	fs.StringVar(&c.BaseURL, "base-url", "https://www.clubdesk.example", "public site url used for canonical links and the sitemap")
	fs.IntVar(&c.TrustedProxyHops, "trusted-proxy-hops", 1, "number of trusted reverse proxies in front of the server (0..10)")
	fs.StringVar(&c.AnalyticsScript, "analytics-script", "", "analytics tag src (https), empty disables analytics and the consent banner")

	fs.DurationVar(&c.RateLimitInterval, "ratelimit-interval", 15*time.Minute, "contact rate limit sliding window")
	fs.IntVar(&c.RateLimitRequests, "ratelimit-requests", 5, "contact requests allowed per client per window")
	fs.IntVar(&c.RateLimitUniqueTokens, "ratelimit-unique-tokens", 500, "max clients tracked by the contact rate limiter")

	fs.DurationVar(&c.ContactDeliveryTimeout, "contact-delivery-timeout", 15*time.Second, "time allowed for all contact notifiers together")
	fs.StringVar(&c.SMTPAddr, "smtp-addr", "", "smtp relay host:port, empty disables contact email")
	fs.StringVar(&c.SMTPUsername, "smtp-username", "", "smtp auth username")
	fs.StringVar(&c.SMTPPassword, "smtp-password", "", "smtp auth password")
	fs.StringVar(&c.SMTPFrom, "smtp-from", "ClubDesk Website <noreply@clubdesk.example>", "sender of contact notification emails")
	fs.StringVar(&c.SMTPTo, "smtp-to", "", "comma separated recipients of contact notification emails")
	fs.Float64Var(&c.SMTPPerMinute, "smtp-per-minute", 10, "max outbound contact emails per minute")
	fs.StringVar(&c.ArchiveS3Bucket, "archive-s3-bucket", "", "s3 bucket to archive contact submissions in, empty disables the archive")
	fs.StringVar(&c.ArchiveS3Prefix, "archive-s3-prefix", "contact/submissions", "s3 prefix (key) for archived contact submissions")

	fs.BoolVar(&c.EnableCatalogUpdates, "enable-catalog-updates", false, "Enable refreshing message catalogs from S3/SSM")
	fs.StringVar(&c.CatalogSSMParam, "catalog-ssm-param", "/app/clubdesk-web/server/messages/current/sha256", "ssm parameter name to get the catalog bundle hash from")
	fs.StringVar(&c.CatalogS3Bucket, "catalog-s3-bucket", "", "s3 bucket name to get catalog bundles from")
	fs.StringVar(&c.CatalogS3Prefix, "catalog-s3-prefix", "apps/clubdesk-web/server/messages/bundles", "s3 prefix (key) to get catalog bundles from")
	fs.DurationVar(&c.CatalogPollInterval, "catalog-poll-interval", time.Minute, "how often to check ssm for a new catalog bundle")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := EnvKey(prefix, f.Name)
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				// secrets never reach the log
				logf("flag -%s: cli value overrides env %s", f.Name, key)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s: %v", f.Name, key, err)
			}
		}
	})
}

// EnvKey maps flag "foo-bar" to PREFIX_FOO_BAR
func EnvKey(prefix, flagName string) string {
	return prefix + strings.ReplaceAll(strings.ToUpper(flagName), "-", "_")
}

// SMTPRecipients splits SMTPTo, dropping blanks
func (c App) SMTPRecipients() []string {
	var out []string
	for _, s := range strings.Split(c.SMTPTo, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// AnalyticsOrigin is the scheme://host of AnalyticsScript for the CSP, "" when unset or unparsable
func (c App) AnalyticsOrigin() string {
	if c.AnalyticsScript == "" {
		return ""
	}
	u, err := url.Parse(c.AnalyticsScript)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Pyroscope (URL and scheme)
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	// Error link limits
	if c.IncludeErrorLinks {
		if c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64 {
			errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
		}
	}

	// Site
	if u, err := url.Parse(c.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("BASE_URL must be an http(s) URL (got %q)", c.BaseURL))
	}
	if c.TrustedProxyHops < 0 || c.TrustedProxyHops > 10 {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXY_HOPS must be 0..10 (got %d)", c.TrustedProxyHops))
	}
	if c.AnalyticsScript != "" {
		if u, err := url.Parse(c.AnalyticsScript); err != nil || u.Scheme != "https" || u.Host == "" {
			errs = append(errs, fmt.Errorf("ANALYTICS_SCRIPT must be an https URL (got %q)", c.AnalyticsScript))
		}
	}

	// Rate limiter
	if c.RateLimitInterval < time.Second {
		errs = append(errs, fmt.Errorf("RATELIMIT_INTERVAL must be at least 1s (got %s)", c.RateLimitInterval))
	}
	if c.RateLimitRequests < 1 {
		errs = append(errs, fmt.Errorf("RATELIMIT_REQUESTS must be positive (got %d)", c.RateLimitRequests))
	}
	if c.RateLimitUniqueTokens < 1 {
		errs = append(errs, fmt.Errorf("RATELIMIT_UNIQUE_TOKENS must be positive (got %d)", c.RateLimitUniqueTokens))
	}

	// Contact delivery
	if c.ContactDeliveryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("CONTACT_DELIVERY_TIMEOUT must be positive (got %s)", c.ContactDeliveryTimeout))
	}
	if c.SMTPAddr != "" {
		if _, _, err := net.SplitHostPort(c.SMTPAddr); err != nil {
			errs = append(errs, fmt.Errorf("SMTP_ADDR must be host:port (got %q): %v", c.SMTPAddr, err))
		}
		if c.SMTPFrom == "" {
			errs = append(errs, fmt.Errorf("SMTP_FROM required when SMTP_ADDR is set"))
		}
		if len(c.SMTPRecipients()) == 0 {
			errs = append(errs, fmt.Errorf("SMTP_TO required when SMTP_ADDR is set"))
		}
		if c.SMTPPerMinute <= 0 {
			errs = append(errs, fmt.Errorf("SMTP_PER_MINUTE must be positive (got %g)", c.SMTPPerMinute))
		}
		if c.SMTPPassword != "" && c.SMTPUsername == "" {
			errs = append(errs, fmt.Errorf("SMTP_USERNAME required when SMTP_PASSWORD is set"))
		}
	}

	if c.EnableCatalogUpdates {
		if c.CatalogSSMParam == "" {
			errs = append(errs, fmt.Errorf("CATALOG_SSM_PARAM is required"))
		}
		if c.CatalogS3Bucket == "" {
			errs = append(errs, fmt.Errorf("CATALOG_S3_BUCKET is required when ENABLE_CATALOG_UPDATES=true"))
		}
		if c.CatalogS3Prefix == "" {
			errs = append(errs, fmt.Errorf("CATALOG_S3_PREFIX is required"))
		}
		if c.CatalogPollInterval < 10*time.Second {
			errs = append(errs, fmt.Errorf("CATALOG_POLL_INTERVAL must be at least 10s (got %s)", c.CatalogPollInterval))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
